package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/config"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/metrics"
	"github.com/ayusman/squatcoach/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Analyse the camera live and serve the results over HTTP",
	Long: `Starts the live pipeline on the configured camera (or video file) and serves
the annotated stream, live feedback, session control, the profile API and
Prometheus metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides the config file)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	th, err := resolveThresholds(cfg, st)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	cam, err := newCamera(cfg.Camera)
	if err != nil {
		return err
	}

	a, err := app.New(app.Config{
		Camera:     cam,
		Thresholds: th,
		DetectorConfig: detector.Config{
			ModelComplexity: cfg.Detector.ModelComplexity,
			MinConfidence:   cfg.Detector.MinConfidence,
			MinTrackingConf: cfg.Detector.MinTracking,
		},
		Recorder: m,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	if err := a.Start(); err != nil {
		return err
	}
	defer a.Stop()

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.Info("serving static files", "dir", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		Pipeline:  a,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx, cfg.Server.Addr)
}

// newCamera returns the configured frame source. A file wins over a device.
func newCamera(cfg config.CameraConfig) (*capture.Source, error) {
	rotation, err := capture.ParseRotation(cfg.Rotate)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	opts := []capture.Option{capture.WithFPS(cfg.FPS), capture.WithRotation(rotation)}

	if cfg.File != "" {
		if cfg.Loop {
			opts = append(opts, capture.WithLoop())
		}
		return capture.NewVideoFile(cfg.File, opts...), nil
	}
	opts = append(opts, capture.WithResolution(cfg.Width, cfg.Height))
	return capture.NewCamera(cfg.Device, opts...), nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.squatcoach/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	candidates := []string{"web", "../web", "../../web", filepath.Join(config.DataDir(), "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
