package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/analysis"
	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/rep"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <video>",
	Short: "Count reps in a recorded video",
	Long: `Runs every frame of a video file through the analysis and prints the
final counters. With --out the annotated video is written as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().String("out", "", "Write the annotated video to this file (MJPG in AVI)")
	analyzeCmd.Flags().String("profile", "", "Preset to analyse with (overrides the config file)")
	analyzeCmd.Flags().String("thresholds", "", "YAML or JSON threshold file applied over the profile")
	analyzeCmd.Flags().Bool("json", false, "Print the summary as JSON")
}

// analyzeSummary is what analyze prints.
type analyzeSummary struct {
	SessionID string       `json:"sessionId"`
	Profile   string       `json:"profile"`
	Frames    int          `json:"frames"`
	Skipped   int          `json:"skipped"`
	Abandoned int          `json:"abandoned"`
	Counters  rep.Counters `json:"counters"`
}

// videoEpoch anchors video time. It must not be the zero time, which
// disables the inactivity timeout.
var videoEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// videoClock reports the presentation time of the current frame, so
// timeouts follow the recording rather than how fast it is processed.
type videoClock struct {
	fps   int
	frame int
}

func (c *videoClock) now() time.Time {
	fps := c.fps
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	return videoEpoch.Add(time.Duration(c.frame) * time.Second / time.Duration(fps))
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if profile, _ := cmd.Flags().GetString("profile"); profile != "" {
		cfg.Profile = profile
	}

	th, err := resolveThresholds(cfg, nil)
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("thresholds"); path != "" {
		if th, err = thresholds.Load(path, th); err != nil {
			return err
		}
	}

	det, err := detector.NewMediaPipeDetector(detector.Config{
		ModelComplexity: cfg.Detector.ModelComplexity,
		MinConfidence:   cfg.Detector.MinConfidence,
		MinTrackingConf: cfg.Detector.MinTracking,
	})
	if err != nil {
		return fmt.Errorf("pose detector: %w", err)
	}
	defer det.Close()

	out, _ := cmd.Flags().GetString("out")
	summary, err := analyzeVideo(args[0], out, th, det, logger)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	fmt.Fprintf(w, "frames:    %d (%d skipped)\n", summary.Frames, summary.Skipped)
	fmt.Fprintf(w, "correct:   %d\n", summary.Counters.Correct)
	fmt.Fprintf(w, "incorrect: %d\n", summary.Counters.Incorrect)
	if summary.Abandoned > 0 {
		fmt.Fprintf(w, "abandoned: %d\n", summary.Abandoned)
	}
	return nil
}

// analyzeVideo processes every frame of the video at path. When out is set
// the annotated frames are written there.
func analyzeVideo(path, out string, th thresholds.Thresholds, det detector.Detector, logger *slog.Logger) (analyzeSummary, error) {
	video := capture.NewVideoFile(path)
	if err := video.Open(); err != nil {
		return analyzeSummary{}, err
	}
	defer video.Close()

	var writer *gocv.VideoWriter
	if out != "" {
		width, height := video.Size()
		var err error
		writer, err = gocv.VideoWriterFile(out, "MJPG", float64(video.FPS()), width, height, true)
		if err != nil {
			return analyzeSummary{}, fmt.Errorf("open output %s: %w", out, err)
		}
		defer writer.Close()
	}

	return analyzeFrames(video, writer, th, det, logger)
}

// analyzeFrames runs src to its end through one session. Malformed frames
// and detector failures are counted as skipped and never end the run.
func analyzeFrames(src capture.Camera, writer *gocv.VideoWriter, th thresholds.Thresholds, det detector.Detector, logger *slog.Logger) (analyzeSummary, error) {
	clock := &videoClock{fps: src.FPS()}
	session, err := analysis.NewSession(th, analysis.WithLogger(logger), analysis.WithClock(clock.now))
	if err != nil {
		return analyzeSummary{}, err
	}
	proc := analysis.NewProcessor(session, det)

	summary := analyzeSummary{SessionID: session.ID(), Profile: th.Name}
	for ; ; clock.frame++ {
		frame, err := src.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			break
		}
		if err != nil {
			return summary, err
		}

		annotated, res, err := proc.Annotate(*frame)
		frame.Close()
		summary.Frames++
		if err != nil {
			summary.Skipped++
			if !errors.Is(err, analysis.ErrMalformedFrame) {
				logger.Warn("frame skipped", "frame", summary.Frames, "error", err)
			}
		} else {
			summary.Counters = res.State.Counters
			if res.Event == rep.EventAbandoned {
				summary.Abandoned++
			}
		}

		if writer != nil && !annotated.Empty() {
			err = writer.Write(annotated)
		} else {
			err = nil
		}
		annotated.Close()
		if err != nil {
			return summary, fmt.Errorf("write frame %d: %w", summary.Frames, err)
		}
	}

	logger.Info("analysis finished",
		"session", summary.SessionID,
		"frames", summary.Frames,
		"skipped", summary.Skipped,
		"correct", summary.Counters.Correct,
		"incorrect", summary.Counters.Incorrect,
	)
	return summary, nil
}
