package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ayusman/squatcoach/internal/config"
	"github.com/ayusman/squatcoach/internal/logging"
	"github.com/ayusman/squatcoach/internal/store"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

var rootCmd = &cobra.Command{
	Use:   "squatcoach",
	Short: "SquatCoach analyses squat form and counts reps",
	Long: `SquatCoach watches a side-on view of a person squatting, classifies each
frame against configurable thresholds, counts correct and incorrect reps and
overlays corrective feedback on the video.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides the config file)")
}

// loadConfig reads the --config file, or the defaults when none is given,
// and builds the logger.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg := config.Default()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}

	return cfg, logging.New(level), nil
}

// resolveThresholds picks the thresholds to analyse with. The stored
// active profile wins, then the configured profile name (stored profile or
// preset). Inline config overrides are applied last. st may be nil.
func resolveThresholds(cfg config.Config, st *store.Store) (thresholds.Thresholds, error) {
	base, err := resolveProfile(cfg.Profile, st)
	if err != nil {
		return thresholds.Thresholds{}, err
	}

	if len(cfg.Thresholds) == 0 {
		return base, nil
	}
	th, err := thresholds.Decode(base, cfg.Thresholds)
	if err != nil {
		return thresholds.Thresholds{}, fmt.Errorf("config thresholds: %w", err)
	}
	return th, nil
}

func resolveProfile(name string, st *store.Store) (thresholds.Thresholds, error) {
	if st != nil {
		id, err := st.Settings().Get(store.SettingActiveProfile)
		switch {
		case err == nil:
			p, err := st.Profiles().GetByID(id)
			if err == nil {
				return p.Thresholds, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return thresholds.Thresholds{}, fmt.Errorf("load active profile: %w", err)
			}
		case !errors.Is(err, store.ErrNotFound):
			return thresholds.Thresholds{}, fmt.Errorf("read active profile: %w", err)
		}

		p, err := st.Profiles().GetByName(name)
		if err == nil {
			return p.Thresholds, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return thresholds.Thresholds{}, fmt.Errorf("load profile %q: %w", name, err)
		}
	}

	th, ok := thresholds.Preset(name)
	if !ok {
		return thresholds.Thresholds{}, fmt.Errorf("unknown profile %q", name)
	}
	return th, nil
}

// openStore opens the profile database, creating its directory and
// seeding the presets.
func openStore(cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	n, err := st.Profiles().SeedPresets()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("seed presets: %w", err)
	}
	if n > 0 {
		logger.Info("seeded preset profiles", "count", n)
	}
	return st, nil
}
