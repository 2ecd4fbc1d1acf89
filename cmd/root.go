package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediacat/internal/formats"
	"mediacat/internal/logging"
	"mediacat/internal/mediaerr"
	"mediacat/internal/metrics"
	"mediacat/internal/settings"
	"mediacat/internal/storage"
	"mediacat/internal/thumbnail"
)

var (
	configPath  string
	dbPath      string
	cachePath   string
	logLevel    string
	logJSON     bool
	metricsAddr string

	// Resolved in PersistentPreRunE
	settingsStore *settings.Store
	cfg           settings.Settings
	logger        = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "mediacat",
	Short: "Catalog, search and back up a local photo and video library",
	Long: `mediacat scans folders of photos and videos, extracts their metadata,
builds preview thumbnails and keeps everything in a local catalog that can
be searched, tagged and backed up to S3 compatible storage.

Example usage:
  mediacat scan ~/Pictures            # Scan and commit a folder
  mediacat list --from 2024-01-01     # Query the catalog
  mediacat dups                       # Find duplicate files
  mediacat tag                        # Label records with a local model
  mediacat sync                       # Back up pending records`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// usageError carries messages that are safe to show verbatim
type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	logger.Debug("command failed", zap.Error(err))
	logger.Sync()

	var ue usageError
	if errors.As(err, &ue) || isCobraUsage(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	} else {
		fmt.Fprintln(os.Stderr, "Error:", mediaerr.UserMessage(err))
	}
	stop()
	os.Exit(1)
}

// isCobraUsage reports errors raised by cobra itself (unknown flags,
// wrong argument counts), which carry no mediaerr kind.
func isCobraUsage(err error) bool {
	return mediaerr.KindOf(err) == mediaerr.Unknown &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		errors.Unwrap(err) == nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default ~/.mediacat/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Catalog database path (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "Thumbnail cache directory (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9090")
}

func setup(cmd *cobra.Command, args []string) error {
	l, err := logging.New(logging.Options{Level: logLevel, JSON: logJSON})
	if err != nil {
		return usagef("%v", err)
	}
	logger = l

	settingsStore = settings.NewStore(configPath)
	cfg, err = settingsStore.Load()
	if err != nil {
		// Keep going on defaults; the broken file is reported once
		logger.Warn("settings could not be loaded, using defaults",
			zap.String("path", settingsStore.Path()), zap.Error(err))
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if cachePath != "" {
		cfg.ThumbnailCachePath = cachePath
	}

	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(cmd.Context(), metricsAddr, logger); err != nil {
				logger.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

func openStore() (*storage.Storage, error) {
	store, err := storage.NewStorage(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return store, nil
}

func newGenerator(force bool) *thumbnail.Generator {
	return thumbnail.NewGenerator(cfg.ThumbnailCachePath,
		thumbnail.WithForce(force),
		thumbnail.WithLogger(logger),
	)
}

// formatPolicy returns the whitelist, persisting changes to the settings file
func formatPolicy() *formats.Policy {
	return formats.NewPolicy(cfg.Formats, formats.WithPersist(settingsStore.SaveFormats))
}
