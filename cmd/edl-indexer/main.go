// Command edl-indexer builds a sheet of clip thumbnails from an EDL and the
// video it was cut from.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/heimdex/edl-indexer/internal/config"
	"github.com/heimdex/edl-indexer/internal/logging"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:           "edl-indexer",
	Short:         "Index EDL clips as frame thumbnails in a spreadsheet",
	Long:          "edl-indexer parses an edit decision list, grabs one frame per clip from the rendered video, publishes each frame and writes an image/name table to a new sheet.",
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevelFlag
		}
		cfg = loaded
		logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
