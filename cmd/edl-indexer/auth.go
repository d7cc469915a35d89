package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdex/edl-indexer/internal/google"
	"github.com/heimdex/edl-indexer/internal/logging"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Drive and Sheets access and cache the token",
	Long:  "Runs the OAuth consent flow for the client in EDL_INDEXER_GOOGLE_CREDENTIALS and stores the token at EDL_INDEXER_GOOGLE_TOKEN. Service account keys need no authorization.",
	RunE:  runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, _ []string) error {
	if cfg.GoogleCredentials == "" {
		return fmt.Errorf("EDL_INDEXER_GOOGLE_CREDENTIALS is not set")
	}

	err := google.Authorize(cmd.Context(), google.Config{
		CredentialsFile: cfg.GoogleCredentials,
		TokenFile:       cfg.GoogleToken,
		Logger:          logging.WithComponent(logger, "google"),
	}, func(authURL string) error {
		_, err := fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL in a browser to authorize edl-indexer:\n\n  %s\n\n", authURL)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", logging.SanitizePath(cfg.GoogleToken))
	return nil
}
