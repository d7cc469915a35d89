package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heimdex/edl-indexer/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run one EDL through the pipeline and write a new sheet",
	Long:  "Parse the EDL, grab and publish one frame per clip, then add a sheet with an image/name row for every published clip. Prints the result as JSON.",
	RunE:  runIndex,
}

var (
	indexEDL        string
	indexVideo      string
	indexTitle      string
	indexDocumentID string
)

func init() {
	indexCmd.Flags().StringVar(&indexEDL, "edl", "", "Path to the EDL file (required)")
	indexCmd.Flags().StringVar(&indexVideo, "video", "", "Path to the rendered video (required)")
	indexCmd.Flags().StringVar(&indexTitle, "title", "", "Sheet title (defaults to the EDL file name)")
	indexCmd.Flags().StringVar(&indexDocumentID, "document", "", "Destination spreadsheet id (defaults to EDL_INDEXER_DOCUMENT_ID)")
	_ = indexCmd.MarkFlagRequired("edl")
	_ = indexCmd.MarkFlagRequired("video")

	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	caps, err := a.doctor.Get(ctx)
	if err != nil {
		return fmt.Errorf("probe ffmpeg: %w", err)
	}
	if !caps.HasFrames {
		return fmt.Errorf("ffmpeg and ffprobe are required: %s", firstNonEmpty(caps.FFmpeg.Error, caps.FFprobe.Error))
	}

	run, result, err := a.service.RunNow(ctx, indexEDL, indexVideo, indexTitle, indexDocumentID)
	if err != nil {
		if run != nil {
			return fmt.Errorf("run %s failed: %w", run.ID, err)
		}
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(indexOutput{RunID: run.ID, Result: result})
}

type indexOutput struct {
	RunID  string          `json:"run_id"`
	Result *indexer.Result `json:"result"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
