package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/heimdex/edl-indexer/internal/frame"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg and ffprobe are available",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	caps := frame.ProbeTools(cmd.Context(), cfg.FFmpegPath, cfg.FFprobePath, cfg.FrameTimeout)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(caps); err != nil {
		return err
	}
	if !caps.HasFrames {
		return errors.New("frame extraction unavailable")
	}
	return nil
}
