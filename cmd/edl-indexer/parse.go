package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heimdex/edl-indexer/internal/edl"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Print the clips found in an EDL as JSON",
	RunE:  runParse,
}

var (
	parseEDL       string
	parseFrameRate int
)

func init() {
	parseCmd.Flags().StringVar(&parseEDL, "edl", "", "Path to the EDL file (required)")
	parseCmd.Flags().IntVar(&parseFrameRate, "frame-rate", 0, "Timecode frame rate (defaults to EDL_INDEXER_FRAME_RATE)")
	_ = parseCmd.MarkFlagRequired("edl")

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, _ []string) error {
	text, err := os.ReadFile(parseEDL)
	if err != nil {
		return fmt.Errorf("failed to read edl: %w", err)
	}

	frameRate := cfg.FrameRate
	if cmd.Flags().Changed("frame-rate") {
		frameRate = parseFrameRate
	}

	clips, err := edl.Parse(string(text), frameRate)
	if err != nil {
		return err
	}
	if clips == nil {
		clips = []edl.ClipRecord{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(clips)
}
