package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/heimdex/edl-indexer/internal/edl"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write an EDL from a JSON clip list",
	Long:  `Read [{"name": "...", "start_ms": 0, "end_ms": 1000, "media_path": "..."}] from --clips (or stdin with "-") and print a CMX 3600 EDL that parse and index understand.`,
	RunE:  runGenerate,
}

var (
	generateClips     string
	generateTitle     string
	generateFrameRate float64
)

type generateClip struct {
	Name      string `json:"name"       validate:"required"`
	StartMs   int    `json:"start_ms"   validate:"gte=0"`
	EndMs     int    `json:"end_ms"     validate:"gtfield=StartMs"`
	MediaPath string `json:"media_path,omitempty"`
}

// clipValidator reports fields by their JSON names.
var clipValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}()

func validateClip(i int, c generateClip) error {
	err := clipValidator.Struct(c)
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	fe := fields[0]
	var rule string
	switch fe.Tag() {
	case "required":
		rule = "is required"
	case "gte":
		rule = "must be >= " + fe.Param()
	case "gtfield":
		rule = "must be greater than start_ms"
	default:
		rule = "is invalid (" + fe.Tag() + ")"
	}
	return fmt.Errorf("clip %d (%q): %s %s", i, c.Name, fe.Field(), rule)
}

func init() {
	generateCmd.Flags().StringVar(&generateClips, "clips", "", `JSON clip list path, or "-" for stdin (required)`)
	generateCmd.Flags().StringVar(&generateTitle, "title", "edl-indexer", "EDL title")
	generateCmd.Flags().Float64Var(&generateFrameRate, "frame-rate", 0, "Timecode frame rate (defaults to EDL_INDEXER_FRAME_RATE)")
	_ = generateCmd.MarkFlagRequired("clips")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	var r io.Reader = cmd.InOrStdin()
	if generateClips != "-" {
		f, err := os.Open(generateClips)
		if err != nil {
			return fmt.Errorf("failed to open clips: %w", err)
		}
		defer f.Close()
		r = f
	}

	var in []generateClip
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("failed to decode clips: %w", err)
	}

	clips := make([]edl.EventClip, 0, len(in))
	for i, c := range in {
		if err := validateClip(i, c); err != nil {
			return err
		}
		name := edl.SanitizeName(c.Name, 160)
		if name == "" {
			return fmt.Errorf("clip %d: name is required", i)
		}
		clips = append(clips, edl.EventClip{
			ClipName:  name,
			MediaPath: c.MediaPath,
			StartMs:   c.StartMs,
			EndMs:     c.EndMs,
		})
	}

	frameRate := float64(cfg.FrameRate)
	if cmd.Flags().Changed("frame-rate") {
		frameRate = generateFrameRate
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), edl.Generate(clips, edl.SanitizeName(generateTitle, 120), frameRate))
	return err
}
