package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Artifact is a decoded frame for one clip.
type Artifact struct {
	ClipName string
	Offset   float64
	Image    []byte
}

// Result is the outcome of one extraction: exactly one of Artifact or Miss
// is set.
type Result struct {
	Artifact *Artifact
	Miss     error
}

// Missed reports whether no frame was produced.
func (r Result) Missed() bool { return r.Artifact == nil }

func miss(err error) Result {
	if err == nil {
		err = ErrNoFrame
	}
	return Result{Miss: err}
}

// Extractor grabs one frame per call from a VideoResource.
type Extractor struct {
	resource VideoResource
	logger   *slog.Logger
}

func NewExtractor(resource VideoResource, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{resource: resource, logger: logger}
}

// Extract opens videoPath, seeks to offsetSeconds and decodes one frame.
// Any failure is reported as a miss, never as an error, and the handle is
// always closed before returning.
func (e *Extractor) Extract(ctx context.Context, videoPath, clipName string, offsetSeconds float64) Result {
	if math.IsNaN(offsetSeconds) || math.IsInf(offsetSeconds, 0) {
		return miss(fmt.Errorf("%w: invalid offset %v", ErrNoFrame, offsetSeconds))
	}

	h, err := e.resource.Open(ctx, videoPath)
	if err != nil {
		return miss(err)
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			e.logger.Warn("failed to close video handle", "error", cerr)
		}
	}()

	ms := int64(math.Round(offsetSeconds * 1000))
	if err := h.Seek(ms); err != nil {
		return miss(err)
	}

	img, err := h.DecodeFrame(ctx)
	if err != nil {
		return miss(err)
	}
	if len(img) == 0 {
		return miss(nil)
	}

	return Result{Artifact: &Artifact{ClipName: clipName, Offset: offsetSeconds, Image: img}}
}

// IsNoFrame reports whether a miss was caused by the position holding no
// frame, as opposed to the video failing to open.
func IsNoFrame(err error) bool {
	return errors.Is(err, ErrNoFrame)
}
