package frame

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// FFmpegConfig locates the ffmpeg tools and bounds each invocation.
type FFmpegConfig struct {
	FFmpegPath  string        // empty = look up "ffmpeg" on PATH
	FFprobePath string        // empty = look up "ffprobe" on PATH
	Timeout     time.Duration // per ffprobe/ffmpeg call
	Quality     int           // mjpeg -q:v, 2 (best) .. 31
	Logger      *slog.Logger
}

// FFmpegResource decodes frames by shelling out to ffprobe and ffmpeg.
// Handles are cheap: every decode is a separate ffmpeg process.
type FFmpegResource struct {
	cfg     FFmpegConfig
	ffmpeg  string
	ffprobe string
}

// NewFFmpegResource resolves the ffmpeg and ffprobe binaries.
func NewFFmpegResource(cfg FFmpegConfig) (*FFmpegResource, error) {
	ffmpeg, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cfg.Logger.Info("ffmpeg resource initialised", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	return &FFmpegResource{cfg: cfg, ffmpeg: ffmpeg, ffprobe: ffprobe}, nil
}

// Open checks that path is a readable video and records its duration.
func (r *FFmpegResource) Open(ctx context.Context, path string) (Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open video: %s is a directory", path)
	}

	duration, err := r.probeDuration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}

	return &ffmpegHandle{res: r, path: path, durationMs: int64(duration * 1000)}, nil
}

func (r *FFmpegResource) probeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var out bytes.Buffer
	res := runCommand(ctx, r.ffprobe, []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}, &out)
	if !res.IsSuccess() {
		return 0, fmt.Errorf("ffprobe exited %d: %s", res.ExitCode, truncate(res.StderrTail, 512))
	}

	raw := strings.TrimSpace(out.String())
	if raw == "" || raw == "N/A" {
		// Streams without a container duration still decode; skip the bound.
		return 0, nil
	}
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return duration, nil
}

type ffmpegHandle struct {
	res        *FFmpegResource
	path       string
	durationMs int64 // 0 when unknown
	posMs      int64
	closed     bool
}

func (h *ffmpegHandle) Seek(ms int64) error {
	if h.closed {
		return ErrClosed
	}
	if ms < 0 {
		return fmt.Errorf("seek to negative offset %dms", ms)
	}
	h.posMs = ms
	return nil
}

func (h *ffmpegHandle) DecodeFrame(ctx context.Context) ([]byte, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if h.durationMs > 0 && h.posMs >= h.durationMs {
		return nil, fmt.Errorf("%w: offset %dms beyond duration %dms", ErrNoFrame, h.posMs, h.durationMs)
	}

	ctx, cancel := context.WithTimeout(ctx, h.res.cfg.Timeout)
	defer cancel()

	var out bytes.Buffer
	res := runCommand(ctx, h.res.ffmpeg, []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(float64(h.posMs)/1000.0, 'f', 3, 64),
		"-i", h.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", strconv.Itoa(h.res.cfg.Quality),
		"pipe:1",
	}, &out)

	if !res.IsSuccess() {
		h.res.cfg.Logger.Warn("ffmpeg decode failed",
			"exit_code", res.ExitCode,
			"offset_ms", h.posMs,
			"duration_ms", res.Duration.Milliseconds(),
			"stderr_tail", truncate(res.StderrTail, 512),
		)
		return nil, fmt.Errorf("%w: ffmpeg exited %d", ErrNoFrame, res.ExitCode)
	}

	img := out.Bytes()
	if !isJPEG(img) {
		return nil, fmt.Errorf("%w: empty or non-jpeg output at %dms", ErrNoFrame, h.posMs)
	}
	return img, nil
}

func (h *ffmpegHandle) Close() error {
	h.closed = true
	return nil
}

func isJPEG(b []byte) bool {
	return len(b) > 2 && b[0] == 0xFF && b[1] == 0xD8
}
