package frame

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// DepInfo is the availability of one external tool.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities reports whether frames can be extracted on this host.
type Capabilities struct {
	FFmpeg    DepInfo   `json:"ffmpeg"`
	FFprobe   DepInfo   `json:"ffprobe"`
	HasFrames bool      `json:"has_frames"`
	ProbedAt  time.Time `json:"probed_at"`
}

// Prober runs a capability probe.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// ProbeTools runs "-version" on ffmpeg and ffprobe. Missing tools are
// reported in the result rather than as an error.
func ProbeTools(ctx context.Context, ffmpegPath, ffprobePath string, timeout time.Duration) *Capabilities {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	caps := &Capabilities{
		FFmpeg:   probeTool(ctx, ffmpegPath, "ffmpeg", timeout),
		FFprobe:  probeTool(ctx, ffprobePath, "ffprobe", timeout),
		ProbedAt: time.Now(),
	}
	caps.HasFrames = caps.FFmpeg.Available && caps.FFprobe.Available
	return caps
}

func probeTool(ctx context.Context, preferred, name string, timeout time.Duration) DepInfo {
	bin, err := resolveBinary(preferred, name)
	if err != nil {
		return DepInfo{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer
	res := runCommand(ctx, bin, []string{"-version"}, &out)
	if !res.IsSuccess() {
		return DepInfo{Path: bin, Error: truncate(res.StderrTail, 256)}
	}

	return DepInfo{Available: true, Path: bin, Version: parseVersion(out.String())}
}

// parseVersion pulls "6.1.1" out of "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(output string) string {
	line, _, _ := strings.Cut(output, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

// Probe reports the capabilities of the configured binaries.
func (r *FFmpegResource) Probe(ctx context.Context) (*Capabilities, error) {
	return ProbeTools(ctx, r.ffmpeg, r.ffprobe, r.cfg.Timeout), nil
}

// CachedDoctor caches probe results for a TTL so status requests do not spawn
// processes every time.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness. A failed probe
// falls back to the stale entry when there is one.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Probe(ctx)
	if err != nil {
		d.logger.Warn("ffmpeg probe failed", "error", err)
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}
