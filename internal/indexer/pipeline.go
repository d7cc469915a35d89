// Package indexer turns an EDL and its rendered video into a sheet of clip
// frames.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/heimdex/edl-indexer/internal/edl"
	"github.com/heimdex/edl-indexer/internal/frame"
	"github.com/heimdex/edl-indexer/internal/logging"
	"github.com/heimdex/edl-indexer/internal/metrics"
	"github.com/heimdex/edl-indexer/internal/publish"
	"github.com/heimdex/edl-indexer/internal/sheets"
)

// Header is the first row of every output table.
var Header = []string{"Image", "Filename"}

// FormattingPolicy decides what a failed row-height request does to a run.
type FormattingPolicy int

const (
	// FormattingBestEffort logs the failure and keeps the run successful.
	FormattingBestEffort FormattingPolicy = iota
	// FormattingStrict fails the run.
	FormattingStrict
)

func (p FormattingPolicy) String() string {
	if p == FormattingStrict {
		return "strict"
	}
	return "best_effort"
}

const (
	DefaultFrameRate    = 24
	DefaultPublishDelay = time.Second
	DefaultRowHeightPx  = 100
)

// FrameSource grabs one frame for a clip. *frame.Extractor implements it.
type FrameSource interface {
	Extract(ctx context.Context, videoPath, clipName string, offsetSeconds float64) frame.Result
}

type Options struct {
	FrameRate    int
	PublishDelay time.Duration
	RowHeightPx  int64
	Formatting   FormattingPolicy
}

func (o Options) withDefaults() Options {
	if o.FrameRate <= 0 {
		o.FrameRate = DefaultFrameRate
	}
	if o.PublishDelay < 0 {
		o.PublishDelay = 0
	}
	if o.RowHeightPx <= 0 {
		o.RowHeightPx = DefaultRowHeightPx
	}
	return o
}

type Deps struct {
	Frames    FrameSource
	Publisher publish.Publisher
	Linker    publish.Linker
	Tables    sheets.TableWriter
	// Backend labels publish failure metrics.
	Backend string
	Logger  *slog.Logger
}

// Pipeline runs EDLs one at a time. Each Run gets its own publish limiter,
// so the first publish of a run never waits on a previous run.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Frames == nil || deps.Publisher == nil || deps.Linker == nil || deps.Tables == nil {
		return nil, errors.New("indexer: frames, publisher, linker and tables are required")
	}
	opts = opts.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logger,
	}, nil
}

// newLimiter spaces publishes by PublishDelay with the first one immediate.
func (p *Pipeline) newLimiter() *rate.Limiter {
	limit := rate.Inf
	if p.opts.PublishDelay > 0 {
		limit = rate.Every(p.opts.PublishDelay)
	}
	return rate.NewLimiter(limit, 1)
}

func (p *Pipeline) Options() Options { return p.opts }

// Observer receives each clip outcome as soon as it is known.
type Observer interface {
	OnClip(ClipOutcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ClipOutcome)

func (f ObserverFunc) OnClip(c ClipOutcome) { f(c) }

type Request struct {
	EDLText    string
	VideoPath  string
	SheetTitle string
	DocumentID string
	Observer   Observer
}

type Outcome string

const (
	OutcomePublished     Outcome = "published"
	OutcomeFrameMiss     Outcome = "frame_miss"
	OutcomePublishFailed Outcome = "publish_failed"
)

// ClipOutcome records what happened to one parsed clip.
type ClipOutcome struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	InPoint    float64 `json:"in_point_seconds"`
	Outcome    Outcome `json:"outcome"`
	ArtifactID string  `json:"artifact_id,omitempty"`
	URL        string  `json:"url,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

type Result struct {
	DocumentID      string        `json:"document_id"`
	Sheet           sheets.Sheet  `json:"sheet"`
	SheetURL        string        `json:"sheet_url,omitempty"`
	Rows            [][]string    `json:"rows"`
	Clips           []ClipOutcome `json:"clips"`
	FormattingError string        `json:"formatting_error,omitempty"`
}

// Published counts clips that made it into the table.
func (r *Result) Published() int {
	n := 0
	for _, c := range r.Clips {
		if c.Outcome == OutcomePublished {
			n++
		}
	}
	return n
}

// Skipped counts clips left out of the table.
func (r *Result) Skipped() int {
	return len(r.Clips) - r.Published()
}

// Run parses the EDL, publishes a frame per clip and writes the table to a
// new sheet. Clip-level failures drop the clip's row; parse and table-write
// failures are returned as *StepError. Nothing is deduplicated: every call
// publishes fresh artifacts and adds a new sheet.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	logger := p.logger.With("sheet_title", req.SheetTitle, "document_id", req.DocumentID)

	parseStart := time.Now()
	clips, err := edl.Parse(req.EDLText, p.opts.FrameRate)
	observeStage("parse", parseStart)
	if err != nil {
		return nil, &StepError{Step: StepParse, Err: err}
	}
	logger.Info("edl parsed", "clips", len(clips), "frame_rate", p.opts.FrameRate)

	table := [][]string{append([]string(nil), Header...)}
	outcomes := make([]ClipOutcome, 0, len(clips))
	limiter := p.newLimiter()

	for i, clip := range clips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out := p.processClip(ctx, logger, limiter, req.VideoPath, i, clip)
		outcomes = append(outcomes, out)
		metrics.ClipsTotal.WithLabelValues(string(out.Outcome)).Inc()
		if req.Observer != nil {
			req.Observer.OnClip(out)
		}

		if out.Outcome == OutcomePublished {
			table = append(table, []string{sheets.ImageFormula(out.URL), clip.Name})
		}
	}

	result := &Result{
		DocumentID: req.DocumentID,
		Rows:       table,
		Clips:      outcomes,
	}

	writeStart := time.Now()
	sheet, err := p.deps.Tables.CreateSheet(ctx, req.DocumentID, req.SheetTitle)
	if err != nil {
		return nil, p.tableFailed(logger, StepCreateSheet, err)
	}
	result.Sheet = sheet

	if err := p.deps.Tables.WriteRange(ctx, req.DocumentID, sheet, "A1", table); err != nil {
		return nil, p.tableFailed(logger, StepWriteRange, err)
	}
	observeStage("write_table", writeStart)

	// The header counts toward "more than one row", so a single data row is
	// still formatted.
	if len(table) > 1 {
		rows := sheets.RowRange{Start: 1, End: int64(len(table))}
		if err := p.deps.Tables.SetRowHeight(ctx, req.DocumentID, sheet, rows, p.opts.RowHeightPx); err != nil {
			ferr := fmt.Errorf("%w: %w", ErrFormatting, err)
			if p.opts.Formatting == FormattingStrict {
				return nil, &StepError{Step: StepFormatRows, Err: ferr}
			}
			logger.Warn("row height not applied", "error", err, "rows", rows.End-rows.Start)
			result.FormattingError = ferr.Error()
		}
	}

	if loc, ok := p.deps.Tables.(sheets.Locator); ok {
		result.SheetURL = loc.SheetURL(req.DocumentID, sheet)
	}

	logger.Info("sheet written",
		"sheet_id", sheet.ID,
		"rows", len(table)-1,
		"skipped", result.Skipped(),
	)
	return result, nil
}

func (p *Pipeline) processClip(ctx context.Context, logger *slog.Logger, limiter *rate.Limiter, videoPath string, index int, clip edl.ClipRecord) ClipOutcome {
	out := ClipOutcome{Index: index, Name: clip.Name, InPoint: clip.InPoint}
	clipLog := logging.WithClip(logger, index, clip.Name, clip.InPoint)

	extractStart := time.Now()
	res := p.deps.Frames.Extract(ctx, videoPath, clip.Name, clip.InPoint)
	observeStage("extract", extractStart)
	if res.Missed() {
		out.Outcome = OutcomeFrameMiss
		out.Reason = res.Miss.Error()
		kind := "error"
		if frame.IsNoFrame(res.Miss) {
			kind = "no_frame"
		}
		metrics.FrameMissesTotal.WithLabelValues(kind).Inc()
		clipLog.Warn("clip skipped: no frame", "reason", out.Reason, "kind", kind)
		return out
	}

	if err := limiter.Wait(ctx); err != nil {
		out.Outcome = OutcomePublishFailed
		out.Reason = err.Error()
		clipLog.Warn("clip skipped: publish wait aborted", "error", err)
		return out
	}

	publishStart := time.Now()
	id, err := p.deps.Publisher.Publish(ctx, res.Artifact.Image, edl.FrameName(index, clip.Name))
	if err != nil {
		p.publishFailed(clipLog, &out, "publish", err)
		return out
	}

	url, err := p.deps.Linker.Link(ctx, id)
	observeStage("publish", publishStart)
	if err != nil {
		out.ArtifactID = id
		p.publishFailed(clipLog, &out, "link", err)
		return out
	}

	out.Outcome = OutcomePublished
	out.ArtifactID = id
	out.URL = url
	clipLog.Debug("clip published", "artifact_id", id)
	return out
}

func (p *Pipeline) publishFailed(logger *slog.Logger, out *ClipOutcome, op string, err error) {
	out.Outcome = OutcomePublishFailed
	out.Reason = err.Error()

	retryable := false
	var perr *publish.Error
	if errors.As(err, &perr) {
		retryable = perr.IsRetryable()
	}
	metrics.PublishFailuresTotal.WithLabelValues(p.deps.Backend, strconv.FormatBool(retryable)).Inc()
	logger.Warn("clip skipped: "+op+" failed", "error", err, "retryable", retryable)
}

func (p *Pipeline) tableFailed(logger *slog.Logger, step Step, err error) error {
	status := sheets.StatusCode(err)
	metrics.TableFailuresTotal.WithLabelValues(string(step), strconv.Itoa(status)).Inc()
	logger.Error("table write failed", "step", step, "status", status, "error", err)
	return &StepError{Step: step, Err: fmt.Errorf("%w: %w", ErrTableWrite, err)}
}

func observeStage(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
