package runs

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/heimdex/edl-indexer/internal/frame"
	"github.com/heimdex/edl-indexer/internal/logging"
)

// Runner polls for pending runs and executes them one at a time.
type Runner struct {
	service      *Service
	repo         Repository
	doctor       *frame.CachedDoctor
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
	active       atomic.Pointer[string]
}

// NewRunner builds a runner. doctor may be nil, in which case runs are not
// gated on ffmpeg availability.
func NewRunner(service *Service, doctor *frame.CachedDoctor, pollInterval time.Duration, logger *slog.Logger) *Runner {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Runner{
		service:      service,
		repo:         service.Repository(),
		doctor:       doctor,
		logger:       logger,
		pollInterval: pollInterval,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("run runner started", "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("run runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextRun(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("run runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("run runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ActiveRunID returns the id of the run being executed, if any.
func (r *Runner) ActiveRunID() string {
	if id := r.active.Load(); id != nil {
		return *id
	}
	return ""
}

// processNextRun executes the oldest pending run. It reports whether a run
// was picked up.
func (r *Runner) processNextRun(ctx context.Context) bool {
	pending, err := r.repo.ListPendingRuns(ctx)
	if err != nil {
		r.logger.Error("failed to list pending runs", "error", err)
		return false
	}
	if len(pending) == 0 {
		return false
	}

	run := pending[0]
	logger := logging.WithRunID(r.logger, run.ID)

	if r.doctor != nil {
		caps, err := r.doctor.Get(ctx)
		if err != nil || caps == nil || !caps.HasFrames {
			// Leave the run queued; the probe is retried after the cache expires.
			logger.Warn("frame extraction unavailable, run left pending", "error", err)
			return false
		}
	}

	r.active.Store(&run.ID)
	defer r.active.Store(nil)

	logger.Info("processing run", "sheet_title", run.SheetTitle)
	if _, err := r.service.Execute(ctx, run); err != nil {
		if errors.Is(err, ErrRunNotPending) {
			logger.Debug("run already taken")
			return false
		}
		logger.Error("run failed", "failed_step", run.FailedStep, "error", err)
	}
	return true
}
