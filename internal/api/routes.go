package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/edl-indexer/internal/metrics"
	"github.com/heimdex/edl-indexer/internal/runs"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", metrics.Handler())

	// Frame URLs end up in public sheets, so they carry no auth.
	if cfg.Frames != nil {
		r.Get("/frames/{id}", frameHandler(cfg))
		r.Head("/frames/{id}", frameHandler(cfg))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/runs", submitRunHandler(cfg))
		r.Get("/runs", listRunsHandler(cfg))
		r.Get("/runs/{id}", getRunHandler(cfg))
		r.Get("/runs/{id}/clips", listClipsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		counts, err := cfg.Repository.CountRunsByStatus(ctx)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to count runs", CodeInternal)
			return
		}
		total := 0
		for _, n := range counts {
			total += n
		}

		resp := StatusResponse{
			State:       "idle",
			RunsPending: counts[runs.StatusPending],
			RunsTotal:   total,
			Publisher:   cfg.Publisher,
			TableWriter: cfg.TableWriter,
		}

		if latest, err := cfg.Repository.ListRuns(ctx, 1); err == nil && len(latest) == 1 && latest[0].Status == runs.StatusFailed {
			resp.State = "error"
			resp.LastError = latest[0].Error
		}
		if counts[runs.StatusRunning] > 0 {
			resp.State = "running"
		}
		if cfg.Runner != nil {
			resp.ActiveRunID = cfg.Runner.ActiveRunID()
			if cfg.Runner.IsPaused() {
				resp.State = "paused"
			}
		}

		// Peek only: a status poll must not block on an ffmpeg probe.
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				fs := &FrameStatusResponse{
					HasFrames:      caps.HasFrames,
					FFmpegVersion:  caps.FFmpeg.Version,
					FFprobeVersion: caps.FFprobe.Version,
				}
				if !caps.ProbedAt.IsZero() {
					fs.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
				}
				resp.Frames = fs
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Frames.ServeFrame(w, r, id); err != nil {
			cfg.Logger.Error("frame serve error", "error", err, "artifact_id", id)
			WriteError(w, http.StatusInternalServerError, "failed to serve frame", CodeInternal)
		}
	}
}
