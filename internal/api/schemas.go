package api

import (
	"time"

	"github.com/heimdex/edl-indexer/internal/runs"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State       string               `json:"state"`
	LastError   string               `json:"last_error,omitempty"`
	RunsPending int                  `json:"runs_pending"`
	RunsTotal   int                  `json:"runs_total"`
	ActiveRunID string               `json:"active_run_id,omitempty"`
	Publisher   string               `json:"publisher"`
	TableWriter string               `json:"table_writer"`
	Frames      *FrameStatusResponse `json:"frames,omitempty"`
}

type FrameStatusResponse struct {
	HasFrames      bool   `json:"has_frames"`
	FFmpegVersion  string `json:"ffmpeg_version,omitempty"`
	FFprobeVersion string `json:"ffprobe_version,omitempty"`
	LastProbeAt    string `json:"last_probe_at,omitempty"`
}

type SubmitRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type RunResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	SheetTitle      string `json:"sheet_title"`
	DocumentID      string `json:"document_id"`
	SheetID         *int64 `json:"sheet_id,omitempty"`
	SheetURL        string `json:"sheet_url,omitempty"`
	ClipsTotal      int    `json:"clips_total"`
	ClipsPublished  int    `json:"clips_published"`
	FormattingError string `json:"formatting_error,omitempty"`
	FailedStep      string `json:"failed_step,omitempty"`
	Error           string `json:"error,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type ClipResponse struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	InPoint    float64 `json:"in_point_seconds"`
	Outcome    string  `json:"outcome"`
	ArtifactID string  `json:"artifact_id,omitempty"`
	URL        string  `json:"url,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

type ClipsResponse struct {
	RunID string         `json:"run_id"`
	Clips []ClipResponse `json:"clips"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RunToResponse omits local file paths.
func RunToResponse(r *runs.Run) RunResponse {
	return RunResponse{
		ID:              r.ID,
		Status:          r.Status,
		SheetTitle:      r.SheetTitle,
		DocumentID:      r.DocumentID,
		SheetID:         r.SheetID,
		SheetURL:        r.SheetURL,
		ClipsTotal:      r.ClipsTotal,
		ClipsPublished:  r.ClipsPublished,
		FormattingError: r.FormattingError,
		FailedStep:      r.FailedStep,
		Error:           r.Error,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
}

func ClipToResponse(c *runs.Clip) ClipResponse {
	return ClipResponse{
		Index:      c.Index,
		Name:       c.Name,
		InPoint:    c.InPoint,
		Outcome:    c.Outcome,
		ArtifactID: c.ArtifactID,
		URL:        c.URL,
		Reason:     c.Reason,
	}
}
