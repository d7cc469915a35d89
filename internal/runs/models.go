// Package runs records pipeline runs in SQLite and executes queued runs in
// the background.
package runs

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one submission of an EDL and its video.
type Run struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	SheetTitle      string    `json:"sheet_title"`
	DocumentID      string    `json:"document_id"`
	EDLPath         string    `json:"edl_path"`
	VideoPath       string    `json:"video_path"`
	SheetID         *int64    `json:"sheet_id,omitempty"`
	SheetURL        string    `json:"sheet_url,omitempty"`
	ClipsTotal      int       `json:"clips_total"`
	ClipsPublished  int       `json:"clips_published"`
	FormattingError string    `json:"formatting_error,omitempty"`
	FailedStep      string    `json:"failed_step,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Clip is the persisted outcome of one clip of a run.
type Clip struct {
	RunID      string    `json:"run_id"`
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	InPoint    float64   `json:"in_point_seconds"`
	Outcome    string    `json:"outcome"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Completion is what a successful run writes back.
type Completion struct {
	SheetID         int64
	SheetURL        string
	ClipsTotal      int
	ClipsPublished  int
	FormattingError string
}

func NewID() string {
	return uuid.NewString()
}
