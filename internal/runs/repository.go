package runs

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListPendingRuns(ctx context.Context) ([]*Run, error)
	CountRunsByStatus(ctx context.Context) (map[string]int, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	CompleteRun(ctx context.Context, id string, c Completion) error
	FailRun(ctx context.Context, id, step, errorMsg string) error

	AddClip(ctx context.Context, clip *Clip) error
	ListClips(ctx context.Context, runID string) ([]*Clip, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const runColumns = `id, status, sheet_title, document_id, edl_path, video_path, sheet_id, sheet_url,
	clips_total, clips_published, formatting_error, failed_step, error, created_at, updated_at`

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, sheet_title, document_id, edl_path, video_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Status, run.SheetTitle, run.DocumentID, run.EDLPath, run.VideoPath,
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	return r.queryRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

// ListPendingRuns returns queued runs oldest first.
func (r *SQLiteRepository) ListPendingRuns(ctx context.Context) ([]*Run, error) {
	return r.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY created_at ASC, rowid ASC`, StatusPending)
}

func (r *SQLiteRepository) queryRuns(ctx context.Context, query string, args ...any) ([]*Run, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CountRunsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// MarkRunning moves a pending run to running. It returns false if the run
// was not pending.
func (r *SQLiteRepository) MarkRunning(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusRunning, formatTime(time.Now()), id, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *SQLiteRepository) CompleteRun(ctx context.Context, id string, c Completion) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, sheet_id = ?, sheet_url = ?, clips_total = ?, clips_published = ?,
			formatting_error = ?, updated_at = ?
		WHERE id = ?
	`, StatusCompleted, c.SheetID, nullString(c.SheetURL), c.ClipsTotal, c.ClipsPublished,
		nullString(c.FormattingError), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) FailRun(ctx context.Context, id, step, errorMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, failed_step = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, nullString(step), errorMsg, formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) AddClip(ctx context.Context, c *Clip) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO run_clips (run_id, idx, name, in_point, outcome, artifact_id, url, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.RunID, c.Index, c.Name, c.InPoint, c.Outcome, nullString(c.ArtifactID), nullString(c.URL),
		nullString(c.Reason), formatTime(c.CreatedAt))
	return err
}

func (r *SQLiteRepository) ListClips(ctx context.Context, runID string) ([]*Clip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, idx, name, in_point, outcome, artifact_id, url, reason, created_at
		FROM run_clips WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		var c Clip
		var artifactID, url, reason sql.NullString
		var createdAt string
		if err := rows.Scan(&c.RunID, &c.Index, &c.Name, &c.InPoint, &c.Outcome, &artifactID, &url, &reason, &createdAt); err != nil {
			return nil, err
		}
		c.ArtifactID = artifactID.String
		c.URL = url.String
		c.Reason = reason.String
		c.CreatedAt = parseTime(createdAt)
		clips = append(clips, &c)
	}
	return clips, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var sheetID sql.NullInt64
	var sheetURL, formattingError, failedStep, errMsg sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&run.ID, &run.Status, &run.SheetTitle, &run.DocumentID, &run.EDLPath, &run.VideoPath,
		&sheetID, &sheetURL, &run.ClipsTotal, &run.ClipsPublished, &formattingError, &failedStep, &errMsg,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if sheetID.Valid {
		id := sheetID.Int64
		run.SheetID = &id
	}
	run.SheetURL = sheetURL.String
	run.FormattingError = formattingError.String
	run.FailedStep = failedStep.String
	run.Error = errMsg.String
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	return &run, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
