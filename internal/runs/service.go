package runs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heimdex/edl-indexer/internal/edl"
	"github.com/heimdex/edl-indexer/internal/indexer"
	"github.com/heimdex/edl-indexer/internal/logging"
	"github.com/heimdex/edl-indexer/internal/metrics"
)

// AuthTokenKey is the config key holding the API bearer token.
const AuthTokenKey = "auth_token"

// ErrRunNotPending is returned by Execute for a run another worker already
// picked up.
var ErrRunNotPending = errors.New("run is not pending")

// Indexer runs the EDL to sheet pipeline.
type Indexer interface {
	Run(ctx context.Context, req indexer.Request) (*indexer.Result, error)
}

// Submission is an uploaded EDL and video pair.
type Submission struct {
	SheetTitle string
	DocumentID string
	EDLName    string
	EDL        io.Reader
	VideoName  string
	Video      io.Reader
}

type Service struct {
	repo       Repository
	indexer    Indexer
	uploadsDir string
	documentID string
	logger     *slog.Logger
}

// NewService wires a run service. defaultDocumentID is used for runs that do
// not name a destination document.
func NewService(repo Repository, idx Indexer, uploadsDir, defaultDocumentID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:       repo,
		indexer:    idx,
		uploadsDir: uploadsDir,
		documentID: defaultDocumentID,
		logger:     logger,
	}
}

func (s *Service) Repository() Repository { return s.repo }

// Submit stores the uploads under the run's own directory and queues the run.
// The directory is removed once the run finishes.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Run, error) {
	if sub.EDL == nil || sub.Video == nil {
		return nil, fmt.Errorf("edl and video are required")
	}

	id := NewID()
	dir := filepath.Join(s.uploadsDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	edlPath, err := saveUpload(filepath.Join(dir, "edl"), uploadName(sub.EDLName, "cut.edl"), sub.EDL)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("store edl: %w", err)
	}
	videoPath, err := saveUpload(filepath.Join(dir, "video"), uploadName(sub.VideoName, "video.mp4"), sub.Video)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("store video: %w", err)
	}

	run, err := s.queue(ctx, id, edlPath, videoPath, sub.SheetTitle, sub.DocumentID)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return run, nil
}

// CreateRun queues a run over files already on disk.
func (s *Service) CreateRun(ctx context.Context, edlPath, videoPath, sheetTitle, documentID string) (*Run, error) {
	for _, p := range []string{edlPath, videoPath} {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("input not found: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("input is a directory: %s", p)
		}
	}
	return s.queue(ctx, NewID(), edlPath, videoPath, sheetTitle, documentID)
}

func (s *Service) queue(ctx context.Context, id, edlPath, videoPath, sheetTitle, documentID string) (*Run, error) {
	if documentID == "" {
		documentID = s.documentID
	}
	if documentID == "" {
		return nil, fmt.Errorf("document id is required")
	}

	fallback := strings.TrimSuffix(filepath.Base(edlPath), filepath.Ext(edlPath))
	title := edl.SheetTitle(sheetTitle, fallback)
	if title == "" {
		return nil, fmt.Errorf("sheet title is required")
	}

	now := time.Now()
	run := &Run{
		ID:         id,
		Status:     StatusPending,
		SheetTitle: title,
		DocumentID: documentID,
		EDLPath:    edlPath,
		VideoPath:  videoPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	s.logger.Info("run queued", "run_id", run.ID, "sheet_title", title, "document_id", documentID)
	return run, nil
}

// Execute runs a pending run to completion and records the outcome. The
// returned error is the pipeline's, after it has been stored on the run.
func (s *Service) Execute(ctx context.Context, run *Run) (*indexer.Result, error) {
	ok, err := s.repo.MarkRunning(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("mark running: %w", err)
	}
	if !ok {
		return nil, ErrRunNotPending
	}
	run.Status = StatusRunning

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	logger := logging.WithRunID(s.logger, run.ID)
	logger.Info("run started", "sheet_title", run.SheetTitle)
	defer s.removeUploads(logger, run)

	text, err := os.ReadFile(run.EDLPath)
	if err != nil {
		err = &indexer.StepError{Step: indexer.StepParse, Err: fmt.Errorf("read edl: %w", err)}
		s.fail(logger, run, err)
		return nil, err
	}

	observer := indexer.ObserverFunc(func(c indexer.ClipOutcome) {
		clip := &Clip{
			RunID:      run.ID,
			Index:      c.Index,
			Name:       c.Name,
			InPoint:    c.InPoint,
			Outcome:    string(c.Outcome),
			ArtifactID: c.ArtifactID,
			URL:        c.URL,
			Reason:     c.Reason,
			CreatedAt:  time.Now(),
		}
		// Background ctx so a cancelled run still records what it did.
		if err := s.repo.AddClip(context.Background(), clip); err != nil {
			logger.Warn("failed to record clip", "clip_index", c.Index, "error", err)
		}
	})

	result, err := s.indexer.Run(ctx, indexer.Request{
		EDLText:    string(text),
		VideoPath:  run.VideoPath,
		SheetTitle: run.SheetTitle,
		DocumentID: run.DocumentID,
		Observer:   observer,
	})
	if err != nil {
		s.fail(logger, run, err)
		return nil, err
	}

	completion := Completion{
		SheetID:         result.Sheet.ID,
		SheetURL:        result.SheetURL,
		ClipsTotal:      len(result.Clips),
		ClipsPublished:  result.Published(),
		FormattingError: result.FormattingError,
	}
	if err := s.repo.CompleteRun(context.Background(), run.ID, completion); err != nil {
		logger.Error("failed to record completion", "error", err)
	}
	run.Status = StatusCompleted
	sheetID := result.Sheet.ID
	run.SheetID = &sheetID
	run.SheetURL = result.SheetURL
	run.ClipsTotal = completion.ClipsTotal
	run.ClipsPublished = completion.ClipsPublished
	run.FormattingError = completion.FormattingError

	metrics.RunsTotal.WithLabelValues(StatusCompleted).Inc()
	logger.Info("run completed",
		"sheet_id", sheetID,
		"clips", completion.ClipsTotal,
		"published", completion.ClipsPublished,
	)
	return result, nil
}

func (s *Service) fail(logger *slog.Logger, run *Run, err error) {
	step := string(indexer.FailedStep(err))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		step = "cancelled"
	}
	if ferr := s.repo.FailRun(context.Background(), run.ID, step, err.Error()); ferr != nil {
		logger.Error("failed to record failure", "error", ferr)
	}
	run.Status = StatusFailed
	run.FailedStep = step
	run.Error = err.Error()

	metrics.RunsTotal.WithLabelValues(StatusFailed).Inc()
	logger.Error("run failed", "step", step, "error", err)
}

// RunNow queues and executes a run over local files in the calling goroutine.
func (s *Service) RunNow(ctx context.Context, edlPath, videoPath, sheetTitle, documentID string) (*Run, *indexer.Result, error) {
	run, err := s.CreateRun(ctx, edlPath, videoPath, sheetTitle, documentID)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.Execute(ctx, run)
	return run, result, err
}

func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	return s.repo.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListRuns(ctx, limit)
}

func (s *Service) ListClips(ctx context.Context, runID string) ([]*Clip, error) {
	return s.repo.ListClips(ctx, runID)
}

// EnsureAPIToken returns the bearer token guarding the API. A configured
// token replaces the stored one; otherwise a random token is generated once
// and kept in the config table.
func (s *Service) EnsureAPIToken(ctx context.Context, configured string) (string, error) {
	if configured != "" {
		if err := s.repo.SetConfig(ctx, AuthTokenKey, configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	existing, err := s.repo.GetConfig(ctx, AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := s.repo.SetConfig(ctx, AuthTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}

// removeUploads deletes the directory Submit stored the run's inputs in.
// Runs over caller owned files are left alone.
func (s *Service) removeUploads(logger *slog.Logger, run *Run) {
	dir := filepath.Join(s.uploadsDir, run.ID)
	rel, err := filepath.Rel(dir, run.EDLPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove uploads", "dir", dir, "error", err)
	}
}

func uploadName(name, fallback string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := strings.ReplaceAll(edl.SanitizeName(base, 120), " ", "_")
	if clean == "" || clean == "." || clean == ".." {
		return fallback
	}
	return clean
}

func saveUpload(dir, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
