package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// LocalPublisher writes frames under a directory served by the API's
// /frames/{id} route. Links are only public if PublicBaseURL is reachable by
// whoever renders the sheet.
type LocalPublisher struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

var artifactIDPattern = regexp.MustCompile(`^[0-9a-f-]{36}\.jpg$`)

func NewLocalPublisher(dir, publicBaseURL string, logger *slog.Logger) (*LocalPublisher, error) {
	if publicBaseURL == "" {
		return nil, errors.New("public base URL is required for local frames")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}
	return &LocalPublisher{
		dir:     dir,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:  logger,
	}, nil
}

func (p *LocalPublisher) Name() string { return "local" }

func (p *LocalPublisher) Publish(_ context.Context, image []byte, suggestedName string) (string, error) {
	if len(image) == 0 {
		return "", &Error{Op: "upload", Err: ErrEmptyImage}
	}

	id := uuid.NewString() + ".jpg"
	tmp, err := os.CreateTemp(p.dir, ".frame-*")
	if err != nil {
		return "", &Error{Op: "upload", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &Error{Op: "upload", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &Error{Op: "upload", Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", &Error{Op: "grant", Err: err}
	}
	if err := os.Rename(tmpName, filepath.Join(p.dir, id)); err != nil {
		os.Remove(tmpName)
		return "", &Error{Op: "upload", Err: err}
	}

	p.logger.Debug("frame published locally", "id", id, "name", suggestedName, "bytes", len(image))
	return id, nil
}

func (p *LocalPublisher) Link(_ context.Context, artifactID string) (string, error) {
	if !ValidArtifactID(artifactID) {
		return "", &Error{Op: "link", Err: fmt.Errorf("invalid artifact id %q", artifactID)}
	}
	return p.baseURL + "/frames/" + url.PathEscape(artifactID), nil
}

// Path returns the file backing a local artifact.
func (p *LocalPublisher) Path(artifactID string) (string, bool) {
	if !ValidArtifactID(artifactID) {
		return "", false
	}
	return filepath.Join(p.dir, artifactID), true
}

// ValidArtifactID reports whether id has the shape LocalPublisher generates.
// Anything else is rejected before touching the filesystem.
func ValidArtifactID(id string) bool {
	return artifactIDPattern.MatchString(id)
}
