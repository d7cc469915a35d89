// Package publish uploads frame images somewhere publicly readable and turns
// the stored artifact into a link a spreadsheet can render.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Publisher stores an image and makes it publicly readable in one step.
type Publisher interface {
	Publish(ctx context.Context, image []byte, suggestedName string) (artifactID string, err error)
}

// Linker resolves a published artifact to a stable public URL.
type Linker interface {
	Link(ctx context.Context, artifactID string) (string, error)
}

// Backend is a publisher that also knows how to link its own artifacts.
type Backend interface {
	Publisher
	Linker
	Name() string
}

// Error reports a failed call against a storage backend.
type Error struct {
	Op         string // "upload", "grant", "link"
	StatusCode int    // HTTP status when known
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("publish %s failed: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("publish %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable returns true for server errors (5xx), rate limiting (429) and
// failures without a status (network errors). Other client errors are
// permanent.
func (e *Error) IsRetryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ErrEmptyImage is returned when asked to publish zero bytes.
var ErrEmptyImage = errors.New("empty image")

const imageContentType = "image/jpeg"
