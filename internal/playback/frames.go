// Package playback serves published frame images over HTTP with byte-range
// support.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// FrameStore resolves an artifact id to a file on disk.
type FrameStore interface {
	Path(artifactID string) (string, bool)
}

type Server struct {
	store  FrameStore
	logger *slog.Logger
}

func NewServer(store FrameStore, logger *slog.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// ServeFrame writes the frame named by artifactID. Unknown or malformed ids
// are 404s. Artifacts never change once written, so responses are marked
// immutable.
func (s *Server) ServeFrame(w http.ResponseWriter, r *http.Request, artifactID string) error {
	path, ok := s.store.Path(artifactID)
	if !ok {
		http.Error(w, "frame not found", http.StatusNotFound)
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "frame not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open frame: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat frame: %w", err)
	}
	size := stat.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", "image/jpeg")
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	h.Set("ETag", strconv.Quote(artifactID))
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))

	if match := r.Header.Get("If-None-Match"); match != "" && match == h.Get("ETag") {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err != nil:
		// A malformed Range header is ignored and the whole frame is sent.
		rng = nil
	}

	start, length, status := int64(0), size, http.StatusOK
	if rng != nil {
		start, length, status = rng.Start, rng.Length(), http.StatusPartialContent
		h.Set("Content-Range", rng.ContentRange(size))
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return nil
	}

	started := time.Now()
	n, err := io.Copy(w, io.NewSectionReader(file, start, length))
	if err != nil {
		s.logger.Debug("frame write interrupted", "artifact_id", artifactID, "written", n, "error", err)
		return nil
	}
	s.logger.Debug("frame served", "artifact_id", artifactID, "bytes", n, "partial", rng != nil, "duration", time.Since(started))
	return nil
}
