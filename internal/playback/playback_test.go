package playback

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		size    int64
		want    *Range
		wantErr error
	}{
		{"no header", "", 1000, nil, nil},
		{"whole body", "bytes=0-999", 1000, &Range{0, 999}, nil},
		{"open end", "bytes=500-", 1000, &Range{500, 999}, nil},
		{"suffix", "bytes=-500", 1000, &Range{500, 999}, nil},
		{"suffix past start", "bytes=-2000", 500, &Range{0, 499}, nil},
		{"end clamped", "bytes=0-2000", 1000, &Range{0, 999}, nil},
		{"first of several", "bytes=0-99, 200-299", 1000, &Range{0, 99}, nil},
		{"start at size", "bytes=1000-", 1000, nil, ErrUnsatisfiable},
		{"start after end", "bytes=10-5", 1000, nil, ErrUnsatisfiable},
		{"empty body", "bytes=-5", 0, nil, ErrUnsatisfiable},
		{"wrong unit", "items=0-1", 1000, nil, ErrInvalidRange},
		{"no dash", "bytes=5", 1000, nil, ErrInvalidRange},
		{"bad start", "bytes=x-1", 1000, nil, ErrInvalidRange},
		{"bad end", "bytes=0-x", 1000, nil, ErrInvalidRange},
		{"zero suffix", "bytes=-0", 1000, nil, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			if err != tt.wantErr {
				t.Fatalf("ParseRange(%q) error = %v, want %v", tt.header, err, tt.wantErr)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("ParseRange(%q) = %+v, want nil", tt.header, *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("ParseRange(%q) = %v, want %+v", tt.header, got, *tt.want)
			}
		})
	}
}

func TestRange_LengthAndContentRange(t *testing.T) {
	r := Range{Start: 500, End: 999}
	if r.Length() != 500 {
		t.Errorf("Length() = %d, want 500", r.Length())
	}
	if got := r.ContentRange(1000); got != "bytes 500-999/1000" {
		t.Errorf("ContentRange() = %s", got)
	}
}

type mapStore map[string]string

func (m mapStore) Path(id string) (string, bool) {
	p, ok := m[id]
	return p, ok
}

func newFrameServer(t *testing.T, body string) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.jpg")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(mapStore{"f1.jpg": path, "gone.jpg": path + ".missing"}, logger), path
}

func serve(t *testing.T, s *Server, method, id string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/frames/"+id, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	if err := s.ServeFrame(rec, req, id); err != nil {
		t.Fatalf("ServeFrame() error = %v", err)
	}
	return rec
}

func TestServeFrame_Whole(t *testing.T) {
	s, _ := newFrameServer(t, "0123456789")
	rec := serve(t, s, http.MethodGet, "f1.jpg", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "0123456789" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %s", ct)
	}
	if rec.Header().Get("Content-Length") != "10" {
		t.Errorf("Content-Length = %s", rec.Header().Get("Content-Length"))
	}
}

func TestServeFrame_Partial(t *testing.T) {
	s, _ := newFrameServer(t, "0123456789")
	rec := serve(t, s, http.MethodGet, "f1.jpg", map[string]string{"Range": "bytes=2-4"})

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "234" {
		t.Errorf("body = %q, want 234", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-4/10" {
		t.Errorf("Content-Range = %s", got)
	}
}

func TestServeFrame_Unsatisfiable(t *testing.T) {
	s, _ := newFrameServer(t, "0123456789")
	rec := serve(t, s, http.MethodGet, "f1.jpg", map[string]string{"Range": "bytes=50-"})

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */10" {
		t.Errorf("Content-Range = %s", got)
	}
}

func TestServeFrame_MalformedRangeSendsWhole(t *testing.T) {
	s, _ := newFrameServer(t, "0123456789")
	rec := serve(t, s, http.MethodGet, "f1.jpg", map[string]string{"Range": "lines=1-2"})
	if rec.Code != http.StatusOK || rec.Body.Len() != 10 {
		t.Errorf("status = %d, body len = %d", rec.Code, rec.Body.Len())
	}
}

func TestServeFrame_HeadAndConditional(t *testing.T) {
	s, _ := newFrameServer(t, "0123456789")

	rec := serve(t, s, http.MethodHead, "f1.jpg", nil)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("HEAD status = %d, body len = %d", rec.Code, rec.Body.Len())
	}

	etag := rec.Header().Get("ETag")
	rec = serve(t, s, http.MethodGet, "f1.jpg", map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional status = %d, want 304", rec.Code)
	}
}

func TestServeFrame_NotFound(t *testing.T) {
	s, _ := newFrameServer(t, "x")
	for _, id := range []string{"unknown.jpg", "gone.jpg"} {
		if rec := serve(t, s, http.MethodGet, id, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", id, rec.Code)
		}
	}
}
