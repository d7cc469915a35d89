package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"DATA_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8787 {
		t.Errorf("Port = %d, want 8787", cfg.Port)
	}
	if cfg.FrameRate != 24 {
		t.Errorf("FrameRate = %d, want 24", cfg.FrameRate)
	}
	if cfg.PublishDelay != time.Second {
		t.Errorf("PublishDelay = %v, want 1s", cfg.PublishDelay)
	}
	if cfg.RowHeightPx != 100 {
		t.Errorf("RowHeightPx = %d, want 100", cfg.RowHeightPx)
	}
	if cfg.StrictFormatting {
		t.Error("StrictFormatting should default to false")
	}
	if cfg.Publisher != PublisherDrive || cfg.TableWriter != TableWriterGoogle {
		t.Errorf("backends = %s/%s, want drive/google", cfg.Publisher, cfg.TableWriter)
	}
	if cfg.DBPath() != filepath.Join(dir, DBFilename) {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
	if cfg.GoogleToken != filepath.Join(dir, "google-token.json") {
		t.Errorf("GoogleToken = %q", cfg.GoogleToken)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.PublicBaseURL != "http://127.0.0.1:8787" {
		t.Errorf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
	if !cfg.NeedsGoogle() {
		t.Error("default backends need google credentials")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())
	t.Setenv(EnvPrefix+"PORT", "9000")
	t.Setenv(EnvPrefix+"FRAME_RATE", "25")
	t.Setenv(EnvPrefix+"PUBLISH_DELAY", "250ms")
	t.Setenv(EnvPrefix+"STRICT_FORMATTING", "true")
	t.Setenv(EnvPrefix+"PUBLISHER", "LOCAL")
	t.Setenv(EnvPrefix+"TABLE_WRITER", "csv")
	t.Setenv(EnvPrefix+"MAX_UPLOAD_MB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9000 || cfg.FrameRate != 25 {
		t.Errorf("port/frame rate = %d/%d", cfg.Port, cfg.FrameRate)
	}
	if cfg.PublishDelay != 250*time.Millisecond {
		t.Errorf("PublishDelay = %v", cfg.PublishDelay)
	}
	if !cfg.StrictFormatting {
		t.Error("StrictFormatting not read")
	}
	if cfg.Publisher != PublisherLocal {
		t.Errorf("Publisher = %q, want local", cfg.Publisher)
	}
	if cfg.NeedsGoogle() {
		t.Error("local+csv should not need google")
	}
	if cfg.MaxUploadBytes() != 2*1024*1024 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes())
	}
	if cfg.PublicBaseURL != "http://127.0.0.1:9000" {
		t.Errorf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"PORT":          "70000",
		"FRAME_RATE":    "0",
		"PUBLISHER":     "ftp",
		"TABLE_WRITER":  "xlsx",
		"ROW_HEIGHT_PX": "-1",
		"PUBLISH_DELAY": "soon",
		"LOG_FORMAT":    "xml",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())
			t.Setenv(EnvPrefix+key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
