// Package config loads edl-indexer settings from EDL_INDEXER_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	EnvPrefix      = "EDL_INDEXER_"
	DefaultDataDir = ".edl-indexer"
	DBFilename     = "edl-indexer.db"
)

// Publisher backends.
const (
	PublisherDrive = "drive"
	PublisherMinIO = "minio"
	PublisherLocal = "local"
)

// Table writer backends.
const (
	TableWriterGoogle = "google"
	TableWriterCSV    = "csv"
)

type Config struct {
	Host     string `env:"HOST"      envDefault:"127.0.0.1"`
	Port     int    `env:"PORT"      envDefault:"8787"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat is json or text.
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	DataDir   string `env:"DATA_DIR"`
	// APIToken guards the bearer-auth routes; generated and stored in the
	// database when empty.
	APIToken string `env:"API_TOKEN"`

	FrameRate        int           `env:"FRAME_RATE"        envDefault:"24"`
	PublishDelay     time.Duration `env:"PUBLISH_DELAY"     envDefault:"1s"`
	RowHeightPx      int64         `env:"ROW_HEIGHT_PX"     envDefault:"100"`
	StrictFormatting bool          `env:"STRICT_FORMATTING" envDefault:"false"`
	DocumentID       string        `env:"DOCUMENT_ID"`

	Publisher   string `env:"PUBLISHER"    envDefault:"drive"`
	TableWriter string `env:"TABLE_WRITER" envDefault:"google"`

	GoogleCredentials string `env:"GOOGLE_CREDENTIALS"`
	GoogleToken       string `env:"GOOGLE_TOKEN"`
	DriveFolderID     string `env:"DRIVE_FOLDER_ID"`

	MinIOEndpoint  string `env:"MINIO_ENDPOINT"   envDefault:"localhost:9000"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL"    envDefault:"false"`
	MinIOBucket    string `env:"MINIO_BUCKET"     envDefault:"edl-frames"`
	MinIOPrefix    string `env:"MINIO_PREFIX"     envDefault:"frames"`
	// MinIOPublicURL replaces the endpoint in frame links, e.g. a CDN.
	MinIOPublicURL string `env:"MINIO_PUBLIC_URL"`

	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	FFmpegPath   string        `env:"FFMPEG_PATH"`
	FFprobePath  string        `env:"FFPROBE_PATH"`
	FrameTimeout time.Duration `env:"FRAME_TIMEOUT" envDefault:"30s"`

	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"4096"`
}

// Load parses the environment, fills derived defaults and validates.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.GoogleToken == "" {
		cfg.GoogleToken = filepath.Join(cfg.DataDir, "google-token.json")
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.Publisher = strings.ToLower(cfg.Publisher)
	cfg.TableWriter = strings.ToLower(cfg.TableWriter)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid %sPORT: port must be between 1 and 65535", EnvPrefix)
	}
	if c.Host == "" {
		return fmt.Errorf("invalid %sHOST: must not be empty", EnvPrefix)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid %sLOG_FORMAT %q: want json or text", EnvPrefix, c.LogFormat)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("invalid %sFRAME_RATE: must be positive", EnvPrefix)
	}
	if c.PublishDelay < 0 {
		return fmt.Errorf("invalid %sPUBLISH_DELAY: must not be negative", EnvPrefix)
	}
	if c.RowHeightPx <= 0 {
		return fmt.Errorf("invalid %sROW_HEIGHT_PX: must be positive", EnvPrefix)
	}
	switch c.Publisher {
	case PublisherDrive, PublisherMinIO, PublisherLocal:
	default:
		return fmt.Errorf("invalid %sPUBLISHER %q: want drive, minio or local", EnvPrefix, c.Publisher)
	}
	switch c.TableWriter {
	case TableWriterGoogle, TableWriterCSV:
	default:
		return fmt.Errorf("invalid %sTABLE_WRITER %q: want google or csv", EnvPrefix, c.TableWriter)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid %sMAX_UPLOAD_MB: must be positive", EnvPrefix)
	}
	return nil
}

// NeedsGoogle reports whether any configured backend talks to Google APIs.
func (c *Config) NeedsGoogle() bool {
	return c.Publisher == PublisherDrive || c.TableWriter == TableWriterGoogle
}

// DBPath returns the full path to the SQLite database file
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFilename)
}

// FramesDir holds frames written by the local publisher.
func (c *Config) FramesDir() string {
	return filepath.Join(c.DataDir, "frames")
}

// SheetsDir holds CSV sheets.
func (c *Config) SheetsDir() string {
	return filepath.Join(c.DataDir, "sheets")
}

// UploadsDir holds EDL and video files received over HTTP.
func (c *Config) UploadsDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
