package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/api/option"

	"github.com/heimdex/edl-indexer/internal/config"
	"github.com/heimdex/edl-indexer/internal/db"
	"github.com/heimdex/edl-indexer/internal/frame"
	"github.com/heimdex/edl-indexer/internal/google"
	"github.com/heimdex/edl-indexer/internal/indexer"
	"github.com/heimdex/edl-indexer/internal/logging"
	"github.com/heimdex/edl-indexer/internal/publish"
	"github.com/heimdex/edl-indexer/internal/runs"
	"github.com/heimdex/edl-indexer/internal/sheets"
)

// app holds everything index and serve share.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *db.DB
	repo     *runs.SQLiteRepository
	service  *runs.Service
	pipeline *indexer.Pipeline
	doctor   *frame.CachedDoctor
	backend  publish.Backend
	local    *publish.LocalPublisher // set when frames are published locally
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a, err := wireApp(ctx, cfg, logger, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return a, nil
}

func wireApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, database *db.DB) (*app, error) {
	var googleOpts []option.ClientOption
	if cfg.NeedsGoogle() {
		opts, err := google.ClientOptions(ctx, google.Config{
			CredentialsFile: cfg.GoogleCredentials,
			TokenFile:       cfg.GoogleToken,
			Logger:          logging.WithComponent(logger, "google"),
		})
		if err != nil {
			return nil, fmt.Errorf("google credentials: %w (run `edl-indexer auth` first)", err)
		}
		googleOpts = opts
	}

	backend, err := buildBackend(ctx, cfg, logger, googleOpts)
	if err != nil {
		return nil, err
	}
	tables, err := buildTables(ctx, cfg, logger, googleOpts)
	if err != nil {
		return nil, err
	}

	ffcfg := frame.FFmpegConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Timeout:     cfg.FrameTimeout,
		Logger:      logging.WithComponent(logger, "frame"),
	}
	frames := &lazyResource{cfg: ffcfg}
	doctor := frame.NewCachedDoctor(toolProber{cfg: cfg}, logging.WithComponent(logger, "doctor"))

	formatting := indexer.FormattingBestEffort
	if cfg.StrictFormatting {
		formatting = indexer.FormattingStrict
	}
	pipeline, err := indexer.New(indexer.Deps{
		Frames:    frame.NewExtractor(frames, logging.WithComponent(logger, "frame")),
		Publisher: backend,
		Linker:    backend,
		Tables:    tables,
		Backend:   backend.Name(),
		Logger:    logging.WithComponent(logger, "indexer"),
	}, indexer.Options{
		FrameRate:    cfg.FrameRate,
		PublishDelay: cfg.PublishDelay,
		RowHeightPx:  cfg.RowHeightPx,
		Formatting:   formatting,
	})
	if err != nil {
		return nil, err
	}

	repo := runs.NewRepository(database.Conn())
	service := runs.NewService(repo, pipeline, cfg.UploadsDir(), cfg.DocumentID, logging.WithComponent(logger, "runs"))

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       database,
		repo:     repo,
		service:  service,
		pipeline: pipeline,
		doctor:   doctor,
		backend:  backend,
	}
	if local, ok := backend.(*publish.LocalPublisher); ok {
		a.local = local
	}
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func buildBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, googleOpts []option.ClientOption) (publish.Backend, error) {
	logger = logging.WithComponent(logger, "publish")

	switch cfg.Publisher {
	case config.PublisherDrive:
		p, err := publish.NewDrivePublisher(ctx, cfg.DriveFolderID, logger, googleOpts...)
		if err != nil {
			return nil, err
		}
		return p, nil

	case config.PublisherMinIO:
		p, err := publish.NewMinIOPublisher(publish.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.MinIOBucket,
			Prefix:    cfg.MinIOPrefix,

			PublicBaseURL: cfg.MinIOPublicURL,
		}, logger)
		if err != nil {
			return nil, err
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := p.EnsureBucket(bucketCtx); err != nil {
			return nil, err
		}
		return p, nil

	case config.PublisherLocal:
		p, err := publish.NewLocalPublisher(cfg.FramesDir(), cfg.PublicBaseURL, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown publisher %q", cfg.Publisher)
}

func buildTables(ctx context.Context, cfg *config.Config, logger *slog.Logger, googleOpts []option.ClientOption) (sheets.TableWriter, error) {
	logger = logging.WithComponent(logger, "sheets")

	switch cfg.TableWriter {
	case config.TableWriterGoogle:
		w, err := sheets.NewGoogleWriter(ctx, logger, googleOpts...)
		if err != nil {
			return nil, err
		}
		return w, nil
	case config.TableWriterCSV:
		w, err := sheets.NewCSVWriter(cfg.SheetsDir(), logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	return nil, fmt.Errorf("unknown table writer %q", cfg.TableWriter)
}

// lazyResource resolves the ffmpeg binaries on first use, so serve can start
// before they are installed.
type lazyResource struct {
	cfg frame.FFmpegConfig

	mu  sync.Mutex
	res *frame.FFmpegResource
}

func (l *lazyResource) Open(ctx context.Context, path string) (frame.Handle, error) {
	l.mu.Lock()
	if l.res == nil {
		res, err := frame.NewFFmpegResource(l.cfg)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		l.res = res
	}
	res := l.res
	l.mu.Unlock()
	return res.Open(ctx, path)
}

// toolProber probes the configured tool paths, or PATH.
type toolProber struct {
	cfg *config.Config
}

func (p toolProber) Probe(ctx context.Context) (*frame.Capabilities, error) {
	return frame.ProbeTools(ctx, p.cfg.FFmpegPath, p.cfg.FFprobePath, p.cfg.FrameTimeout), nil
}
