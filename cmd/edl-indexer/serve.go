package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/heimdex/edl-indexer/internal/api"
	"github.com/heimdex/edl-indexer/internal/config"
	"github.com/heimdex/edl-indexer/internal/logging"
	"github.com/heimdex/edl-indexer/internal/playback"
	"github.com/heimdex/edl-indexer/internal/runs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and process queued runs",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	startTime := time.Now()

	for _, dir := range []string{cfg.DataDir, cfg.UploadsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger.Info("starting edl-indexer",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir),
		"publisher", cfg.Publisher,
		"table_writer", cfg.TableWriter,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	authToken, err := a.service.EnsureAPIToken(ctx, cfg.APIToken)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	if caps, err := a.doctor.Refresh(ctx); err != nil {
		logger.Warn("initial ffmpeg probe failed", "error", err)
	} else if !caps.HasFrames {
		logger.Warn("ffmpeg or ffprobe missing, runs stay queued until they are installed",
			"ffmpeg_error", caps.FFmpeg.Error, "ffprobe_error", caps.FFprobe.Error)
	} else {
		logger.Info("frame extraction available", "ffmpeg", caps.FFmpeg.Version)
	}

	runner := runs.NewRunner(a.service, a.doctor, cfg.PollInterval, logging.WithComponent(logger, "runner"))

	var frames *playback.Server
	if a.local != nil {
		frames = playback.NewServer(a.local, logging.WithComponent(logger, "frames"))
	}

	apiServer := api.NewServer(api.ServerConfig{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        config.Version,
		Runs:           a.service,
		Repository:     a.repo,
		Runner:         runner,
		Doctor:         a.doctor,
		Frames:         frames,
		Publisher:      cfg.Publisher,
		TableWriter:    cfg.TableWriter,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logging.WithComponent(logger, "api"),
		StartTime:      startTime,
	})

	if err := apiServer.Listen(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  edl-indexer %s\n", config.Version)
	fmt.Fprintf(out, "  API URL:    http://%s\n", apiServer.Addr())
	fmt.Fprintf(out, "  Auth Token: %s\n", authToken)
	fmt.Fprintln(out)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runner.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", "error", err)
		}
		return nil
	})

	// A run in flight sees the cancelled context and is recorded as cancelled
	// before Wait returns.
	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
