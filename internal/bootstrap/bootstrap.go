// Package bootstrap wires the slideshow renderer's dependencies from config.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/slideshow/internal/config"
	"github.com/maauso/slideshow/internal/encoder"
	"github.com/maauso/slideshow/internal/job"
	"github.com/maauso/slideshow/internal/media"
	"github.com/maauso/slideshow/internal/render"
	"github.com/maauso/slideshow/internal/storage"
)

// Dependencies holds all initialized dependencies for the CLI and HTTP server.
type Dependencies struct {
	Service  *render.Service
	Pipeline *render.Pipeline
	Storage  storage.Storage
	Repo     job.Repository
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = slog.Default()
	}

	canvas, err := cfg.Canvas()
	if err != nil {
		return nil, fmt.Errorf("output resolution: %w", err)
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	prober := media.NewFFmpegProber(cfg.FFmpegPath, cfg.FFprobePath, logger)
	enc := encoder.NewFFmpegEncoder(cfg.FFmpegPath, encoder.WithLogger(logger))
	repo := job.NewMemoryRepository()

	pipeline := render.NewPipeline(prober, enc, store,
		render.WithRepository(repo),
		render.WithLogger(logger),
		render.WithVerify(cfg.VerifyAttempts, cfg.VerifyInterval),
	)

	defaults := render.Defaults{
		Canvas:           canvas,
		TransitionSec:    cfg.TransitionSec,
		ImageDurationSec: cfg.ImageDurationSec,
	}
	svc := render.NewService(pipeline, repo, store, defaults, logger)

	return &Dependencies{
		Service:  svc,
		Pipeline: pipeline,
		Storage:  store,
		Repo:     repo,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}
