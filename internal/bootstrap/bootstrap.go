// Package bootstrap provides dependency initialization for the audio2midi
// server and CLI.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/audio2midi/internal/audio"
	"github.com/maauso/audio2midi/internal/batch"
	"github.com/maauso/audio2midi/internal/config"
	"github.com/maauso/audio2midi/internal/inference"
	"github.com/maauso/audio2midi/internal/source"
	"github.com/maauso/audio2midi/internal/storage"
	"github.com/maauso/audio2midi/internal/transcribe"
)

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	Batches *batch.Service
	// Transcriber is shared by every batch and disposed on shutdown.
	Transcriber *transcribe.Adapter
	Storage     storage.Storage
}

// NewDependencies creates and initializes all dependencies for the application.
// opts are applied to the batch service.
func NewDependencies(cfg *config.Config, logger *slog.Logger, opts ...batch.ServiceOption) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := inference.NewClient(cfg.InferenceBaseURL, cfg.InferenceEndpointID,
		inference.WithAPIKey(cfg.InferenceAPIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("create inference client: %w", err)
	}

	model := transcribe.NewRemoteModel(client,
		transcribe.WithPollInterval(cfg.InferencePollInterval),
		transcribe.WithThresholds(inference.Thresholds{
			Onset:        cfg.OnsetThreshold,
			Frame:        cfg.FrameThreshold,
			MinNoteLenMS: cfg.MinNoteLengthMS,
		}),
		transcribe.WithLogger(logger),
	)
	adapter := transcribe.NewAdapter(model, cfg.ModelSampleRate, logger)

	normalizer := audio.NewNormalizer(
		audio.NewNativeDecoder(),
		audio.NewFFmpegTranscoder(cfg.FFmpegPath, store),
		logger,
	)

	if cfg.DownloadServiceURL == "" {
		logger.Warn("DOWNLOAD_SERVICE_URL not set, URL sources will fail")
	}
	downloader := source.NewDownloader(cfg.DownloadServiceURL)

	orch := batch.NewOrchestrator(downloader, normalizer, adapter, logger)
	svc := batch.NewService(batch.NewMemoryRepository(), orch, store, logger, opts...)

	return &Dependencies{
		Batches:     svc,
		Transcriber: adapter,
		Storage:     store,
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
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
		slog.String("output_dir", localStore.OutputDir()),
	)
	return localStore, nil
}
