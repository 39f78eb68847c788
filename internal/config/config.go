// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInferenceAPIKeyRequired is returned when INFERENCE_API_KEY is not set.
	ErrInferenceAPIKeyRequired = errors.New("config: INFERENCE_API_KEY is required")
	// ErrInferenceEndpointIDRequired is returned when INFERENCE_ENDPOINT_ID is not set.
	ErrInferenceEndpointIDRequired = errors.New("config: INFERENCE_ENDPOINT_ID is required")
	// ErrInvalidSampleRate is returned when MODEL_SAMPLE_RATE is not positive.
	ErrInvalidSampleRate = errors.New("config: MODEL_SAMPLE_RATE must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Inference endpoint settings
	InferenceAPIKey       string        `env:"INFERENCE_API_KEY, required" json:"-"` // Masked in JSON
	InferenceEndpointID   string        `env:"INFERENCE_ENDPOINT_ID, required" json:"inference_endpoint_id"`
	InferenceBaseURL      string        `env:"INFERENCE_BASE_URL, default=https://api.runpod.ai/v2" json:"inference_base_url"`
	InferencePollInterval time.Duration `env:"INFERENCE_POLL_INTERVAL, default=2s" json:"inference_poll_interval"`

	// Model settings
	ModelSampleRate int     `env:"MODEL_SAMPLE_RATE, default=22050" json:"model_sample_rate"`
	OnsetThreshold  float64 `env:"ONSET_THRESHOLD, default=0.5" json:"onset_threshold"`
	FrameThreshold  float64 `env:"FRAME_THRESHOLD, default=0.3" json:"frame_threshold"`
	MinNoteLengthMS float64 `env:"MIN_NOTE_LENGTH_MS, default=58" json:"min_note_length_ms"`

	// Finished batches are dropped from memory after BatchRetention. Zero
	// keeps them forever.
	BatchRetention     time.Duration `env:"BATCH_RETENTION, default=1h" json:"batch_retention"`
	BatchSweepInterval time.Duration `env:"BATCH_SWEEP_INTERVAL, default=5m" json:"batch_sweep_interval"`

	// Source acquisition
	DownloadServiceURL string `env:"DOWNLOAD_SERVICE_URL" json:"download_service_url,omitempty"`

	// Storage settings
	TempDir   string `env:"TEMP_DIR, default=/tmp/audio2midi" json:"temp_dir"`
	OutputDir string `env:"OUTPUT_DIR" json:"output_dir,omitempty"`

	// Decoding
	FFmpegPath string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: lookuper}); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "INFERENCE_API_KEY") {
			return nil, ErrInferenceAPIKeyRequired
		}
		if strings.Contains(err.Error(), "INFERENCE_ENDPOINT_ID") {
			return nil, ErrInferenceEndpointIDRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.InferenceAPIKey == "" {
		return ErrInferenceAPIKeyRequired
	}
	if c.InferenceEndpointID == "" {
		return ErrInferenceEndpointIDRequired
	}
	if c.ModelSampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, InferenceEndpointID: %s, ModelSampleRate: %d, TempDir: %s, OutputDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.InferenceEndpointID,
		c.ModelSampleRate,
		c.TempDir,
		c.OutputDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
