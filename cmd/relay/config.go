package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/ingest"
	"github.com/DjordjeVuckovic/index-relay/internal/server"
	sinkfactory "github.com/DjordjeVuckovic/index-relay/internal/sink/factory"
	sourcefactory "github.com/DjordjeVuckovic/index-relay/internal/source/factory"
	"github.com/DjordjeVuckovic/index-relay/pkg/config/env"
)

func NewAppConfig() *AppConfig {
	return &AppConfig{
		ENV: os.Getenv("ENV"),
	}
}

type AppConfig struct {
	ENV string
}

type RelayConfig struct {
	Source   *sourcefactory.SourceConfig
	Sink     *sinkfactory.SinkConfig
	Server   *server.Config
	Pipeline ingest.Config
}

func (as *AppConfig) Load() (*RelayConfig, error) {
	if err := env.LoadDotEnv(as.ENV, "cmd/relay/.env"); err != nil {
		slog.Info("Skipping .env environment variables...", "error", err)
	}

	sourceCfg, err := sourcefactory.LoadEnv()
	if err != nil {
		return nil, err
	}

	sinkCfg, err := sinkfactory.LoadEnv()
	if err != nil {
		return nil, err
	}

	serverCfg, err := server.LoadConfig()
	if err != nil {
		slog.Error("Failed to load server configuration", "error", err)
		return nil, err
	}

	pipelineCfg, err := loadPipelineConfig()
	if err != nil {
		slog.Error("Failed to load pipeline configuration", "error", err)
		return nil, err
	}

	return &RelayConfig{
		Source:   sourceCfg,
		Sink:     sinkCfg,
		Server:   serverCfg,
		Pipeline: pipelineCfg,
	}, nil
}

// loadPipelineConfig starts from the defaults, applies PIPELINE_CONFIG_PATH when set
// and lets environment variables override both.
func loadPipelineConfig() (ingest.Config, error) {
	cfg := ingest.DefaultConfig()

	if path := os.Getenv("PIPELINE_CONFIG_PATH"); path != "" {
		var err error
		if cfg, err = ingest.LoadYAMLFile(path, cfg); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("PIPELINE_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("RELAY_MODE"); v != "" {
		cfg.Mode = ingest.Mode(v)
	}
	if v := os.Getenv("TARGET_INDEX"); v != "" {
		cfg.Target.Index = v
	}
	if v := os.Getenv("TARGET_TYPE"); v != "" {
		cfg.Target.Type = v
	}
	if v := os.Getenv("RESUME_AFTER"); v != "" {
		cfg.ResumeAfter = v
	}

	var errs []error
	intVar := func(key string, dst *int) {
		n, err := env.Int(key, *dst)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = n
	}
	intVar("PAGE_SIZE", &cfg.PageSize)
	intVar("MAX_RECORDS", &cfg.MaxRecords)
	intVar("BODY_MAX_SIZE", &cfg.BodyMaxSize)
	intVar("FLUSH_INTERVAL_MS", &cfg.FlushIntervalMs)

	skip, err := env.Bool("SKIP_INVALID", cfg.SkipInvalid)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.SkipInvalid = skip

	if v := os.Getenv("EVENT_KINDS"); v != "" {
		kinds, err := domain.ParseChangeKinds(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.EventKinds = kinds
		}
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
