package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/gsort/internal/backend"
	"github.com/born-ml/gsort/internal/config"
	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/logger"
	"github.com/born-ml/gsort/internal/registry"
)

// session is the device, registry and settings a command runs against.
type session struct {
	cfg  config.Config
	log  logger.Logger
	dev  device.Device
	reg  *registry.Registry
	mode device.MemoryMode
}

func (s *session) Close() {
	s.dev.Release()
}

// loadConfig reads the config file and applies flags over it.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if cmd.IsSet("backend") {
		cfg.Backend = backendName
	}
	if cmd.IsSet("search-root") {
		cfg.SearchRoot = searchRoot
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = logFormat
	}
	return cfg, cfg.Validate()
}

// open builds a session. memoryMode overrides the configured mode when set.
func open(ctx context.Context, cmd *cli.Command, memoryMode string) (context.Context, *session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return ctx, nil, err
	}
	if memoryMode != "" {
		cfg.MemoryMode = memoryMode
	}
	mode, err := device.ParseMemoryMode(cfg.MemoryMode)
	if err != nil {
		return ctx, nil, err
	}

	log := logger.Open(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	ctx = logger.WithContext(ctx, log)

	dev, err := backend.Open(cfg.Backend, backend.Options{
		Logger:         log,
		CPUWorkers:     cfg.CPUWorkers,
		CPUMemoryLimit: cfg.CPUMemoryLimit,
	})
	if err != nil {
		return ctx, nil, err
	}
	log.Info("device opened", "device", dev.Name(), "memory_mode", mode)

	// Kernels come from disk only when a search root is configured.
	var reg *registry.Registry
	if cfg.SearchRoot != "" || os.Getenv(config.SearchRootEnv) != "" {
		reg, err = registry.Default(dev, cfg.ResolveSearchRoot(), registry.WithLogger(log))
	} else {
		reg, err = registry.Embedded(dev, registry.WithLogger(log))
	}
	if err != nil {
		dev.Release()
		return ctx, nil, err
	}

	return ctx, &session{cfg: cfg, log: log, dev: dev, reg: reg, mode: mode}, nil
}

// reportMetrics returns the gathered metrics for a JSON report. A failed
// gather is logged and leaves the report without metrics.
func reportMetrics(log logger.Logger, gather func() (map[string]float64, error)) map[string]float64 {
	m, err := gather()
	if err != nil {
		log.Warn("gather metrics", "error", err)
		return nil
	}
	return m
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
