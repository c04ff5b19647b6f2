package main

import (
	"github.com/urfave/cli/v3"

	"github.com/born-ml/gsort/internal/config"
)

var (
	configPath  string
	backendName string
	searchRoot  string
	logLevel    string
	logFormat   string
	jsonOutput  bool
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       config.Path(),
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "compute backend (auto, cpu, webgpu)",
			Destination: &backendName,
		},
		&cli.StringFlag{
			Name:        "search-root",
			Usage:       "directory holding sum.wgsl and sort.wgsl (default: embedded kernels)",
			Sources:     cli.EnvVars(config.SearchRootEnv),
			Destination: &searchRoot,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print results as JSON",
			Destination: &jsonOutput,
		},
	}
}

func memoryModeFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "memory-mode",
		Usage:       "memory mode of the input and output arrays (shared, managed)",
		Destination: dst,
	}
}
