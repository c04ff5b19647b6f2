// Package config loads gsort settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SearchRootEnv names the environment variable that overrides the kernel
// source search root.
const SearchRootEnv = "REGISTRY_PATH"

// Config holds the settings shared by the CLI and library callers.
type Config struct {
	// SearchRoot is the directory kernel sources are loaded from.
	// Empty means REGISTRY_PATH, then the working directory.
	SearchRoot string `yaml:"search_root"`

	// Backend selects the device: "auto", "cpu" or "webgpu".
	Backend string `yaml:"backend"`

	// KeysPerThread is the number of consecutive keys one sort thread owns.
	KeysPerThread int `yaml:"keys_per_thread"`

	// MemoryMode is the mode for caller-visible buffers: "shared" or "managed".
	MemoryMode string `yaml:"memory_mode"`

	// CPUWorkers bounds the goroutines the software device fans out to.
	// Zero means one per CPU.
	CPUWorkers int `yaml:"cpu_workers"`

	// CPUMemoryLimit caps the bytes the software device will allocate.
	// Zero means unlimited.
	CPUMemoryLimit uint64 `yaml:"cpu_memory_limit"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:       "auto",
		KeysPerThread: 8,
		MemoryMode:    "shared",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Path returns the default config file location
// (~/.config/gsort/config.yaml), or "" if it cannot be determined.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gsort", "config.yaml")
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.Backend {
	case "", "auto", "cpu", "webgpu":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.KeysPerThread < 0 {
		return fmt.Errorf("keys_per_thread must be positive, got %d", c.KeysPerThread)
	}
	if c.CPUWorkers < 0 {
		return fmt.Errorf("cpu_workers must not be negative, got %d", c.CPUWorkers)
	}
	return nil
}

// ResolveSearchRoot returns the kernel search root: the configured value,
// else $REGISTRY_PATH, else ".".
func (c Config) ResolveSearchRoot() string {
	return ResolveSearchRoot(c.SearchRoot)
}

// ResolveSearchRoot applies the search root fallbacks to root.
func ResolveSearchRoot(root string) string {
	if root != "" {
		return root
	}
	if env := os.Getenv(SearchRootEnv); env != "" {
		return env
	}
	return "."
}
