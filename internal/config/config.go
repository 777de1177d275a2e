// Package config provides configuration for the groove driver.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"groove/explore"
	"groove/lts"
	"groove/rule"
)

// Config holds driver configuration.
type Config struct {
	// Collapse is the state collapse mode (none, equal, iso-weak, iso-strong).
	Collapse string `yaml:"collapse"`
	// FreezeBound is the replay depth beyond which graphs are frozen.
	FreezeBound int `yaml:"freeze_bound"`
	// CompressFrozen stores frozen graphs zstd-compressed.
	CompressFrozen bool `yaml:"compress_frozen"`
	// TypeCheck, PropertyCheck and DeadlockCheck are check policies
	// (off, silent, error, remove).
	TypeCheck     string `yaml:"type_check"`
	PropertyCheck string `yaml:"property_check"`
	DeadlockCheck string `yaml:"deadlock_check"`
	// CheckDangling rejects matches that would leave dangling edges.
	CheckDangling bool `yaml:"check_dangling"`
	// Injective forces injective matching.
	Injective bool `yaml:"injective"`
	// Strategy is the exploration strategy (bfs, dfs, linear).
	Strategy string `yaml:"strategy"`
	// MaxStates bounds the state space; 0 means unbounded.
	MaxStates int `yaml:"max_states"`
	// Workers bounds parallel explorations.
	Workers int `yaml:"workers"`
	// LogLevel is a zap level name.
	LogLevel string `yaml:"log_level"`
	// MetricsAddr serves Prometheus metrics when set (e.g. ":9464").
	MetricsAddr string `yaml:"metrics_addr"`
	// DBPath is the SQLite export file; empty disables the export.
	DBPath string `yaml:"db_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	engine := lts.DefaultConfig()
	return &Config{
		Collapse:      engine.Collapse.String(),
		FreezeBound:   engine.FreezeBound,
		TypeCheck:     engine.TypeCheck.String(),
		PropertyCheck: engine.PropertyCheck.String(),
		DeadlockCheck: engine.DeadlockCheck.String(),
		CheckDangling: true,
		Strategy:      explore.BFS.String(),
		Workers:       4,
		LogLevel:      "info",
	}
}

// FromEnv returns the defaults overridden by GROOVE_* environment
// variables.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Load reads a YAML file over the defaults and then applies the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Collapse = getEnv("GROOVE_COLLAPSE", c.Collapse)
	c.FreezeBound = getEnvInt("GROOVE_FREEZE_BOUND", c.FreezeBound)
	c.CompressFrozen = getEnvBool("GROOVE_COMPRESS_FROZEN", c.CompressFrozen)
	c.TypeCheck = getEnv("GROOVE_TYPE_CHECK", c.TypeCheck)
	c.PropertyCheck = getEnv("GROOVE_PROPERTY_CHECK", c.PropertyCheck)
	c.DeadlockCheck = getEnv("GROOVE_DEADLOCK_CHECK", c.DeadlockCheck)
	c.CheckDangling = getEnvBool("GROOVE_CHECK_DANGLING", c.CheckDangling)
	c.Injective = getEnvBool("GROOVE_INJECTIVE", c.Injective)
	c.Strategy = getEnv("GROOVE_STRATEGY", c.Strategy)
	c.MaxStates = getEnvInt("GROOVE_MAX_STATES", c.MaxStates)
	c.Workers = getEnvInt("GROOVE_WORKERS", c.Workers)
	c.LogLevel = getEnv("GROOVE_LOG_LEVEL", c.LogLevel)
	c.MetricsAddr = getEnv("GROOVE_METRICS_ADDR", c.MetricsAddr)
	c.DBPath = getEnv("GROOVE_DB", c.DBPath)
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if _, err := c.Engine(); err != nil {
		return err
	}
	if _, err := explore.ParseStrategy(c.Strategy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.FreezeBound < 1 {
		return fmt.Errorf("config: freeze_bound must be positive, got %d", c.FreezeBound)
	}
	if c.MaxStates < 0 || c.Workers < 0 {
		return fmt.Errorf("config: max_states and workers must not be negative")
	}
	return nil
}

// Engine returns the session settings.
func (c *Config) Engine() (lts.Config, error) {
	var (
		engine = lts.Config{FreezeBound: c.FreezeBound, CompressFrozen: c.CompressFrozen}
		err    error
	)
	if engine.Collapse, err = lts.ParseCollapseMode(c.Collapse); err != nil {
		return engine, fmt.Errorf("config: %w", err)
	}
	for _, p := range []struct {
		dst *lts.CheckPolicy
		src string
	}{
		{&engine.TypeCheck, c.TypeCheck},
		{&engine.PropertyCheck, c.PropertyCheck},
		{&engine.DeadlockCheck, c.DeadlockCheck},
	} {
		if *p.dst, err = lts.ParseCheckPolicy(p.src); err != nil {
			return engine, fmt.Errorf("config: %w", err)
		}
	}
	return engine, nil
}

// Properties returns the grammar properties.
func (c *Config) Properties() rule.Properties {
	return rule.Properties{CheckDangling: c.CheckDangling, Injective: c.Injective}
}

// Options returns the exploration options.
func (c *Config) Options() (explore.Options, error) {
	st, err := explore.ParseStrategy(c.Strategy)
	if err != nil {
		return explore.Options{}, fmt.Errorf("config: %w", err)
	}
	return explore.Options{Strategy: st, MaxStates: c.MaxStates}, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
