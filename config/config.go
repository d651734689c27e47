// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package config reads the pipeline's settings from the environment, after
// loading them from an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/petenewcomb/nampipe/experiment"
	"go.uber.org/zap/zapcore"
)

// Environment variables read by [FromEnv].
const (
	EnvOutDir      = "NAMPIPE_OUT_DIR"
	EnvLogLevel    = "NAMPIPE_LOG_LEVEL"
	EnvConcurrency = "NAMPIPE_CONCURRENCY"
	EnvSeed        = "NAMPIPE_SEED"
	EnvNMPM1Driver = "NAMPIPE_NMPM1_DRIVER"
	EnvTrace       = "NAMPIPE_TRACE"
	EnvMetrics     = "NAMPIPE_METRICS"
)

// DefaultEnvFile is loaded by [Load] when no file is named.
const DefaultEnvFile = ".env"

// Config holds the pipeline settings.
type Config struct {
	// OutDir receives the results of complete pipeline runs.
	OutDir   string
	LogLevel zapcore.Level
	// Concurrency limits the number of simultaneous workers. Zero means one
	// per CPU.
	Concurrency int
	Seed        uint64
	// NMPM1Driver is the executable that drives the nmpm1 hardware. Pools
	// can be created for nmpm1 without it, but not executed.
	NMPM1Driver string
	// Trace and Metrics enable writing OpenTelemetry spans and metrics to
	// standard error.
	Trace   bool
	Metrics bool
}

// Default returns the settings used for unset variables.
func Default() Config {
	return Config{
		OutDir:   "out",
		LogLevel: zapcore.InfoLevel,
		Seed:     experiment.DefaultSeed,
	}
}

// Load reads the named .env files, or DefaultEnvFile if none are named, into
// the environment without overriding variables that are already set, and
// then returns the settings found in the environment. Missing files are
// ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv returns the settings found through lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	if v, ok := lookup(EnvOutDir); ok && v != "" {
		c.OutDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		level, err := zapcore.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		c.LogLevel = level
	}
	if v, ok := lookup(EnvConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%s: %q is not a non-negative integer", EnvConcurrency, v)
		}
		c.Concurrency = n
	}
	if v, ok := lookup(EnvSeed); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvSeed, err)
		}
		c.Seed = seed
	}
	if v, ok := lookup(EnvNMPM1Driver); ok {
		c.NMPM1Driver = v
	}
	for _, b := range []struct {
		name string
		dst  *bool
	}{{EnvTrace, &c.Trace}, {EnvMetrics, &c.Metrics}} {
		if v, ok := lookup(b.name); ok && v != "" {
			on, err := strconv.ParseBool(v)
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", b.name, err)
			}
			*b.dst = on
		}
	}
	return c, nil
}
