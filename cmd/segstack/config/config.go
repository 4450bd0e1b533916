// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config resolves the SegStack configuration.
//
// Resolution order, lowest to highest precedence:
//
//	built-in defaults < segstack.yaml < environment variables
//
// CLI flags are applied on top by the command layer. The resolved Config is
// immutable by convention: it is built once per invocation and passed to
// every component, so no component reads ambient environment state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "segstack.yaml"

// Config is the full SegStack configuration.
type Config struct {
	// Buckets names the three pipeline buckets.
	Buckets Buckets `yaml:"buckets"`

	// Compose configures the multi-service runner.
	Compose Compose `yaml:"compose"`

	// Runtime configures the supervised SAM local process.
	Runtime Runtime `yaml:"runtime"`

	// Endpoints are the emulator URLs.
	Endpoints Endpoints `yaml:"endpoints"`

	// Health configures readiness gating.
	Health Health `yaml:"health"`

	// StrictBuckets promotes a bucket-provisioning failure from a warning
	// to a fatal outcome. Off by default: downstream steps can still run
	// against previously provisioned buckets.
	StrictBuckets bool `yaml:"strict_buckets"`
}

// Buckets names the pipeline buckets.
type Buckets struct {
	Upload string `yaml:"upload"` // original images
	Mask   string `yaml:"mask"`   // generated masks + metadata
	Output string `yaml:"output"` // processed results (public-read)
}

// Compose configures the declarative multi-service runner.
type Compose struct {
	// Command is the compose invocation as a single string,
	// e.g. "docker compose" or "podman-compose".
	Command string `yaml:"command"`

	// StackDir holds the compose file.
	StackDir string `yaml:"stack_dir"`

	// File is the compose file name within StackDir.
	File string `yaml:"file"`

	// Project is the compose project name.
	Project string `yaml:"project"`

	// Network is the compose network the SAM containers attach to.
	Network string `yaml:"network"`
}

// Runtime configures the supervised function-runtime process.
type Runtime struct {
	// Template is the SAM template path passed to sam local/build.
	Template string `yaml:"template"`

	// EnvFile is the --env-vars file for sam local.
	EnvFile string `yaml:"env_file"`

	// Port is the sam local start-lambda port.
	Port int `yaml:"port"`

	// HandlePath is the persisted process-handle file. Supports ~.
	HandlePath string `yaml:"handle_path"`

	// LogPath receives the runtime's combined output. Supports ~.
	LogPath string `yaml:"log_path"`

	// GraceDelaySeconds is how long to wait after start before confirming
	// the runtime is still alive.
	GraceDelaySeconds int `yaml:"grace_delay_seconds"`
}

// Endpoints are the emulator URLs.
type Endpoints struct {
	// LocalStack is the storage emulator edge URL.
	LocalStack string `yaml:"localstack"`

	// SageMakerPing is the inference emulator readiness URL.
	SageMakerPing string `yaml:"sagemaker_ping"`

	// Lambda is the sam local start-lambda URL.
	Lambda string `yaml:"lambda"`

	// Region used for signing and ARNs.
	Region string `yaml:"region"`
}

// Health configures readiness gating.
type Health struct {
	// Retries is the number of probe attempts per service.
	Retries int `yaml:"retries"`

	// IntervalSeconds is the fixed sleep between attempts.
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Buckets: Buckets{
			Upload: "segstack-uploads",
			Mask:   "segstack-masks",
			Output: "segstack-outputs",
		},
		Compose: Compose{
			Command:  "docker compose",
			StackDir: "stack",
			File:     "docker-compose.yml",
			Project:  "segstack",
			Network:  "segstack_default",
		},
		Runtime: Runtime{
			Template:          filepath.Join("infra", "template.yaml"),
			EnvFile:           filepath.Join("local", "env.json"),
			Port:              3001,
			HandlePath:        "~/.segstack/sam.pid",
			LogPath:           "~/.segstack/logs/sam-local.log",
			GraceDelaySeconds: 2,
		},
		Endpoints: Endpoints{
			LocalStack:    "http://localhost:4566",
			SageMakerPing: "http://localhost:8080/ping",
			Lambda:        "http://127.0.0.1:3001",
			Region:        "us-east-1",
		},
		Health: Health{
			Retries:         30,
			IntervalSeconds: 2,
		},
	}
}

// Load resolves the configuration from the optional yaml file at path and
// the environment.
//
// # Description
//
// A missing file is not an error (defaults apply); a malformed file is.
// Environment variables override file values:
//
//	UPLOAD_BUCKET, MASK_BUCKET, OUTPUT_BUCKET, COMPOSE_NETWORK,
//	SAM_ENV_FILE, LAMBDA_ENDPOINT, LOCALSTACK_ENDPOINT, COMPOSE_CMD
//
// # Outputs
//
//   - Config: Fully resolved configuration
//   - error: Non-nil only when the file exists and cannot be parsed
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults apply
	default:
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays the documented environment variables.
func applyEnv(cfg *Config) {
	overlay(&cfg.Buckets.Upload, "UPLOAD_BUCKET")
	overlay(&cfg.Buckets.Mask, "MASK_BUCKET")
	overlay(&cfg.Buckets.Output, "OUTPUT_BUCKET")
	overlay(&cfg.Compose.Network, "COMPOSE_NETWORK")
	overlay(&cfg.Compose.Command, "COMPOSE_CMD")
	overlay(&cfg.Runtime.EnvFile, "SAM_ENV_FILE")
	overlay(&cfg.Endpoints.Lambda, "LAMBDA_ENDPOINT")
	overlay(&cfg.Endpoints.LocalStack, "LOCALSTACK_ENDPOINT")
}

func overlay(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// ComposeCommand returns the compose invocation split into argv form.
func (c Config) ComposeCommand() []string {
	return strings.Fields(c.Compose.Command)
}

// HealthInterval returns the fixed probe interval.
func (c Config) HealthInterval() time.Duration {
	return time.Duration(c.Health.IntervalSeconds) * time.Second
}

// RuntimeGraceDelay returns the post-start liveness confirmation delay.
func (c Config) RuntimeGraceDelay() time.Duration {
	return time.Duration(c.Runtime.GraceDelaySeconds) * time.Second
}

// RuntimeHandlePath returns the handle file path with ~ expanded.
func (c Config) RuntimeHandlePath() string {
	return expandHome(c.Runtime.HandlePath)
}

// RuntimeLogPath returns the runtime log path with ~ expanded.
func (c Config) RuntimeLogPath() string {
	return expandHome(c.Runtime.LogPath)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
