// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose wraps the declarative multi-service runner (docker compose
// or a compatible CLI) that owns the SegStack base services.
package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/infra/process"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrComposeFailed is returned when the compose command exits non-zero.
	ErrComposeFailed = errors.New("compose command failed")

	// ErrInvalidConfig is returned when Config is invalid.
	ErrInvalidConfig = errors.New("invalid compose configuration")
)

// =============================================================================
// Interface Definition
// =============================================================================

// Executor manages compose operations for the SegStack services.
//
// # Description
//
// This interface abstracts all interactions with the compose CLI, enabling
// testable orchestration of the local emulator stack. Down and Up mutate
// container state and are serialized; Status is read-only.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Operations that modify
// container state (Up, Down) should be serialized.
type Executor interface {
	// Down tears down all services.
	//
	// # Description
	//
	// Executes `compose down`. Succeeds even if the stack was already down
	// (compose treats that as a no-op). RemoveVolumes additionally destroys
	// the services' persistent volumes, which is irreversible.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout
	//   - opts: Configuration for the down operation
	//
	// # Outputs
	//
	//   - *Result: Execution result with stdout/stderr
	//   - error: If the compose command fails
	Down(ctx context.Context, opts DownOptions) (*Result, error)

	// Up brings all declared services up.
	//
	// # Description
	//
	// Executes `compose up -d`, optionally with --build. Returns when the
	// containers are started, NOT when they are healthy; readiness is a
	// separate per-service health gate made by the caller.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout
	//   - opts: Configuration for the up operation
	//
	// # Outputs
	//
	//   - *Result: Execution result with stdout/stderr
	//   - error: If the compose command fails
	Up(ctx context.Context, opts UpOptions) (*Result, error)

	// Status returns the current state of compose services.
	//
	// # Description
	//
	// Executes `compose ps --format json` and parses the per-service
	// line-delimited JSON output.
	//
	// # Limitations
	//
	//   - Health status may lag actual container state
	//   - Parsing depends on compose's JSON output structure
	Status(ctx context.Context) (*StackStatus, error)
}

// =============================================================================
// Supporting Types
// =============================================================================

// Config provides configuration for compose operations.
type Config struct {
	// Command is the compose invocation, e.g. ["docker", "compose"] or
	// ["podman-compose"]. Required to have at least one element.
	Command []string

	// StackDir is the directory containing the compose file.
	StackDir string

	// File is the compose file name within StackDir.
	// Default: "docker-compose.yml"
	File string

	// ProjectName is the compose project name.
	// Default: "segstack"
	ProjectName string

	// DefaultTimeout is the default timeout for compose operations.
	// Default: 5 minutes
	DefaultTimeout time.Duration
}

// DownOptions configures the Down operation.
type DownOptions struct {
	// RemoveVolumes removes named volumes declared in the compose file.
	// Maps to: -v flag
	// WARNING: This is destructive and cannot be undone.
	RemoveVolumes bool

	// Timeout overrides the default operation timeout.
	Timeout time.Duration
}

// UpOptions configures the Up operation.
type UpOptions struct {
	// ForceBuild rebuilds images even if they exist.
	// Maps to: --build flag
	ForceBuild bool

	// Env contains extra KEY=VALUE environment entries for the compose
	// process (bucket names, network name).
	Env []string

	// Timeout overrides the default operation timeout.
	Timeout time.Duration
}

// Result contains the result of a compose operation.
type Result struct {
	// Success indicates if the operation completed without error.
	Success bool

	// ExitCode is the exit code of the compose command.
	ExitCode int

	// Stdout contains standard output.
	Stdout string

	// Stderr contains standard error.
	Stderr string

	// Duration is how long the operation took.
	Duration time.Duration

	// Command is the full command that was executed (for debugging).
	Command string
}

// StackStatus contains the current state of compose services.
type StackStatus struct {
	// Services contains status for each service.
	Services []ServiceStatus

	// Running is the count of running services.
	Running int
}

// ServiceStatus contains the status of a single service.
type ServiceStatus struct {
	// Name is the compose service name.
	Name string

	// ContainerName is the actual container name.
	ContainerName string

	// State is the container state (running, exited, etc.).
	State string

	// Health is the container health string ("healthy", "starting", "" if
	// no healthcheck is defined).
	Health string
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultExecutor implements Executor on top of a compose-compatible CLI.
type DefaultExecutor struct {
	config Config
	proc   process.Manager
	mu     sync.Mutex
}

// NewDefaultExecutor creates an Executor with the given configuration.
//
// # Description
//
// Validates the configuration and applies defaults: File
// "docker-compose.yml", ProjectName "segstack", DefaultTimeout 5 minutes.
//
// # Inputs
//
//   - cfg: Compose configuration (Command and StackDir required)
//   - proc: Manager for command execution
//
// # Outputs
//
//   - *DefaultExecutor: Configured executor
//   - error: If configuration is invalid
//
// # Example
//
//	executor, err := compose.NewDefaultExecutor(compose.Config{
//	    Command:  []string{"docker", "compose"},
//	    StackDir: "./stack",
//	}, processManager)
func NewDefaultExecutor(cfg Config, proc process.Manager) (*DefaultExecutor, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("%w: Command is required", ErrInvalidConfig)
	}
	if cfg.StackDir == "" {
		return nil, fmt.Errorf("%w: StackDir is required", ErrInvalidConfig)
	}

	if cfg.File == "" {
		cfg.File = "docker-compose.yml"
	}
	if cfg.ProjectName == "" {
		cfg.ProjectName = "segstack"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}

	return &DefaultExecutor{config: cfg, proc: proc}, nil
}

// Down tears down all services.
func (e *DefaultExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.baseArgs()
	args = append(args, "down", "--remove-orphans")

	if opts.RemoveVolumes {
		args = append(args, "-v")
	}

	return e.run(ctx, args, nil, e.resolveTimeout(opts.Timeout))
}

// Up brings all declared services up.
func (e *DefaultExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.baseArgs()
	args = append(args, "up", "-d")

	if opts.ForceBuild {
		args = append(args, "--build")
	}

	return e.run(ctx, args, opts.Env, e.resolveTimeout(opts.Timeout))
}

// Status returns the current state of compose services.
func (e *DefaultExecutor) Status(ctx context.Context) (*StackStatus, error) {
	args := e.baseArgs()
	args = append(args, "ps", "-a", "--format", "json")

	result, err := e.run(ctx, args, nil, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to query stack status: %w", err)
	}

	return parseStatus(result.Stdout)
}

// =============================================================================
// Private Helper Methods
// =============================================================================

// baseArgs builds the leading compose arguments (subcommand prefix for
// multi-word commands like "docker compose", then -f and -p).
func (e *DefaultExecutor) baseArgs() []string {
	args := append([]string{}, e.config.Command[1:]...)
	args = append(args,
		"-f", e.config.File,
		"-p", e.config.ProjectName,
	)
	return args
}

// resolveTimeout picks the per-call timeout or the configured default.
func (e *DefaultExecutor) resolveTimeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return e.config.DefaultTimeout
}

// run executes the compose command in the stack directory.
func (e *DefaultExecutor) run(ctx context.Context, args []string, env []string, timeout time.Duration) (*Result, error) {
	start := time.Now()
	cmdStr := fmt.Sprintf("%s %s", strings.Join(e.config.Command, " "), strings.Join(args, " "))

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := e.proc.RunInDir(execCtx, e.config.StackDir, env, e.config.Command[0], args...)

	result := &Result{
		Success:  exitCode == 0 && err == nil,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  cmdStr,
	}

	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrComposeFailed, err)
	}
	if exitCode != 0 {
		return result, fmt.Errorf("%w: exit code %d: %s", ErrComposeFailed, exitCode, strings.TrimSpace(stderr))
	}

	return result, nil
}

// parseStatus parses `compose ps --format json` output.
//
// Compose v2 emits one JSON object per line; older versions emit a single
// JSON array. Both shapes are handled.
func parseStatus(output string) (*StackStatus, error) {
	status := &StackStatus{Services: []ServiceStatus{}}

	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return status, nil
	}

	type psEntry struct {
		Name    string `json:"Name"`
		Service string `json:"Service"`
		State   string `json:"State"`
		Health  string `json:"Health"`
	}

	var entries []psEntry
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
		}
	} else {
		for _, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var entry psEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("failed to parse compose ps line: %w", err)
			}
			entries = append(entries, entry)
		}
	}

	for _, entry := range entries {
		svc := ServiceStatus{
			Name:          entry.Service,
			ContainerName: entry.Name,
			State:         entry.State,
			Health:        entry.Health,
		}
		if svc.Name == "" {
			svc.Name = entry.Name
		}
		status.Services = append(status.Services, svc)
		if entry.State == "running" {
			status.Running++
		}
	}

	return status, nil
}

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockExecutor is a test double for Executor.
//
// Configure the mock by setting function fields before use. Calls are
// recorded for verification.
type MockExecutor struct {
	DownFunc   func(ctx context.Context, opts DownOptions) (*Result, error)
	UpFunc     func(ctx context.Context, opts UpOptions) (*Result, error)
	StatusFunc func(ctx context.Context) (*StackStatus, error)

	DownCalls   []DownOptions
	UpCalls     []UpOptions
	StatusCalls int
	mu          sync.Mutex
}

// Down delegates to DownFunc and records the call.
func (m *MockExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	m.mu.Lock()
	m.DownCalls = append(m.DownCalls, opts)
	m.mu.Unlock()
	if m.DownFunc == nil {
		return &Result{Success: true}, nil
	}
	return m.DownFunc(ctx, opts)
}

// Up delegates to UpFunc and records the call.
func (m *MockExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, opts)
	m.mu.Unlock()
	if m.UpFunc == nil {
		return &Result{Success: true}, nil
	}
	return m.UpFunc(ctx, opts)
}

// Status delegates to StatusFunc and records the call.
func (m *MockExecutor) Status(ctx context.Context) (*StackStatus, error) {
	m.mu.Lock()
	m.StatusCalls++
	m.mu.Unlock()
	if m.StatusFunc == nil {
		return &StackStatus{}, nil
	}
	return m.StatusFunc(ctx)
}

// Compile-time interface compliance check.
var (
	_ Executor = (*DefaultExecutor)(nil)
	_ Executor = (*MockExecutor)(nil)
)
