// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Manager handles external process operations.
//
// This interface abstracts all interaction with the operating system's process
// management, enabling testable code that doesn't require real process
// execution.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// Methods that spawn synchronous commands accept a context.Context for
// cancellation and timeout support. StartDetached deliberately takes no
// context: the child's lifetime exceeds the caller's.
type Manager interface {
	// Run executes a command synchronously and returns its combined stdout.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Stdout output
	//   - error: Non-nil if command fails or is cancelled; stderr is folded
	//     into the error message for debugging
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunInDir executes a command in a working directory with extra
	// environment variables appended to the inherited environment.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - dir: Working directory ("" means inherit)
	//   - env: Extra KEY=VALUE entries (nil means none)
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - string: Stdout
	//   - string: Stderr
	//   - int: Exit code (-1 if the process never ran)
	//   - error: Non-nil on spawn failure or non-zero exit
	RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)

	// StartDetached launches a background process in its own session with
	// stdout and stderr redirected to logPath.
	//
	// # Description
	//
	// The process is detached from the caller's process group and survives
	// the caller's exit. The log file (and its parent directory) is created
	// if missing and opened in append mode.
	//
	// # Inputs
	//
	//   - logPath: File receiving the child's combined output
	//   - dir: Working directory ("" means inherit)
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - int: PID of the started process
	//   - error: Non-nil if the process fails to start
	//
	// # Limitations
	//
	//   - No automatic cleanup; callers own the PID from here on
	StartDetached(logPath string, dir string, name string, args ...string) (int, error)

	// FindPIDs returns the PIDs of all processes whose command line matches
	// the given pattern.
	//
	// # Description
	//
	// Uses pgrep -f on Unix. A pattern with no matches is not an error and
	// returns an empty slice. The scan excludes the calling process.
	//
	// # Limitations
	//
	//   - Pattern matching behavior depends on the platform's pgrep
	//   - Inherently racy; treat results as best-effort
	FindPIDs(ctx context.Context, pattern string) ([]int, error)

	// IsAlive reports whether a process with the given PID exists.
	IsAlive(pid int) bool

	// Terminate signals the PID to exit gracefully and waits up to grace
	// for it to disappear, escalating to a hard kill afterwards.
	//
	// A PID that is already gone is not an error.
	Terminate(pid int, grace time.Duration) error
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultManager implements Manager using os/exec.
//
// This is the production implementation that executes real processes on the
// system. Use MockManager in tests instead.
type DefaultManager struct{}

// NewDefaultManager creates a Manager that executes real processes.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes a command synchronously and returns its stdout.
func (pm *DefaultManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Include stderr in error for debugging
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// RunInDir executes a command in a working directory with extra environment.
func (pm *DefaultManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		return stdout.String(), stderr.String(), exitCode, fmt.Errorf("%s failed: %w", name, err)
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// StartDetached launches a background process with output redirected to logPath.
func (pm *DefaultManager) StartDetached(logPath string, dir string, name string, args ...string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	// The child holds its own descriptor after Start; close ours regardless.
	defer logFile.Close()

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = detachedSysProcAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", name, err)
	}

	pid := cmd.Process.Pid

	// Release the handle so the detached child is never reaped by us.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("started %s (pid %d) but failed to release handle: %w", name, pid, err)
	}

	return pid, nil
}

// FindPIDs returns PIDs of processes matching the command-line pattern.
func (pm *DefaultManager) FindPIDs(ctx context.Context, pattern string) ([]int, error) {
	cmd := exec.CommandContext(ctx, "pgrep", "-f", pattern)
	output, err := cmd.Output()

	if err != nil {
		// pgrep returns exit code 1 when no processes found - this is not an error
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("pgrep failed: %w", err)
	}

	self := os.Getpid()
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, convErr := strconv.Atoi(line)
		if convErr != nil || pid == self {
			continue
		}
		pids = append(pids, pid)
	}

	return pids, nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockManager is a test double for Manager.
//
// Configure the mock by setting function fields before use. If a function
// field is nil and the corresponding method is called, it will panic.
//
// # Examples
//
//	mock := &process.MockManager{
//	    FindPIDsFunc: func(ctx context.Context, pattern string) ([]int, error) {
//	        return []int{4242}, nil
//	    },
//	}
type MockManager struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunInDirFunc is called when RunInDir is invoked
	RunInDirFunc func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)

	// StartDetachedFunc is called when StartDetached is invoked
	StartDetachedFunc func(logPath string, dir string, name string, args ...string) (int, error)

	// FindPIDsFunc is called when FindPIDs is invoked
	FindPIDsFunc func(ctx context.Context, pattern string) ([]int, error)

	// IsAliveFunc is called when IsAlive is invoked
	IsAliveFunc func(pid int) bool

	// TerminateFunc is called when Terminate is invoked
	TerminateFunc func(pid int, grace time.Duration) error

	// Calls records all method invocations for verification
	Calls []ManagerCall

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// ManagerCall records a single method invocation.
type ManagerCall struct {
	Method  string
	Name    string
	Args    []string
	Dir     string
	LogPath string
	PID     int
}

// Run delegates to RunFunc and records the call.
func (m *MockManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record(ManagerCall{Method: "Run", Name: name, Args: args})
	if m.RunFunc == nil {
		panic("MockManager.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// RunInDir delegates to RunInDirFunc and records the call.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	m.record(ManagerCall{Method: "RunInDir", Name: name, Args: args, Dir: dir})
	if m.RunInDirFunc == nil {
		panic("MockManager.RunInDirFunc not set")
	}
	return m.RunInDirFunc(ctx, dir, env, name, args...)
}

// StartDetached delegates to StartDetachedFunc and records the call.
func (m *MockManager) StartDetached(logPath string, dir string, name string, args ...string) (int, error) {
	m.record(ManagerCall{Method: "StartDetached", Name: name, Args: args, Dir: dir, LogPath: logPath})
	if m.StartDetachedFunc == nil {
		panic("MockManager.StartDetachedFunc not set")
	}
	return m.StartDetachedFunc(logPath, dir, name, args...)
}

// FindPIDs delegates to FindPIDsFunc and records the call.
func (m *MockManager) FindPIDs(ctx context.Context, pattern string) ([]int, error) {
	m.record(ManagerCall{Method: "FindPIDs", Name: pattern})
	if m.FindPIDsFunc == nil {
		panic("MockManager.FindPIDsFunc not set")
	}
	return m.FindPIDsFunc(ctx, pattern)
}

// IsAlive delegates to IsAliveFunc and records the call.
func (m *MockManager) IsAlive(pid int) bool {
	m.record(ManagerCall{Method: "IsAlive", PID: pid})
	if m.IsAliveFunc == nil {
		panic("MockManager.IsAliveFunc not set")
	}
	return m.IsAliveFunc(pid)
}

// Terminate delegates to TerminateFunc and records the call.
func (m *MockManager) Terminate(pid int, grace time.Duration) error {
	m.record(ManagerCall{Method: "Terminate", PID: pid})
	if m.TerminateFunc == nil {
		panic("MockManager.TerminateFunc not set")
	}
	return m.TerminateFunc(pid, grace)
}

func (m *MockManager) record(call ManagerCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// Reset clears all recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of all recorded calls.
func (m *MockManager) GetCalls() []ManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ManagerCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Compile-time interface compliance check.
var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
