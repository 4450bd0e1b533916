// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/AleutianAI/SegStackLocal/cmd/segstack/config"
	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/infra/process"
	"github.com/AleutianAI/SegStackLocal/pkg/logging"
)

// =============================================================================
// ERROR VARIABLES
// =============================================================================

// ErrRuntimeDied is returned when the function runtime started but
// exited before the grace delay elapsed.
var ErrRuntimeDied = errors.New("function runtime exited during startup")

// ErrBuildFailed is returned when sam build fails.
var ErrBuildFailed = errors.New("function build failed")

// samPattern matches the detached runtime's command line for stray scans.
const samPattern = "sam local start-lambda"

// terminateGrace is how long a runtime gets to exit after SIGTERM
// before being killed.
const terminateGrace = 5 * time.Second

// =============================================================================
// PROCESS HANDLE
// =============================================================================

// ProcessHandle is the persisted record of a detached runtime.
//
// It survives CLI invocations in a small JSON file so a later run can
// find and stop the runtime it did not itself start.
type ProcessHandle struct {
	PID     int    `json:"pid"`
	LogPath string `json:"log_path"`
}

// readHandle loads the handle file. A missing file returns (nil, nil).
func readHandle(path string) (*ProcessHandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read process handle %s: %w", path, err)
	}

	var h ProcessHandle
	if err := json.Unmarshal(data, &h); err != nil {
		// A corrupt handle is treated as absent; the stray scan still
		// finds the process it pointed at.
		return nil, nil
	}
	if h.PID <= 0 {
		return nil, nil
	}
	return &h, nil
}

// writeHandle persists the handle, creating parent directories.
func writeHandle(path string, h ProcessHandle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create handle dir: %w", err)
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode process handle: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("failed to write process handle %s: %w", path, err)
	}
	return nil
}

// removeHandle deletes the handle file, tolerating absence.
//
// A handle that cannot be removed is reconciled by the next run's
// stale-handle check, so the error is not propagated.
func removeHandle(path string) {
	_ = os.Remove(path)
}

// =============================================================================
// SAM SUPERVISOR
// =============================================================================

// SamSupervisor manages the detached sam local start-lambda runtime.
//
// # Description
//
// The runtime outlives the CLI: it is started in its own session with
// output redirected to a log file, and found again later via the
// persisted ProcessHandle plus a pattern-based stray scan. The stray
// scan covers runtimes started manually or left behind by a crashed
// CLI run, so Stop is reliable even when the handle file is gone.
//
// # Limitations
//
//   - One runtime per machine; the port and pattern are global
//   - The stray scan matches on command line, so an unrelated process
//     embedding the pattern would be terminated too
type SamSupervisor struct {
	proc   process.Manager
	cfg    config.Config
	logger *logging.Logger

	// delay is replaceable for deterministic tests.
	delay func(time.Duration)
}

// NewSamSupervisor creates a supervisor for the function runtime.
func NewSamSupervisor(proc process.Manager, cfg config.Config, logger *logging.Logger) *SamSupervisor {
	if logger == nil {
		logger = logging.Default()
	}
	return &SamSupervisor{
		proc:   proc,
		cfg:    cfg,
		logger: logger,
		delay:  time.Sleep,
	}
}

// Stop terminates the runtime if it is running.
//
// # Description
//
// Best effort in every branch: the handle's PID is terminated if alive,
// the handle file is removed regardless, and a stray scan terminates
// any matching processes the handle missed. Individual failures are
// logged and do not abort the remaining cleanup.
//
// # Outputs
//
//   - error: Non-nil only when the stray scan itself could not run.
func (s *SamSupervisor) Stop(ctx context.Context) error {
	handlePath := s.cfg.RuntimeHandlePath()

	handle, err := readHandle(handlePath)
	if err != nil {
		s.logger.Warn("could not read process handle", "error", err.Error())
	}
	if handle != nil && s.proc.IsAlive(handle.PID) {
		s.logger.Info("stopping function runtime", "pid", handle.PID)
		if err := s.proc.Terminate(handle.PID, terminateGrace); err != nil {
			s.logger.Warn("failed to terminate runtime", "pid", handle.PID, "error", err.Error())
		}
	}
	removeHandle(handlePath)

	pids, err := s.proc.FindPIDs(ctx, samPattern)
	if err != nil {
		return fmt.Errorf("stray runtime scan failed: %w", err)
	}
	for _, pid := range pids {
		s.logger.Warn("terminating stray runtime", "pid", pid)
		if err := s.proc.Terminate(pid, terminateGrace); err != nil {
			s.logger.Warn("failed to terminate stray runtime", "pid", pid, "error", err.Error())
		}
	}
	return nil
}

// Build runs sam build for the configured template.
func (s *SamSupervisor) Build(ctx context.Context) error {
	s.logger.Info("building functions", "template", s.cfg.Runtime.Template)
	out, err := s.proc.Run(ctx, "sam", "build", "--template", s.cfg.Runtime.Template)
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrBuildFailed, err, string(out))
	}
	return nil
}

// Start launches the detached runtime if it is not already running.
//
// # Description
//
// Start is idempotent. A live handle means the runtime is already up
// and Start returns (false, nil); a stale handle is discarded. When no
// runtime is found, Start launches sam local start-lambda detached,
// persists the new handle, then waits the grace delay and confirms the
// process survived its own startup. A runtime that died inside the
// grace window is reported as ErrRuntimeDied with a pointer at its log.
//
// # Outputs
//
//   - bool: True when a new runtime was launched, false when one was
//     already running.
//   - error: ErrRuntimeDied (wrapped), or the launch failure.
func (s *SamSupervisor) Start(ctx context.Context) (bool, error) {
	handlePath := s.cfg.RuntimeHandlePath()

	handle, err := readHandle(handlePath)
	if err != nil {
		s.logger.Warn("could not read process handle", "error", err.Error())
	}
	if handle != nil {
		if s.proc.IsAlive(handle.PID) {
			s.logger.Info("function runtime already running", "pid", handle.PID)
			return false, nil
		}
		s.logger.Info("discarding stale process handle", "pid", handle.PID)
		removeHandle(handlePath)
	}

	// A runtime without a handle (manual start, crashed CLI) is adopted
	// rather than duplicated: two listeners on one port cannot coexist.
	if pids, err := s.proc.FindPIDs(ctx, samPattern); err == nil && len(pids) > 0 {
		s.logger.Info("adopting running function runtime", "pid", pids[0])
		if err := writeHandle(handlePath, ProcessHandle{PID: pids[0], LogPath: s.cfg.RuntimeLogPath()}); err != nil {
			s.logger.Warn("failed to persist adopted handle", "error", err.Error())
		}
		return false, nil
	}

	logPath := s.cfg.RuntimeLogPath()
	args := []string{
		"local", "start-lambda",
		"--template", s.cfg.Runtime.Template,
		"--env-vars", s.cfg.Runtime.EnvFile,
		"--port", strconv.Itoa(s.cfg.Runtime.Port),
		"--docker-network", s.cfg.Compose.Network,
	}

	pid, err := s.proc.StartDetached(logPath, "", "sam", args...)
	if err != nil {
		return false, fmt.Errorf("failed to start function runtime: %w", err)
	}
	s.logger.Info("function runtime starting", "pid", pid, "log", logPath)

	if err := writeHandle(handlePath, ProcessHandle{PID: pid, LogPath: logPath}); err != nil {
		return false, err
	}

	// sam local fails fast on bad templates or a taken port, so one
	// short delay separates "launched" from "crashed on arrival".
	s.delay(s.cfg.RuntimeGraceDelay())

	if !s.proc.IsAlive(pid) {
		removeHandle(handlePath)
		return false, fmt.Errorf("%w: pid %d, see %s", ErrRuntimeDied, pid, logPath)
	}
	return true, nil
}

// Status reports whether the runtime is running and its PID.
//
// The handle is checked first; a stray scan covers handle-less runtimes.
func (s *SamSupervisor) Status(ctx context.Context) (bool, int) {
	handle, _ := readHandle(s.cfg.RuntimeHandlePath())
	if handle != nil && s.proc.IsAlive(handle.PID) {
		return true, handle.PID
	}
	if pids, err := s.proc.FindPIDs(ctx, samPattern); err == nil && len(pids) > 0 {
		return true, pids[0]
	}
	return false, 0
}
