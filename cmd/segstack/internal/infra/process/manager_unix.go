// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build !windows

package process

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// terminatePollInterval is how often Terminate re-checks liveness while
// waiting out the grace period.
const terminatePollInterval = 100 * time.Millisecond

// detachedSysProcAttr returns attributes that place the child in a new
// session so it survives the CLI process and never receives our signals.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// IsAlive reports whether a process with the given PID exists.
//
// Uses signal 0, which performs permission and existence checks without
// delivering a signal. EPERM means the process exists but is not ours.
func (pm *DefaultManager) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}

// Terminate sends SIGTERM, waits up to grace for the process to exit, then
// escalates to SIGKILL.
func (pm *DefaultManager) Terminate(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil // already gone
		}
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !pm.IsAlive(pid) {
			return nil
		}
		time.Sleep(terminatePollInterval)
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to kill pid %d: %w", pid, err)
	}

	return nil
}
