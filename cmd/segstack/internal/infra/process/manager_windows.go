// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// detachedSysProcAttr returns attributes that detach the child from the
// caller's console so it survives the CLI process.
func detachedSysProcAttr() *syscall.SysProcAttr {
	// CREATE_NEW_PROCESS_GROUP | DETACHED_PROCESS
	return &syscall.SysProcAttr{CreationFlags: 0x00000200 | 0x00000008}
}

// IsAlive reports whether a process with the given PID exists.
//
// Windows has no signal 0; fall back to tasklist filtering.
func (pm *DefaultManager) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	out, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH").Output()
	if err != nil {
		return false
	}
	return len(out) > 0 && !strings.Contains(string(out), "No tasks")
}

// Terminate asks the process to exit and escalates to a forced kill after
// the grace period.
func (pm *DefaultManager) Terminate(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	_ = proc.Kill() // no graceful signal on Windows; Kill is the only option

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !pm.IsAlive(pid) {
			return nil
		}
		time.Sleep(terminatePollInterval)
	}
	return nil
}

const terminatePollInterval = 100 * time.Millisecond
