// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides abstractions for external process execution.

# Overview

Manager enables testable interaction with the operating system's process
management capabilities. All exec.Command calls in the stack management code
go through this interface to enable mocking in unit tests.

	pm := process.NewDefaultManager()
	output, err := pm.Run(ctx, "docker", "version")
	if err != nil {
	    return fmt.Errorf("failed to query docker: %w", err)
	}

For testing, use MockManager:

	mock := &process.MockManager{
	    RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
	        return []byte("mock output"), nil
	    },
	}

# Detached Processes

StartDetached launches a process in its own session with output redirected to
a log file. The child survives the CLI process; callers are responsible for
persisting the returned PID if they need to find the process again.

# Thread Safety

Manager implementations are safe for concurrent use.

# Limitations

  - FindPIDs relies on pgrep -f on Unix; pattern matching behavior follows
    the platform's pgrep
  - Terminate escalates SIGTERM to SIGKILL after the grace period
*/
package process
