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
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/SegStackLocal/pkg/logging"
)

// =============================================================================
// PROBE TYPES
// =============================================================================

// ProbeState is the result of a single readiness probe.
type ProbeState string

const (
	// ProbeHealthy means the service answered and is ready.
	ProbeHealthy ProbeState = "healthy"

	// ProbeStarting means the service is reachable-in-principle but not
	// ready yet (connection refused, 503, partial init). The gate keeps
	// polling.
	ProbeStarting ProbeState = "starting"

	// ProbeUnhealthy means the service answered in a way that won't
	// self-resolve (malformed response, auth failure). The gate still
	// keeps polling: emulators routinely pass through bad states while
	// initializing.
	ProbeUnhealthy ProbeState = "unhealthy"
)

// ProbeResult carries the state of one probe attempt.
type ProbeResult struct {
	State  ProbeState
	Detail string
}

// Probe checks one service's readiness.
//
// # Description
//
// A Probe performs a single, point-in-time readiness check. It never
// retries; retrying is the HealthGate's job. Probes must honor ctx and
// return promptly when it is cancelled.
type Probe interface {
	// Name identifies the probed service in logs and reports.
	Name() string

	// Check performs one readiness check.
	Check(ctx context.Context) ProbeResult
}

// =============================================================================
// ERROR VARIABLES
// =============================================================================

// ErrGateTimedOut is returned when a service never became healthy
// within the attempt budget.
var ErrGateTimedOut = errors.New("service did not become healthy")

// =============================================================================
// HEALTH GATE
// =============================================================================

// HealthGate blocks startup until a service reports healthy.
//
// # Description
//
// The gate polls a Probe at a fixed interval, up to a configured number
// of attempts. The budget is deterministic: a service that is healthy
// on attempt N consumed exactly N probes, and a service that never
// becomes healthy consumed exactly Retries probes before the gate gives
// up. No sleep happens after the final attempt.
//
// # Examples
//
//	gate := NewHealthGate(cfg.Health.Retries, cfg.HealthInterval(), logger)
//	result, err := gate.Wait(ctx, NewLocalStackProbe(cfg.Endpoints.LocalStack))
//	if errors.Is(err, ErrGateTimedOut) {
//	    // service never came up
//	}
//
// # Limitations
//
//   - One service per Wait call; callers sequence gates themselves
//   - Fixed interval, no backoff: local emulators are cheap to probe
//     and a predictable worst-case wait matters more than poll load
type HealthGate struct {
	retries  int
	interval time.Duration
	logger   *logging.Logger

	// sleep is replaceable for deterministic tests.
	sleep func(ctx context.Context, d time.Duration)
}

// sleepContext sleeps for d or until ctx is cancelled, whichever is
// first. Cancellation during the interval must not block until the
// interval ends.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// GateResult describes a completed wait.
type GateResult struct {
	// Service is the probe's name.
	Service string

	// Attempts is how many probes ran.
	Attempts int

	// Elapsed is the total wait including sleeps.
	Elapsed time.Duration

	// LastState is the state of the final probe attempt.
	LastState ProbeState

	// LastDetail is the detail of the final probe attempt.
	LastDetail string
}

// NewHealthGate creates a HealthGate.
//
// Non-positive retries or interval take the defaults (30 attempts,
// 2 second interval).
func NewHealthGate(retries int, interval time.Duration, logger *logging.Logger) *HealthGate {
	if retries <= 0 {
		retries = 30
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthGate{
		retries:  retries,
		interval: interval,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Wait polls the probe until it reports healthy or the budget runs out.
//
// # Inputs
//
//   - ctx: Cancellation stops waiting immediately.
//   - probe: The service readiness check.
//
// # Outputs
//
//   - *GateResult: Always non-nil, even on error, so callers can report
//     how long and how many attempts the wait consumed.
//   - error: nil on healthy; ErrGateTimedOut (wrapped) when the budget
//     is exhausted; ctx.Err() on cancellation.
func (g *HealthGate) Wait(ctx context.Context, probe Probe) (*GateResult, error) {
	start := time.Now()
	result := &GateResult{Service: probe.Name()}

	for result.Attempts < g.retries {
		if err := ctx.Err(); err != nil {
			result.Elapsed = time.Since(start)
			return result, err
		}
		result.Attempts++

		pr := probe.Check(ctx)
		result.LastState = pr.State
		result.LastDetail = pr.Detail

		if pr.State == ProbeHealthy {
			result.Elapsed = time.Since(start)
			g.logger.Info("service healthy",
				"service", probe.Name(),
				"attempts", result.Attempts,
				"elapsed_ms", result.Elapsed.Milliseconds(),
			)
			return result, nil
		}

		g.logger.Debug("probe attempt not healthy",
			"service", probe.Name(),
			"attempt", result.Attempts,
			"max_attempts", g.retries,
			"state", string(pr.State),
			"detail", pr.Detail,
		)

		if result.Attempts < g.retries {
			g.sleep(ctx, g.interval)
		}
	}

	result.Elapsed = time.Since(start)
	g.logger.Error("service never became healthy",
		"service", probe.Name(),
		"attempts", result.Attempts,
		"last_state", string(result.LastState),
		"last_detail", result.LastDetail,
	)
	return result, fmt.Errorf("%w: %s after %d attempts (last: %s %s)",
		ErrGateTimedOut, probe.Name(), result.Attempts, result.LastState, result.LastDetail)
}
