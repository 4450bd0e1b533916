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
	"fmt"
	"time"

	"github.com/AleutianAI/SegStackLocal/cmd/segstack/config"
	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/awslocal"
	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/infra/compose"
	"github.com/AleutianAI/SegStackLocal/pkg/logging"
	"github.com/AleutianAI/SegStackLocal/pkg/ux"
)

// =============================================================================
// STEP OUTCOMES
// =============================================================================

// StepOutcome classifies how a restart step ended.
type StepOutcome int

const (
	// StepSuccess means the step completed.
	StepSuccess StepOutcome = iota

	// StepWarning means the step failed but the run continues. The
	// stack may be degraded (e.g. buckets not provisioned).
	StepWarning

	// StepFatal means the step failed and the run aborts. Remaining
	// steps do not execute.
	StepFatal

	// StepSkipped means a flag excluded the step from this run.
	StepSkipped
)

// String returns the outcome's display name.
func (o StepOutcome) String() string {
	switch o {
	case StepSuccess:
		return "success"
	case StepWarning:
		return "warning"
	case StepFatal:
		return "fatal"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StepResult records one executed (or skipped) step.
type StepResult struct {
	Name    string
	Outcome StepOutcome
	Detail  string
	Err     error
	Elapsed time.Duration
}

// RunReport summarizes a restart run.
type RunReport struct {
	Steps   []StepResult
	Elapsed time.Duration
}

// Fatal reports whether the run aborted on a fatal step.
func (r *RunReport) Fatal() bool {
	for _, s := range r.Steps {
		if s.Outcome == StepFatal {
			return true
		}
	}
	return false
}

// Counts returns the number of succeeded, warned, and skipped steps.
func (r *RunReport) Counts() (succeeded, warned, skipped int) {
	for _, s := range r.Steps {
		switch s.Outcome {
		case StepSuccess:
			succeeded++
		case StepWarning:
			warned++
		case StepSkipped:
			skipped++
		}
	}
	return
}

// ExitCode maps the run to a process exit code: 0 for a completed run
// (warnings included), 1 for a fatal abort.
func (r *RunReport) ExitCode() int {
	if r.Fatal() {
		return 1
	}
	return 0
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// runtimeSupervisor is the orchestrator's view of the SAM runtime.
type runtimeSupervisor interface {
	Stop(ctx context.Context) error
	Build(ctx context.Context) error
	Start(ctx context.Context) (bool, error)
}

// bucketProvisioner ensures the pipeline buckets exist.
type bucketProvisioner interface {
	EnsureBuckets(ctx context.Context, buckets awslocal.BucketSet) error
}

// eventWirer connects bucket notifications to the functions.
type eventWirer interface {
	WireEvents(ctx context.Context, uploadBucket, maskBucket string) error
}

// readinessGate blocks until a service is healthy.
type readinessGate interface {
	Wait(ctx context.Context, probe Probe) (*GateResult, error)
}

// compile-time interface compliance
var (
	_ runtimeSupervisor = (*SamSupervisor)(nil)
	_ bucketProvisioner = (*awslocal.Provisioner)(nil)
	_ eventWirer        = (*awslocal.Wirer)(nil)
	_ readinessGate     = (*HealthGate)(nil)
)

// =============================================================================
// RESTART OPTIONS
// =============================================================================

// RestartOptions are the per-run flags.
type RestartOptions struct {
	// CleanVolumes also removes the stack's volumes on the way down,
	// wiping all emulated storage state.
	CleanVolumes bool

	// SkipSAM disables the runtime start (and its build and readiness
	// gate). A running runtime is still stopped on the way down so the
	// restarted stack never carries a listener wired to the old compose
	// network.
	SkipSAM bool

	// SkipWire skips event subscription wiring.
	SkipWire bool

	// SkipBuckets skips bucket provisioning.
	SkipBuckets bool

	// RebuildSAM runs sam build before starting the runtime.
	RebuildSAM bool
}

// =============================================================================
// RESTART ORCHESTRATOR
// =============================================================================

// RestartOrchestrator sequences a full local-stack restart.
//
// # Description
//
// A restart is a fixed sequence of steps, each with a failure policy:
//
//	stop-runtime        warning   (a runtime that won't die is reported, not fatal)
//	compose-down        fatal     (a daemon that can't tear down can't bring up)
//	compose-up          fatal     (no stack, nothing else can work)
//	health-localstack   fatal
//	health-sagemaker    fatal
//	provision-buckets   warning, or fatal with strict_buckets
//	build-runtime       warning   (only with --rebuild-sam)
//	start-runtime       warning   (the base stack stays usable without it)
//	health-lambda       warning
//	wire-events         warning   (the stack is usable, events can be rewired)
//
// The base stack (storage and inference emulators) is load-bearing, so
// its steps are fatal. Everything layered on top fails soft: the user
// can fix the issue and re-run just that step.
//
// A fatal step aborts the run immediately; warnings are recorded and
// the run continues. Skip flags mark their steps Skipped without
// affecting the rest of the sequence.
//
// # Examples
//
//	orch := NewRestartOrchestrator(deps)
//	report := orch.Run(ctx, RestartOptions{CleanVolumes: true})
//	os.Exit(report.ExitCode())
type RestartOrchestrator struct {
	cfg         config.Config
	composer    compose.Executor
	supervisor  runtimeSupervisor
	gate        readinessGate
	provisioner bucketProvisioner
	wirer       eventWirer
	printer     *ux.Printer
	logger      *logging.Logger

	// probe constructors are replaceable for tests
	localstackProbe Probe
	sagemakerProbe  Probe
	lambdaProbe     Probe
}

// OrchestratorDeps carries the orchestrator's collaborators.
type OrchestratorDeps struct {
	Config      config.Config
	Composer    compose.Executor
	Supervisor  runtimeSupervisor
	Gate        readinessGate
	Provisioner bucketProvisioner
	Wirer       eventWirer
	Printer     *ux.Printer
	Logger      *logging.Logger
}

// NewRestartOrchestrator creates a RestartOrchestrator.
func NewRestartOrchestrator(deps OrchestratorDeps) *RestartOrchestrator {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &RestartOrchestrator{
		cfg:             deps.Config,
		composer:        deps.Composer,
		supervisor:      deps.Supervisor,
		gate:            deps.Gate,
		provisioner:     deps.Provisioner,
		wirer:           deps.Wirer,
		printer:         deps.Printer,
		logger:          deps.Logger,
		localstackProbe: NewLocalStackProbe(deps.Config.Endpoints.LocalStack),
		sagemakerProbe:  NewSageMakerProbe(deps.Config.Endpoints.SageMakerPing),
		lambdaProbe:     NewLambdaProbe(deps.Config.Endpoints.Lambda),
	}
}

// step is one entry in the restart sequence.
type step struct {
	name string

	// skip returns true (with a reason) when a flag excludes the step.
	skip func() (bool, string)

	// run executes the step, returning an optional success detail.
	run func(ctx context.Context) (string, error)

	// failure is the outcome when run errors: StepWarning or StepFatal.
	failure StepOutcome
}

// Run executes the restart sequence and returns its report.
//
// Run never returns an error: every failure mode is a step outcome in
// the report, and ExitCode() maps the report to the process exit code.
func (o *RestartOrchestrator) Run(ctx context.Context, opts RestartOptions) *RunReport {
	start := time.Now()
	report := &RunReport{}

	bucketFailure := StepWarning
	if o.cfg.StrictBuckets {
		bucketFailure = StepFatal
	}

	skipSAM := func() (bool, string) {
		if opts.SkipSAM {
			return true, "--skip-sam"
		}
		return false, ""
	}

	steps := []step{
		{
			// Not gated by --skip-sam: the flag disables the start,
			// never the teardown of what is already running.
			name:    "stop-runtime",
			failure: StepWarning,
			run: func(ctx context.Context) (string, error) {
				return "", o.supervisor.Stop(ctx)
			},
		},
		{
			name:    "compose-down",
			failure: StepFatal,
			run: func(ctx context.Context) (string, error) {
				res, err := o.composer.Down(ctx, compose.DownOptions{RemoveVolumes: opts.CleanVolumes})
				if err != nil {
					return "", err
				}
				if opts.CleanVolumes {
					return fmt.Sprintf("volumes removed (%s)", res.Duration.Round(time.Millisecond)), nil
				}
				return res.Duration.Round(time.Millisecond).String(), nil
			},
		},
		{
			name:    "compose-up",
			failure: StepFatal,
			run: func(ctx context.Context) (string, error) {
				// The compose file names its default network from
				// COMPOSE_NETWORK so the runtime's --docker-network
				// always matches.
				res, err := o.composer.Up(ctx, compose.UpOptions{
					Env: []string{"COMPOSE_NETWORK=" + o.cfg.Compose.Network},
				})
				if err != nil {
					return "", err
				}
				return res.Duration.Round(time.Millisecond).String(), nil
			},
		},
		{
			name:    "health-localstack",
			failure: StepFatal,
			run: func(ctx context.Context) (string, error) {
				return o.waitFor(ctx, o.localstackProbe)
			},
		},
		{
			name:    "health-sagemaker",
			failure: StepFatal,
			run: func(ctx context.Context) (string, error) {
				return o.waitFor(ctx, o.sagemakerProbe)
			},
		},
		{
			name: "provision-buckets",
			skip: func() (bool, string) {
				if opts.SkipBuckets {
					return true, "--skip-buckets"
				}
				return false, ""
			},
			failure: bucketFailure,
			run: func(ctx context.Context) (string, error) {
				buckets := awslocal.BucketSet{
					Upload: o.cfg.Buckets.Upload,
					Mask:   o.cfg.Buckets.Mask,
					Output: o.cfg.Buckets.Output,
				}
				if err := o.provisioner.EnsureBuckets(ctx, buckets); err != nil {
					return "", err
				}
				return fmt.Sprintf("%s, %s, %s", buckets.Upload, buckets.Mask, buckets.Output), nil
			},
		},
		{
			name: "build-runtime",
			skip: func() (bool, string) {
				if opts.SkipSAM {
					return true, "--skip-sam"
				}
				if !opts.RebuildSAM {
					return true, "pass --rebuild-sam to build"
				}
				return false, ""
			},
			failure: StepWarning,
			run: func(ctx context.Context) (string, error) {
				return "", o.supervisor.Build(ctx)
			},
		},
		{
			name:    "start-runtime",
			skip:    skipSAM,
			failure: StepWarning,
			run: func(ctx context.Context) (string, error) {
				started, err := o.supervisor.Start(ctx)
				if err != nil {
					return "", err
				}
				if !started {
					return "already running", nil
				}
				return "", nil
			},
		},
		{
			// Warning, not fatal: the runtime is not base stack, and a
			// gate timeout here should not discard the healthy emulators.
			name:    "health-lambda",
			skip:    skipSAM,
			failure: StepWarning,
			run: func(ctx context.Context) (string, error) {
				return o.waitFor(ctx, o.lambdaProbe)
			},
		},
		{
			name: "wire-events",
			skip: func() (bool, string) {
				if opts.SkipWire {
					return true, "--skip-wire"
				}
				return false, ""
			},
			failure: StepWarning,
			run: func(ctx context.Context) (string, error) {
				return "", o.wirer.WireEvents(ctx, o.cfg.Buckets.Upload, o.cfg.Buckets.Mask)
			},
		},
	}

	for _, st := range steps {
		result := o.runStep(ctx, st)
		report.Steps = append(report.Steps, result)
		if result.Outcome == StepFatal {
			break
		}
	}

	report.Elapsed = time.Since(start)
	return report
}

// runStep executes one step and renders its outcome.
func (o *RestartOrchestrator) runStep(ctx context.Context, st step) StepResult {
	if st.skip != nil {
		if skip, reason := st.skip(); skip {
			o.print(func(p *ux.Printer) { p.Skipped(fmt.Sprintf("%s (%s)", st.name, reason)) })
			return StepResult{Name: st.name, Outcome: StepSkipped, Detail: reason}
		}
	}

	o.print(func(p *ux.Printer) { p.Step(st.name) })
	o.logger.Info("step starting", "step", st.name)

	start := time.Now()
	detail, err := st.run(ctx)
	elapsed := time.Since(start)

	if err != nil {
		o.logger.Error("step failed",
			"step", st.name,
			"outcome", st.failure.String(),
			"error", err.Error(),
			"elapsed_ms", elapsed.Milliseconds(),
		)
		if st.failure == StepFatal {
			o.print(func(p *ux.Printer) { p.Error(fmt.Sprintf("%s: %v", st.name, err)) })
		} else {
			o.print(func(p *ux.Printer) { p.Warning(fmt.Sprintf("%s: %v", st.name, err)) })
		}
		return StepResult{Name: st.name, Outcome: st.failure, Err: err, Elapsed: elapsed}
	}

	o.logger.Info("step completed", "step", st.name, "elapsed_ms", elapsed.Milliseconds())
	msg := st.name
	if detail != "" {
		msg = fmt.Sprintf("%s (%s)", st.name, detail)
	}
	o.print(func(p *ux.Printer) { p.Success(msg) })
	return StepResult{Name: st.name, Outcome: StepSuccess, Detail: detail, Elapsed: elapsed}
}

// waitFor gates on a probe and formats the attempt count as detail.
func (o *RestartOrchestrator) waitFor(ctx context.Context, probe Probe) (string, error) {
	result, err := o.gate.Wait(ctx, probe)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d attempt(s), %s", result.Attempts, result.Elapsed.Round(time.Millisecond)), nil
}

// print runs fn against the printer when one is configured.
func (o *RestartOrchestrator) print(fn func(*ux.Printer)) {
	if o.printer != nil {
		fn(o.printer)
	}
}
