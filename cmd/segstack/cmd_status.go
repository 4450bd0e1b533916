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
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/infra/compose"
	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/infra/process"
	"github.com/AleutianAI/SegStackLocal/pkg/logging"
	"github.com/AleutianAI/SegStackLocal/pkg/ux"
)

// runStatus shows compose service state, runtime state, and one probe
// pass over the emulator endpoints.
func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := logging.New(logging.Config{Service: "segstack", Quiet: true})
	defer logger.Close()

	printer := ux.NewPrinter(os.Stdout)
	printer.Plain = plainOutput
	printer.Title("segstack status")

	proc := process.NewDefaultManager()
	composer, err := compose.NewDefaultExecutor(compose.Config{
		Command:     cfg.ComposeCommand(),
		StackDir:    cfg.Compose.StackDir,
		File:        cfg.Compose.File,
		ProjectName: cfg.Compose.Project,
	}, proc)
	if err != nil {
		log.Fatalf("Error configuring compose executor: %v", err)
	}

	status, err := composer.Status(ctx)
	if err != nil {
		printer.Warning(fmt.Sprintf("compose status unavailable: %v", err))
	} else {
		printer.Info(fmt.Sprintf("compose: %d/%d services running", status.Running, len(status.Services)))
		for _, svc := range status.Services {
			line := fmt.Sprintf("%s: %s", svc.Name, svc.State)
			if svc.Health != "" {
				line += " (" + svc.Health + ")"
			}
			if svc.State == "running" {
				printer.Success(line)
			} else {
				printer.Warning(line)
			}
		}
	}

	supervisor := NewSamSupervisor(proc, cfg, logger)
	if running, pid := supervisor.Status(ctx); running {
		printer.Success(fmt.Sprintf("function runtime: running (pid %d)", pid))
	} else {
		printer.Warning("function runtime: not running")
	}

	probes := []Probe{
		NewLocalStackProbe(cfg.Endpoints.LocalStack),
		NewSageMakerProbe(cfg.Endpoints.SageMakerPing),
		NewLambdaProbe(cfg.Endpoints.Lambda),
	}
	for _, probe := range probes {
		result := probe.Check(ctx)
		switch result.State {
		case ProbeHealthy:
			printer.Success(probe.Name() + ": healthy")
		case ProbeStarting:
			printer.Warning(fmt.Sprintf("%s: starting (%s)", probe.Name(), result.Detail))
		default:
			printer.Error(fmt.Sprintf("%s: unhealthy (%s)", probe.Name(), result.Detail))
		}
	}
}
