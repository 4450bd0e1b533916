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
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/awslocal"
	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/infra/compose"
	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/infra/process"
	"github.com/AleutianAI/SegStackLocal/pkg/logging"
	"github.com/AleutianAI/SegStackLocal/pkg/ux"
)

// runRestart executes the full restart sequence.
func runRestart(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "segstack",
		Quiet:   true, // stderr carries the step progress lines instead
		LogDir:  "~/.segstack/logs",
	})

	printer := ux.NewPrinter(os.Stderr)
	printer.Plain = plainOutput

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

	s3Client, err := awslocal.NewS3Client(ctx, awslocal.ClientConfig{
		S3Endpoint: cfg.Endpoints.LocalStack,
		Region:     cfg.Endpoints.Region,
	})
	if err != nil {
		log.Fatalf("Error creating storage client: %v", err)
	}
	lambdaClient, err := awslocal.NewLambdaClient(ctx, awslocal.ClientConfig{
		LambdaEndpoint: cfg.Endpoints.Lambda,
		Region:         cfg.Endpoints.Region,
	})
	if err != nil {
		log.Fatalf("Error creating lambda client: %v", err)
	}

	orch := NewRestartOrchestrator(OrchestratorDeps{
		Config:      cfg,
		Composer:    composer,
		Supervisor:  NewSamSupervisor(proc, cfg, logger),
		Gate:        NewHealthGate(cfg.Health.Retries, cfg.HealthInterval(), logger),
		Provisioner: awslocal.NewProvisioner(s3Client),
		Wirer:       awslocal.NewWirer(s3Client, lambdaClient, cfg.Endpoints.Region),
		Printer:     printer,
		Logger:      logger,
	})

	printer.Title("segstack restart")
	report := orch.Run(ctx, RestartOptions{
		CleanVolumes: cleanVolumes,
		SkipSAM:      skipSAM,
		SkipWire:     skipWire,
		SkipBuckets:  skipBuckets,
		RebuildSAM:   rebuildSAM,
	})

	succeeded, warned, skipped := report.Counts()
	printer.Summary(succeeded, warned, skipped, report.Elapsed)
	if report.Fatal() {
		printer.Error("restart aborted")
	}

	// os.Exit skips deferred calls; flush the file log explicitly.
	logger.Close()
	cancel()
	os.Exit(report.ExitCode())
}
