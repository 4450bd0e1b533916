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
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/awslocal"
	"github.com/AleutianAI/SegStackLocal/pkg/pipeline"
	"github.com/AleutianAI/SegStackLocal/pkg/ux"
)

// runUpload pushes an image through the pipeline and waits for results.
func runUpload(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	printer := ux.NewPrinter(os.Stdout)
	printer.Plain = plainOutput

	s3Client, err := awslocal.NewS3Client(ctx, awslocal.ClientConfig{
		S3Endpoint: cfg.Endpoints.LocalStack,
		Region:     cfg.Endpoints.Region,
	})
	if err != nil {
		log.Fatalf("Error creating storage client: %v", err)
	}

	client := pipeline.NewClient(s3Client, pipeline.Config{
		UploadBucket: cfg.Buckets.Upload,
		OutputBucket: cfg.Buckets.Output,
		PollAttempts: cfg.Health.Retries,
		PollInterval: cfg.HealthInterval(),
	})

	printer.Step(fmt.Sprintf("uploading %s", args[0]))
	result, err := client.Run(ctx, args[0])
	if err != nil {
		printer.Error(err.Error())
		os.Exit(1)
	}

	printer.Success(fmt.Sprintf("processed: s3://%s/%s", cfg.Buckets.Output, result.ProcessedKey))
	if result.ThumbnailKey != "" {
		printer.Success(fmt.Sprintf("thumbnail: s3://%s/%s", cfg.Buckets.Output, result.ThumbnailKey))
	} else {
		printer.Warning("no thumbnail produced")
	}
	printer.Info(fmt.Sprintf("%d attempt(s), %s", result.Attempts, result.Elapsed.Round(time.Millisecond)))
}
