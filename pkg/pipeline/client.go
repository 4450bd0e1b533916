// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline drives the segmentation pipeline end to end from the CLI:
// upload an image to the upload bucket, then poll the output bucket until
// the processed result and thumbnail appear.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrTimedOut indicates the result did not appear within the
	// configured polling budget.
	ErrTimedOut = errors.New("timed out waiting for pipeline result")

	// ErrInvalidInput indicates a missing or unreadable input file.
	ErrInvalidInput = errors.New("invalid pipeline input")
)

// Output-bucket key prefixes written by the processing functions.
const (
	ProcessedPrefix = "processed/"
	ThumbnailPrefix = "thumbnails/"
)

// =============================================================================
// Object Store Interface
// =============================================================================

// ObjectStore is the narrow slice of the S3 API the pipeline client uses.
//
// *s3.Client satisfies it. Tests substitute a mock.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// =============================================================================
// Client
// =============================================================================

// Config configures a pipeline Client.
type Config struct {
	// UploadBucket receives original images.
	UploadBucket string

	// OutputBucket holds processed results and thumbnails.
	OutputBucket string

	// PollAttempts is the maximum number of result probes.
	// Default: 30
	PollAttempts int

	// PollInterval is the fixed sleep between probes.
	// Default: 2s
	PollInterval time.Duration
}

// Result describes a completed pipeline run.
type Result struct {
	// Key is the uploaded object key in the upload bucket.
	Key string

	// ProcessedKey is the result object key in the output bucket.
	ProcessedKey string

	// ThumbnailKey is the thumbnail key in the output bucket,
	// empty if no thumbnail appeared within the polling budget.
	ThumbnailKey string

	// Attempts is how many probes ran before the result appeared.
	Attempts int

	// Elapsed is the total wait from upload to result.
	Elapsed time.Duration
}

// Client uploads images and waits for segmentation results.
//
// # Description
//
// Client is the demo/debug path of the local stack: it exercises the
// same event chain production traffic would (upload bucket event ->
// trigger function -> inference -> mask event -> apply function ->
// output bucket) without any of those components knowing about it.
//
// # Assumptions
//
//   - The stack is up and events are wired (segstack restart has run).
//   - The processing functions write results under processed/ and
//     thumbnails/ using the uploaded object's base name.
type Client struct {
	store  ObjectStore
	config Config

	// sleep is replaceable for deterministic tests.
	sleep func(ctx context.Context, d time.Duration)
}

// sleepContext sleeps for d or until ctx is cancelled, whichever is
// first.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// NewClient creates a pipeline Client.
//
// Zero-value PollAttempts and PollInterval take the defaults (30 probes,
// 2 second interval).
func NewClient(store ObjectStore, config Config) *Client {
	if config.PollAttempts <= 0 {
		config.PollAttempts = 30
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &Client{
		store:  store,
		config: config,
		sleep:  sleepContext,
	}
}

// Run uploads the file at path and waits for the processed result.
//
// # Description
//
// The object key is the file's base name. After upload, Run probes the
// output bucket for processed/<base> at a fixed interval, up to the
// configured attempt budget. Once the processed object exists, a single
// probe checks for thumbnails/<base>; a missing thumbnail is not an error.
//
// # Outputs
//
//   - *Result: Keys and timing of the completed run
//   - error: ErrInvalidInput for an unreadable file, ErrTimedOut when
//     the budget is exhausted, or the upload error
func (c *Client) Run(ctx context.Context, path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer file.Close()

	key := filepath.Base(path)
	start := time.Now()

	_, err = c.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.config.UploadBucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	processedKey := ProcessedPrefix + key
	attempts := 0
	for attempts < c.config.PollAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++

		exists, err := c.objectExists(ctx, c.config.OutputBucket, processedKey)
		if err != nil {
			return nil, err
		}
		if exists {
			result := &Result{
				Key:          key,
				ProcessedKey: processedKey,
				Attempts:     attempts,
				Elapsed:      time.Since(start),
			}
			thumbKey := ThumbnailPrefix + key
			if ok, _ := c.objectExists(ctx, c.config.OutputBucket, thumbKey); ok {
				result.ThumbnailKey = thumbKey
			}
			return result, nil
		}

		if attempts < c.config.PollAttempts {
			c.sleep(ctx, c.config.PollInterval)
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts", ErrTimedOut, processedKey, attempts)
}

// objectExists probes a key with HeadObject. A NotFound response maps
// to (false, nil); other failures propagate.
func (c *Client) objectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.store.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to probe s3://%s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// isNotFound reports whether err is an S3 404.
//
// HeadObject surfaces missing keys as smithy API errors with code
// NotFound (no modeled NoSuchKey type on head requests).
func isNotFound(err error) bool {
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
