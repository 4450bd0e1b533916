// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package awslocal

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// BucketSet names the three pipeline buckets.
type BucketSet struct {
	// Upload receives the original images.
	Upload string

	// Mask receives generated masks and their metadata.
	Mask string

	// Output receives processed results; it is the only publicly readable
	// bucket (the browser client fetches results directly from it).
	Output string
}

// Validate checks that all three bucket names are present.
func (b BucketSet) Validate() error {
	if b.Upload == "" || b.Mask == "" || b.Output == "" {
		return fmt.Errorf("bucket set incomplete: upload=%q mask=%q output=%q", b.Upload, b.Mask, b.Output)
	}
	return nil
}

// Provisioner idempotently creates the pipeline buckets and sets the output
// bucket's access policy.
//
// # Description
//
// Creating a bucket that already exists is not an error: LocalStack returns
// BucketAlreadyOwnedByYou (or BucketAlreadyExists), both of which are
// treated as success so the orchestrator can re-run from any state.
//
// # Thread Safety
//
// Safe for concurrent use; holds no mutable state.
type Provisioner struct {
	s3 S3API
}

// NewProvisioner creates a Provisioner on top of an S3 client.
func NewProvisioner(client S3API) *Provisioner {
	return &Provisioner{s3: client}
}

// EnsureBuckets creates the three buckets if missing and applies the
// public-read policy to the output bucket.
//
// # Inputs
//
//   - ctx: Context for cancellation/timeout
//   - buckets: The three pipeline bucket names
//
// # Outputs
//
//   - error: Non-nil if a bucket cannot be created or the policy cannot be
//     applied. Pre-existing buckets are not errors.
func (p *Provisioner) EnsureBuckets(ctx context.Context, buckets BucketSet) error {
	if err := buckets.Validate(); err != nil {
		return err
	}

	for _, name := range []string{buckets.Upload, buckets.Mask, buckets.Output} {
		if err := p.ensureBucket(ctx, name); err != nil {
			return err
		}
	}

	if err := p.applyPublicReadPolicy(ctx, buckets.Output); err != nil {
		return fmt.Errorf("failed to set public-read policy on %s: %w", buckets.Output, err)
	}

	return nil
}

// ensureBucket creates one bucket, tolerating already-exists responses.
func (p *Provisioner) ensureBucket(ctx context.Context, name string) error {
	_, err := p.s3.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		var exists *s3types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", name, err)
	}
	return nil
}

// applyPublicReadPolicy grants anonymous s3:GetObject on the bucket.
func (p *Provisioner) applyPublicReadPolicy(ctx context.Context, bucket string) error {
	policy := fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "PublicReadGetObject",
      "Effect": "Allow",
      "Principal": "*",
      "Action": "s3:GetObject",
      "Resource": "arn:aws:s3:::%s/*"
    }
  ]
}`, bucket)

	_, err := p.s3.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(policy),
	})
	return err
}
