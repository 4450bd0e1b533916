// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package awslocal provisions LocalStack buckets and wires storage-change
// events to the locally running function runtime.
//
// Everything here talks to emulators: the S3 API is LocalStack and the
// Lambda API is `sam local start-lambda`. Credentials are the static test
// pair LocalStack expects; nothing in this package can reach real AWS.
package awslocal

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LocalAccountID is the account id LocalStack assigns to all resources.
const LocalAccountID = "000000000000"

// S3API is the narrow slice of the S3 client used by this package.
//
// *s3.Client satisfies it; tests provide mocks.
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	PutBucketNotificationConfiguration(ctx context.Context, params *s3.PutBucketNotificationConfigurationInput, optFns ...func(*s3.Options)) (*s3.PutBucketNotificationConfigurationOutput, error)
}

// LambdaAPI is the narrow slice of the Lambda client used by this package.
type LambdaAPI interface {
	AddPermission(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error)
}

// ClientConfig carries the endpoints and region for emulator clients.
type ClientConfig struct {
	// S3Endpoint is the LocalStack edge URL, e.g. "http://localhost:4566".
	S3Endpoint string

	// LambdaEndpoint is the sam local start-lambda URL,
	// e.g. "http://127.0.0.1:3001".
	LambdaEndpoint string

	// Region for signing and ARNs. Default "us-east-1".
	Region string
}

// NewS3Client builds an S3 client pointed at LocalStack.
//
// Path-style addressing is required: LocalStack does not serve
// virtual-hosted bucket DNS.
func NewS3Client(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	awsCfg, err := loadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	}), nil
}

// NewLambdaClient builds a Lambda client pointed at the SAM local runtime.
func NewLambdaClient(ctx context.Context, cfg ClientConfig) (*lambda.Client, error) {
	awsCfg, err := loadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return lambda.NewFromConfig(awsCfg, func(o *lambda.Options) {
		o.BaseEndpoint = aws.String(cfg.LambdaEndpoint)
	}), nil
}

func loadConfig(ctx context.Context, cfg ClientConfig) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to build emulator client config: %w", err)
	}
	return awsCfg, nil
}
