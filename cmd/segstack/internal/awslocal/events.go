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
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Pipeline function names as declared in the SAM template.
const (
	// TriggerFunction runs when an original image lands in the upload
	// bucket and calls the inference emulator.
	TriggerFunction = "TriggerSageMakerFunction"

	// ApplyFunction runs when mask metadata lands in the mask bucket and
	// composes the final outputs.
	ApplyFunction = "ApplyMasksFunction"
)

// MetadataSuffix filters the mask-bucket subscription to metadata objects,
// so mask PNG uploads do not re-trigger the apply function.
const MetadataSuffix = ".json"

// Wirer subscribes the running function-runtime endpoints to storage change
// events.
//
// # Description
//
// Two subscriptions are established:
//
//   - upload bucket, s3:ObjectCreated:* → TriggerSageMakerFunction
//   - mask bucket, s3:ObjectCreated:* with suffix .json → ApplyMasksFunction
//
// Wiring is safe to re-invoke: AddPermission conflicts are tolerated and
// PutBucketNotificationConfiguration replaces the previous configuration.
//
// # Assumptions
//
//   - The SAM runtime is reachable at the configured Lambda endpoint
//   - Buckets already exist (Provisioner runs first)
type Wirer struct {
	s3     S3API
	lambda LambdaAPI
	region string
}

// NewWirer creates a Wirer from emulator clients.
func NewWirer(s3Client S3API, lambdaClient LambdaAPI, region string) *Wirer {
	if region == "" {
		region = "us-east-1"
	}
	return &Wirer{s3: s3Client, lambda: lambdaClient, region: region}
}

// WireEvents establishes both pipeline subscriptions.
//
// # Inputs
//
//   - ctx: Context for cancellation/timeout
//   - uploadBucket: Bucket whose uploads trigger inference
//   - maskBucket: Bucket whose metadata objects trigger mask application
//
// # Outputs
//
//   - error: Non-nil if a permission grant or notification configuration
//     fails. Re-invocation over existing wiring is not an error.
func (w *Wirer) WireEvents(ctx context.Context, uploadBucket, maskBucket string) error {
	if uploadBucket == "" || maskBucket == "" {
		return fmt.Errorf("event wiring requires upload and mask bucket names")
	}

	if err := w.ensurePermission(ctx, TriggerFunction, uploadBucket); err != nil {
		return err
	}
	if err := w.ensurePermission(ctx, ApplyFunction, maskBucket); err != nil {
		return err
	}

	if err := w.configureNotification(ctx, uploadBucket, w.functionARN(TriggerFunction), ""); err != nil {
		return fmt.Errorf("failed to subscribe %s to %s: %w", TriggerFunction, uploadBucket, err)
	}
	if err := w.configureNotification(ctx, maskBucket, w.functionARN(ApplyFunction), MetadataSuffix); err != nil {
		return fmt.Errorf("failed to subscribe %s to %s: %w", ApplyFunction, maskBucket, err)
	}

	return nil
}

// ensurePermission grants s3.amazonaws.com invoke rights on the function.
// A conflicting (pre-existing) statement is treated as success.
func (w *Wirer) ensurePermission(ctx context.Context, function, bucket string) error {
	_, err := w.lambda.AddPermission(ctx, &lambda.AddPermissionInput{
		FunctionName: aws.String(function),
		StatementId:  aws.String("AllowExecutionFrom" + function),
		Action:       aws.String("lambda:InvokeFunction"),
		Principal:    aws.String("s3.amazonaws.com"),
		SourceArn:    aws.String("arn:aws:s3:::" + bucket),
	})
	if err != nil {
		var conflict *lambdatypes.ResourceConflictException
		if errors.As(err, &conflict) {
			return nil
		}
		return fmt.Errorf("failed to grant invoke permission on %s: %w", function, err)
	}
	return nil
}

// configureNotification points the bucket's ObjectCreated events at the
// function ARN, optionally filtered by key suffix.
func (w *Wirer) configureNotification(ctx context.Context, bucket, functionARN, suffix string) error {
	cfg := s3types.LambdaFunctionConfiguration{
		LambdaFunctionArn: aws.String(functionARN),
		Events:            []s3types.Event{s3types.EventS3ObjectCreated},
	}

	if suffix != "" {
		cfg.Filter = &s3types.NotificationConfigurationFilter{
			Key: &s3types.S3KeyFilter{
				FilterRules: []s3types.FilterRule{
					{
						Name:  s3types.FilterRuleNameSuffix,
						Value: aws.String(suffix),
					},
				},
			},
		}
	}

	_, err := w.s3.PutBucketNotificationConfiguration(ctx, &s3.PutBucketNotificationConfigurationInput{
		Bucket: aws.String(bucket),
		NotificationConfiguration: &s3types.NotificationConfiguration{
			LambdaFunctionConfigurations: []s3types.LambdaFunctionConfiguration{cfg},
		},
	})
	return err
}

// functionARN builds the ARN SAM local assigns to a declared function.
func (w *Wirer) functionARN(function string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", w.region, LocalAccountID, function)
}
