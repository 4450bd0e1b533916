// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// notFoundErr mimics the smithy API error HeadObject returns for a
// missing key.
type notFoundErr struct{}

func (notFoundErr) Error() string     { return "NotFound: not found" }
func (notFoundErr) ErrorCode() string { return "NotFound" }

// mockStore is a hand-rolled ObjectStore double.
type mockStore struct {
	mu sync.Mutex

	PutObjectFunc  func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	HeadObjectFunc func(ctx context.Context, params *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)

	puts  []s3.PutObjectInput
	heads []s3.HeadObjectInput
}

func (m *mockStore) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	m.puts = append(m.puts, *params)
	m.mu.Unlock()
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, params)
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockStore) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	m.heads = append(m.heads, *params)
	m.mu.Unlock()
	if m.HeadObjectFunc != nil {
		return m.HeadObjectFunc(ctx, params)
	}
	return &s3.HeadObjectOutput{}, nil
}

func writeTempImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cat.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o600))
	return path
}

func newTestClient(store *mockStore, attempts int) *Client {
	c := NewClient(store, Config{
		UploadBucket: "uploads",
		OutputBucket: "outputs",
		PollAttempts: attempts,
		PollInterval: time.Millisecond,
	})
	c.sleep = func(context.Context, time.Duration) {}
	return c
}

func TestClient_Run_ResultOnSecondProbe(t *testing.T) {
	probes := 0
	store := &mockStore{
		HeadObjectFunc: func(_ context.Context, params *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			if *params.Key == ProcessedPrefix+"cat.jpg" {
				probes++
				if probes < 2 {
					return nil, notFoundErr{}
				}
			}
			return &s3.HeadObjectOutput{}, nil
		},
	}
	client := newTestClient(store, 5)

	result, err := client.Run(context.Background(), writeTempImage(t))
	require.NoError(t, err)

	assert.Equal(t, "cat.jpg", result.Key)
	assert.Equal(t, "processed/cat.jpg", result.ProcessedKey)
	assert.Equal(t, "thumbnails/cat.jpg", result.ThumbnailKey)
	// result appeared on the second probe, so exactly 2 attempts ran
	assert.Equal(t, 2, result.Attempts)

	require.Len(t, store.puts, 1)
	assert.Equal(t, "uploads", *store.puts[0].Bucket)
	assert.Equal(t, "cat.jpg", *store.puts[0].Key)
}

func TestClient_Run_MissingThumbnailIsNotAnError(t *testing.T) {
	store := &mockStore{
		HeadObjectFunc: func(_ context.Context, params *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			if *params.Key == ThumbnailPrefix+"cat.jpg" {
				return nil, notFoundErr{}
			}
			return &s3.HeadObjectOutput{}, nil
		},
	}
	client := newTestClient(store, 5)

	result, err := client.Run(context.Background(), writeTempImage(t))
	require.NoError(t, err)
	assert.Empty(t, result.ThumbnailKey)
}

func TestClient_Run_TimesOutAfterBudget(t *testing.T) {
	probes := 0
	store := &mockStore{
		HeadObjectFunc: func(_ context.Context, _ *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			probes++
			return nil, notFoundErr{}
		},
	}
	client := newTestClient(store, 3)

	_, err := client.Run(context.Background(), writeTempImage(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimedOut)
	// never probes past the budget
	assert.Equal(t, 3, probes)
}

func TestClient_Run_UnreadableInput(t *testing.T) {
	client := newTestClient(&mockStore{}, 3)

	_, err := client.Run(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClient_Run_UploadFailure(t *testing.T) {
	store := &mockStore{
		PutObjectFunc: func(_ context.Context, _ *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			return nil, errors.New("connection refused")
		},
	}
	client := newTestClient(store, 3)

	_, err := client.Run(context.Background(), writeTempImage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upload")
}

func TestClient_Run_ProbeFailurePropagates(t *testing.T) {
	store := &mockStore{
		HeadObjectFunc: func(_ context.Context, _ *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, errors.New("access denied")
		},
	}
	client := newTestClient(store, 3)

	_, err := client.Run(context.Background(), writeTempImage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to probe")
}

func TestClient_Run_CancelledContext(t *testing.T) {
	store := &mockStore{
		HeadObjectFunc: func(_ context.Context, _ *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, notFoundErr{}
		},
	}
	client := newTestClient(store, 100)

	ctx, cancel := context.WithCancel(context.Background())
	client.sleep = func(context.Context, time.Duration) { cancel() }

	_, err := client.Run(ctx, writeTempImage(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Run_CancelInterruptsSleep(t *testing.T) {
	// Real sleepContext with a long interval: Run must return promptly
	// when cancelled mid-sleep.
	store := &mockStore{
		HeadObjectFunc: func(_ context.Context, _ *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, notFoundErr{}
		},
	}
	client := NewClient(store, Config{
		UploadBucket: "uploads",
		OutputBucket: "outputs",
		PollAttempts: 100,
		PollInterval: time.Minute,
	})
	path := writeTempImage(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var err error
	go func() {
		_, err = client.Run(ctx, path)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(&mockStore{}, Config{UploadBucket: "u", OutputBucket: "o"})
	assert.Equal(t, 30, client.config.PollAttempts)
	assert.Equal(t, 2*time.Second, client.config.PollInterval)
}
