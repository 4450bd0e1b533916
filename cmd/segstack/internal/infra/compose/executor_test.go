// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SegStackLocal/cmd/segstack/internal/infra/process"
)

func newTestExecutor(t *testing.T, mock *process.MockManager) *DefaultExecutor {
	t.Helper()
	e, err := NewDefaultExecutor(Config{
		Command:  []string{"docker", "compose"},
		StackDir: "./stack",
	}, mock)
	require.NoError(t, err)
	return e
}

func TestNewDefaultExecutor_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing command", cfg: Config{StackDir: "./stack"}},
		{name: "missing stack dir", cfg: Config{Command: []string{"docker", "compose"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDefaultExecutor(tt.cfg, &process.MockManager{})
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDefaultExecutor_Down_BuildsExpectedArgs(t *testing.T) {
	mock := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "", 0, nil
		},
	}
	e := newTestExecutor(t, mock)

	result, err := e.Down(context.Background(), DownOptions{RemoveVolumes: true})
	require.NoError(t, err)
	assert.True(t, result.Success)

	calls := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "docker", calls[0].Name)
	assert.Equal(t, "./stack", calls[0].Dir)
	assert.Equal(t, []string{"compose", "-f", "docker-compose.yml", "-p", "segstack", "down", "--remove-orphans", "-v"}, calls[0].Args)
}

func TestDefaultExecutor_Down_WithoutVolumes(t *testing.T) {
	mock := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "", 0, nil
		},
	}
	e := newTestExecutor(t, mock)

	_, err := e.Down(context.Background(), DownOptions{})
	require.NoError(t, err)

	calls := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].Args, "-v")
}

func TestDefaultExecutor_Up_ForceBuild(t *testing.T) {
	var seenEnv []string
	mock := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			seenEnv = env
			return "", "", 0, nil
		},
	}
	e := newTestExecutor(t, mock)

	_, err := e.Up(context.Background(), UpOptions{
		ForceBuild: true,
		Env:        []string{"UPLOAD_BUCKET=uploads"},
	})
	require.NoError(t, err)

	calls := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Args, "up")
	assert.Contains(t, calls[0].Args, "--build")
	assert.Equal(t, []string{"UPLOAD_BUCKET=uploads"}, seenEnv)
}

func TestDefaultExecutor_Up_FailureWrapsSentinel(t *testing.T) {
	mock := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "no such file", 1, errors.New("exit status 1")
		},
	}
	e := newTestExecutor(t, mock)

	result, err := e.Up(context.Background(), UpOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComposeFailed)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ExitCode)
}

func TestDefaultExecutor_Status_ParsesLineDelimitedJSON(t *testing.T) {
	output := `{"Name":"segstack-localstack-1","Service":"localstack","State":"running","Health":"healthy"}
{"Name":"segstack-sagemaker-local-1","Service":"sagemaker-local","State":"running","Health":""}
{"Name":"segstack-old-1","Service":"old","State":"exited","Health":""}`

	mock := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return output, "", 0, nil
		},
	}
	e := newTestExecutor(t, mock)

	status, err := e.Status(context.Background())
	require.NoError(t, err)

	require.Len(t, status.Services, 3)
	assert.Equal(t, 2, status.Running)
	assert.Equal(t, "localstack", status.Services[0].Name)
	assert.Equal(t, "healthy", status.Services[0].Health)
	assert.Equal(t, "exited", status.Services[2].State)
}

func TestParseStatus_ArrayAndEmptyShapes(t *testing.T) {
	status, err := parseStatus(`[{"Name":"segstack-localstack-1","Service":"localstack","State":"running"}]`)
	require.NoError(t, err)
	require.Len(t, status.Services, 1)
	assert.Equal(t, 1, status.Running)

	status, err = parseStatus("   \n")
	require.NoError(t, err)
	assert.Empty(t, status.Services)
}

func TestParseStatus_Malformed(t *testing.T) {
	_, err := parseStatus("{not json")
	assert.Error(t, err)
}
