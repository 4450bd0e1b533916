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
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProbeHTTPClient is a configurable ProbeHTTPClient double.
type mockProbeHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockProbeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.DoFunc(req)
}

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// =============================================================================
// LocalStack Probe Tests
// =============================================================================

func TestLocalStackProbe_Check(t *testing.T) {
	tests := []struct {
		name      string
		response  *http.Response
		err       error
		wantState ProbeState
	}{
		{
			name:      "s3 available",
			response:  httpResponse(200, `{"services":{"s3":"available"}}`),
			wantState: ProbeHealthy,
		},
		{
			name:      "s3 running",
			response:  httpResponse(200, `{"services":{"s3":"running","lambda":"available"}}`),
			wantState: ProbeHealthy,
		},
		{
			name:      "s3 initializing",
			response:  httpResponse(200, `{"services":{"s3":"initializing"}}`),
			wantState: ProbeStarting,
		},
		{
			name:      "s3 not reported",
			response:  httpResponse(200, `{"services":{}}`),
			wantState: ProbeUnhealthy,
		},
		{
			name:      "non-200 while booting",
			response:  httpResponse(503, ""),
			wantState: ProbeStarting,
		},
		{
			name:      "malformed body",
			response:  httpResponse(200, "not json"),
			wantState: ProbeUnhealthy,
		},
		{
			name:      "connection refused",
			err:       errors.New("dial tcp: connection refused"),
			wantState: ProbeStarting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := NewLocalStackProbe("http://localhost:4566")
			probe.client = &mockProbeHTTPClient{
				DoFunc: func(req *http.Request) (*http.Response, error) {
					assert.Equal(t, "http://localhost:4566/_localstack/health", req.URL.String())
					if tt.err != nil {
						return nil, tt.err
					}
					return tt.response, nil
				},
			}

			result := probe.Check(context.Background())
			assert.Equal(t, tt.wantState, result.State)
		})
	}
}

// =============================================================================
// SageMaker Probe Tests
// =============================================================================

func TestSageMakerProbe_Check(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		err       error
		wantState ProbeState
	}{
		{name: "ping ok", status: 200, wantState: ProbeHealthy},
		{name: "model loading", status: 503, wantState: ProbeStarting},
		{name: "connection refused", err: errors.New("connection refused"), wantState: ProbeStarting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := NewSageMakerProbe("http://localhost:8080/ping")
			probe.client = &mockProbeHTTPClient{
				DoFunc: func(req *http.Request) (*http.Response, error) {
					assert.Equal(t, "http://localhost:8080/ping", req.URL.String())
					if tt.err != nil {
						return nil, tt.err
					}
					return httpResponse(tt.status, ""), nil
				},
			}

			result := probe.Check(context.Background())
			assert.Equal(t, tt.wantState, result.State)
		})
	}
}

// =============================================================================
// Lambda Probe Tests
// =============================================================================

func TestNewLambdaProbe_AddressParsing(t *testing.T) {
	tests := []struct {
		endpoint string
		wantAddr string
	}{
		{"http://127.0.0.1:3001", "127.0.0.1:3001"},
		{"http://localhost:3001", "localhost:3001"},
		{"http://example.com", "example.com:80"},
		{"127.0.0.1:3001", "127.0.0.1:3001"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			probe := NewLambdaProbe(tt.endpoint)
			assert.Equal(t, tt.wantAddr, probe.addr)
		})
	}
}

func TestLambdaProbe_Check_ListenerUp(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	probe := NewLambdaProbe("http://" + listener.Addr().String())
	result := probe.Check(context.Background())
	assert.Equal(t, ProbeHealthy, result.State)
}

func TestLambdaProbe_Check_NoListener(t *testing.T) {
	// grab a port and release it so nothing is listening
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	probe := NewLambdaProbe("http://" + addr)
	result := probe.Check(context.Background())
	assert.Equal(t, ProbeStarting, result.State)
	assert.NotEmpty(t, result.Detail)
}
