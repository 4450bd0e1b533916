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
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// =============================================================================
// INTERFACES
// =============================================================================

// ProbeHTTPClient abstracts HTTP operations for readiness probes.
//
// Probes use the standard http.Client.Do pattern so tests can inject
// canned responses.
type ProbeHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// =============================================================================
// LOCALSTACK PROBE
// =============================================================================

// LocalStackProbe checks the storage emulator's health endpoint.
//
// # Description
//
// Probes GET {endpoint}/_localstack/health and inspects the reported
// state of the s3 service. LocalStack reports per-service states like
// "available", "running", or "initializing"; only the first two count
// as healthy.
type LocalStackProbe struct {
	endpoint string
	client   ProbeHTTPClient
}

// localStackHealth mirrors the health endpoint's response shape.
type localStackHealth struct {
	Services map[string]string `json:"services"`
}

// NewLocalStackProbe creates a probe for the LocalStack edge endpoint.
func NewLocalStackProbe(endpoint string) *LocalStackProbe {
	return &LocalStackProbe{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}
}

// Name identifies the probed service.
func (p *LocalStackProbe) Name() string { return "localstack" }

// Check performs one readiness check.
func (p *LocalStackProbe) Check(ctx context.Context) ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/_localstack/health", nil)
	if err != nil {
		return ProbeResult{State: ProbeUnhealthy, Detail: err.Error()}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// connection refused while the container boots
		return ProbeResult{State: ProbeStarting, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ProbeResult{State: ProbeStarting, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var health localStackHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return ProbeResult{State: ProbeUnhealthy, Detail: "malformed health response"}
	}

	switch health.Services["s3"] {
	case "available", "running":
		return ProbeResult{State: ProbeHealthy}
	case "":
		return ProbeResult{State: ProbeUnhealthy, Detail: "s3 service not reported"}
	default:
		return ProbeResult{State: ProbeStarting, Detail: "s3 " + health.Services["s3"]}
	}
}

// =============================================================================
// SAGEMAKER PROBE
// =============================================================================

// SageMakerProbe checks the inference emulator's ping endpoint.
//
// The SageMaker multi-model container contract is a bare 200 on /ping
// once the model server is up.
type SageMakerProbe struct {
	pingURL string
	client  ProbeHTTPClient
}

// NewSageMakerProbe creates a probe for the inference container.
func NewSageMakerProbe(pingURL string) *SageMakerProbe {
	return &SageMakerProbe{
		pingURL: pingURL,
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}
}

// Name identifies the probed service.
func (p *SageMakerProbe) Name() string { return "sagemaker" }

// Check performs one readiness check.
func (p *SageMakerProbe) Check(ctx context.Context) ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.pingURL, nil)
	if err != nil {
		return ProbeResult{State: ProbeUnhealthy, Detail: err.Error()}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{State: ProbeStarting, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return ProbeResult{State: ProbeHealthy}
	}
	return ProbeResult{State: ProbeStarting, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
}

// =============================================================================
// LAMBDA PROBE
// =============================================================================

// LambdaProbe checks the function runtime's listener.
//
// # Description
//
// sam local start-lambda has no health endpoint; the practical signal
// is that its TCP listener accepts connections. The probe dials the
// endpoint's host:port and closes immediately.
type LambdaProbe struct {
	addr   string
	dialer *net.Dialer
}

// NewLambdaProbe creates a probe for the function runtime endpoint.
//
// endpoint is a URL like "http://127.0.0.1:3001"; a bare host:port is
// also accepted.
func NewLambdaProbe(endpoint string) *LambdaProbe {
	addr := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		addr = u.Host
		if u.Port() == "" {
			addr = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	return &LambdaProbe{
		addr:   addr,
		dialer: &net.Dialer{Timeout: 2 * time.Second},
	}
}

// Name identifies the probed service.
func (p *LambdaProbe) Name() string { return "lambda-runtime" }

// Check performs one readiness check.
func (p *LambdaProbe) Check(ctx context.Context) ProbeResult {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return ProbeResult{State: ProbeStarting, Detail: err.Error()}
	}
	conn.Close()
	return ProbeResult{State: ProbeHealthy}
}
