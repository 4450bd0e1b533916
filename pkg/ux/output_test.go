// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	icons := []Icon{IconSuccess, IconWarning, IconError, IconSkipped, IconArrow, IconBullet}
	for _, icon := range icons {
		if icon.Render() == "" {
			t.Errorf("expected non-empty render for icon %q", string(icon))
		}
	}
}

func TestIcon_Render_ContainsGlyph(t *testing.T) {
	// Styled output may add escape codes but must still contain the glyph.
	tests := []struct {
		icon Icon
		want string
	}{
		{IconSuccess, "✓"},
		{IconWarning, "⚠"},
		{IconError, "✗"},
		{IconSkipped, "○"},
	}
	for _, tt := range tests {
		if !strings.Contains(tt.icon.Render(), tt.want) {
			t.Errorf("icon render missing glyph %q", tt.want)
		}
	}
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Plain = true

	p.Title("restart")
	p.Step("compose-down")
	p.Success("stack stopped")
	p.Warning("bucket provisioning degraded")
	p.Error("runtime died")
	p.Skipped("wire-events")
	p.Info("using defaults")

	out := buf.String()
	for _, want := range []string{
		"== restart ==",
		"STEP: compose-down",
		"OK: stack stopped",
		"WARN: bucket provisioning degraded",
		"ERROR: runtime died",
		"SKIP: wire-events",
		"using defaults",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plain output missing %q, got:\n%s", want, out)
		}
	}
}

func TestPrinter_Styled_ContainsText(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Step("health-gate")
	p.Success("localstack ready")
	p.Warning("degraded")
	p.Error("failed")
	p.Skipped("skipped step")

	out := buf.String()
	for _, want := range []string{"health-gate", "localstack ready", "degraded", "failed", "skipped step"} {
		if !strings.Contains(out, want) {
			t.Errorf("styled output missing %q", want)
		}
	}
}

func TestPrinter_Summary_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Plain = true

	p.Summary(4, 1, 2, 3*time.Second)

	want := "SUMMARY: ok=4 warn=1 skip=2 elapsed=3s"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("summary = %q, want substring %q", buf.String(), want)
	}
}

func TestPrinter_Summary_Styled(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Summary(3, 0, 1, 1500*time.Millisecond)

	out := buf.String()
	for _, want := range []string{"3", "ok", "0", "warned", "1", "skipped", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q, got: %s", want, out)
		}
	}
}
