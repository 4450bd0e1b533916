// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides rich terminal output styling for the SegStack CLI.
package ux

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - deep ocean teals and arctic waters
var (
	// Primary palette (brightest to darkest)
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents

	// Dark palette (for backgrounds, muted elements)
	ColorSlate = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	// Semantic colors (keeping standard conventions for clarity)
	ColorSuccess = lipgloss.Color("#2CD7C7") // Bright teal for success
	ColorWarning = lipgloss.Color("#F4D03F") // Gold/amber for warnings
	ColorError   = lipgloss.Color("#E74C3C") // Red for errors
	ColorMuted   = lipgloss.Color("#2C4A54") // Slate for muted text
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconSkipped Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconSkipped:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes styled progress lines to a single destination.
//
// All SegStack step output goes through a Printer so tests can capture
// it with a bytes.Buffer and daemonized runs can point it at a file.
type Printer struct {
	out io.Writer

	// Plain disables styling and icons. Output becomes stable
	// machine-greppable lines (OK:/WARN:/ERROR:/SKIP:).
	Plain bool
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Title prints a styled section title.
func (p *Printer) Title(text string) {
	if p.Plain {
		fmt.Fprintf(p.out, "== %s ==\n", text)
		return
	}
	fmt.Fprintln(p.out, Styles.Title.Render(text))
}

// Step prints the start of a step.
func (p *Printer) Step(name string) {
	if p.Plain {
		fmt.Fprintf(p.out, "STEP: %s\n", name)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconArrow.Render(), Styles.Bold.Render(name))
}

// Success prints a success line with checkmark.
func (p *Printer) Success(text string) {
	if p.Plain {
		fmt.Fprintf(p.out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if p.Plain {
		fmt.Fprintf(p.out, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	if p.Plain {
		fmt.Fprintf(p.out, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Skipped prints a skipped-step line.
func (p *Printer) Skipped(text string) {
	if p.Plain {
		fmt.Fprintf(p.out, "SKIP: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconSkipped.Render(), Styles.Muted.Render(text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.Plain {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Summary prints a run summary with per-outcome counts.
func (p *Printer) Summary(succeeded, warned, skipped int, elapsed time.Duration) {
	if p.Plain {
		fmt.Fprintf(p.out, "SUMMARY: ok=%d warn=%d skip=%d elapsed=%s\n",
			succeeded, warned, skipped, elapsed.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(p.out, "\n%s %s  %s %s  %s %s  %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", succeeded)), Styles.Muted.Render("ok"),
		Styles.Warning.Render(fmt.Sprintf("%d", warned)), Styles.Muted.Render("warned"),
		Styles.Bold.Render(fmt.Sprintf("%d", skipped)), Styles.Muted.Render("skipped"),
		Styles.Muted.Render(elapsed.Round(time.Millisecond).String()),
	)
}
