// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux styles the CLI's call transcripts and status lines.
package ux

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Morning palette
var (
	ColorSunrise = lipgloss.Color("#F2A541") // coach lines
	ColorSky     = lipgloss.Color("#5DADE2") // caller lines
	ColorDusk    = lipgloss.Color("#7F8C8D") // status and separators
	ColorSuccess = lipgloss.Color("#58D68D")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Icon is a status glyph shown in styled output.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconError   Icon = "✗"
)

const (
	coachLabel  = "coach: "
	callerLabel = "caller:"
	ruleText    = "---"
)

type styles struct {
	coach   lipgloss.Style
	caller  lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		coach:   r.NewStyle().Bold(true).Foreground(ColorSunrise),
		caller:  r.NewStyle().Bold(true).Foreground(ColorSky),
		muted:   r.NewStyle().Italic(true).Foreground(ColorDusk),
		success: r.NewStyle().Foreground(ColorSuccess),
		failure: r.NewStyle().Foreground(ColorError),
	}
}

// Printer writes dialogue and status lines to one writer.
//
// Plain output is line-for-line stable ("coach:  ...", "caller: ...") so
// piped transcripts can be diffed; styling is only added on a terminal.
type Printer struct {
	w      io.Writer
	styled bool
	st     styles
}

// NewPrinter styles output when w is an interactive terminal.
func NewPrinter(w io.Writer) *Printer {
	return NewPrinterStyled(w, IsTerminal(w))
}

// NewPrinterStyled forces styling on or off.
func NewPrinterStyled(w io.Writer, styled bool) *Printer {
	return &Printer{w: w, styled: styled, st: newStyles(lipgloss.NewRenderer(w))}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Styled reports whether the printer adds styling.
func (p *Printer) Styled() bool {
	return p.styled
}

// Coach prints a line the coach spoke.
func (p *Printer) Coach(text string) {
	p.speaker(p.st.coach, coachLabel, text)
}

// Caller prints a line the caller spoke.
func (p *Printer) Caller(text string) {
	p.speaker(p.st.caller, callerLabel, text)
}

// Status prints a note about the call itself, such as a hangup.
func (p *Printer) Status(text string) {
	if p.styled {
		text = p.st.muted.Render(text)
	}
	fmt.Fprintln(p.w, text)
}

// Rule separates the dialogue from the report that follows it.
func (p *Printer) Rule() {
	p.Status(ruleText)
}

// Success prints a completed action.
func (p *Printer) Success(text string) {
	p.result(IconSuccess, p.st.success, text)
}

// Failure prints an action that did not complete.
func (p *Printer) Failure(text string) {
	p.result(IconError, p.st.failure, text)
}

func (p *Printer) speaker(label lipgloss.Style, name, text string) {
	if p.styled {
		name = label.Render(name)
	}
	fmt.Fprintf(p.w, "%s %s\n", name, text)
}

func (p *Printer) result(icon Icon, style lipgloss.Style, text string) {
	if !p.styled {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", style.Render(string(icon)), text)
}
