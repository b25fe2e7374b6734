// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the safety CLI.
//
// A Printer renders with lipgloss when its writer is a terminal and falls
// back to plain, grep-friendly lines otherwise.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Key     lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Key:     lipgloss.NewStyle().Foreground(ColorTealPrimary).Width(24),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// plain is the word printed in place of an icon on a non-terminal.
func (i Icon) plain() string {
	switch i {
	case IconSuccess:
		return "OK:"
	case IconWarning:
		return "WARN:"
	case IconError:
		return "ERROR:"
	default:
		return "-"
	}
}

func (i Icon) style() lipgloss.Style {
	switch i {
	case IconSuccess:
		return Styles.Success
	case IconWarning:
		return Styles.Warning
	case IconError:
		return Styles.Error
	default:
		return Styles.Muted
	}
}

// Printer writes styled or plain output to one writer.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter styles output only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, styled: IsTerminal(w)}
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) Styled() bool { return p.styled }

func (p *Printer) Title(text string) {
	if p.styled {
		fmt.Fprintln(p.w, Styles.Title.Render(text))
		return
	}
	fmt.Fprintf(p.w, "--- %s ---\n", text)
}

// Status prints one line led by icon.
func (p *Printer) Status(icon Icon, text string) {
	if p.styled {
		style := icon.style()
		fmt.Fprintf(p.w, "%s %s\n", style.Render(string(icon)), style.Render(text))
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", icon.plain(), text)
}

// KeyValue prints an aligned "key: value" line.
func (p *Printer) KeyValue(key string, value any) {
	if p.styled {
		fmt.Fprintf(p.w, "%s %v\n", Styles.Key.Render(key), value)
		return
	}
	fmt.Fprintf(p.w, "%s: %v\n", key, value)
}

// Bullet prints an indented list item with an optional muted detail.
func (p *Printer) Bullet(text, detail string) {
	switch {
	case p.styled && detail != "":
		fmt.Fprintf(p.w, "  %s %s %s\n", Styles.Muted.Render(string(IconBullet)), text, Styles.Muted.Render(detail))
	case p.styled:
		fmt.Fprintf(p.w, "  %s %s\n", Styles.Muted.Render(string(IconBullet)), text)
	case detail != "":
		fmt.Fprintf(p.w, "  - %s (%s)\n", text, detail)
	default:
		fmt.Fprintf(p.w, "  - %s\n", text)
	}
}

// Box prints lines in a rounded box, or as an indented block when plain.
func (p *Printer) Box(title string, lines ...string) {
	p.box(Styles.Box, Styles.Title, title, lines)
}

func (p *Printer) ErrorBox(title string, lines ...string) {
	p.box(Styles.ErrorBox, Styles.Error.Bold(true), title, lines)
}

func (p *Printer) box(box, head lipgloss.Style, title string, lines []string) {
	if !p.styled {
		fmt.Fprintf(p.w, "%s:\n", title)
		for _, l := range lines {
			fmt.Fprintf(p.w, "  %s\n", l)
		}
		return
	}
	body := head.Render(title)
	if len(lines) > 0 {
		body += "\n" + strings.Join(lines, "\n")
	}
	fmt.Fprintln(p.w, box.Width(64).Render(body))
}
