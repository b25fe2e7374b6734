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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	if p.Styled() {
		t.Fatal("a bytes.Buffer is not a terminal")
	}

	p.Title("Safety Check")
	p.Status(IconSuccess, "safe")
	p.Status(IconError, "unsafe")
	p.Status(IconWarning, "careful")
	p.KeyValue("confidence", 0.7)
	p.Bullet("violence", "high")
	p.Bullet("no detail", "")
	p.Box("Processed", "line one", "line two")
	p.ErrorBox("Failed")

	want := strings.Join([]string{
		"--- Safety Check ---",
		"OK: safe",
		"ERROR: unsafe",
		"WARN: careful",
		"confidence: 0.7",
		"  - violence (high)",
		"  - no detail",
		"Processed:",
		"  line one",
		"  line two",
		"Failed:",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("plain output mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrinter_Styled(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf, styled: true}

	p.Title("Safety Check")
	p.Status(IconSuccess, "safe")
	p.KeyValue("language", "es")
	p.Box("Processed", "hola")

	out := buf.String()
	for _, want := range []string{"Safety Check", "✓", "safe", "language", "es", "Processed", "hola"} {
		if !strings.Contains(out, want) {
			t.Errorf("styled output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "OK:") {
		t.Error("styled output should use icons, not plain prefixes")
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("buffer reported as terminal")
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("regular file reported as terminal")
	}
}
