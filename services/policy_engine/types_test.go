// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package policy_engine

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dlclark/regexp2"
)

// slowPattern backtracks exponentially on a run of a's followed by a
// non-matching byte.
func slowPattern(t *testing.T) *Pattern {
	t.Helper()
	p := &Pattern{Id: "SLOW", Regex: `(a+)+$`}
	if err := p.compile(regexp2.None); err != nil {
		t.Fatalf("compile: %v", err)
	}
	p.compiled.MatchTimeout = 10 * time.Millisecond
	return p
}

func TestPatternTimeoutDropsInput(t *testing.T) {
	p := slowPattern(t)
	input := "mi email es nino@ejemplo.com " + strings.Repeat("a", 48) + "!"

	_, findErr := p.FindAll(input)
	_, matchErr := p.MatchString(input)
	_, replaceErr := p.ReplaceAll(input, "[x]")

	for name, err := range map[string]error{
		"FindAll":     findErr,
		"MatchString": matchErr,
		"ReplaceAll":  replaceErr,
	} {
		t.Run(name, func(t *testing.T) {
			if !errors.Is(err, ErrMatchTimeout) {
				t.Fatalf("Expected ErrMatchTimeout, got %v", err)
			}
			if strings.Contains(err.Error(), "nino@ejemplo.com") || strings.Contains(err.Error(), "aaaa") {
				t.Errorf("Error leaks the input: %q", err.Error())
			}
			if !strings.Contains(err.Error(), "SLOW") {
				t.Errorf("Error should name the rule: %q", err.Error())
			}
		})
	}
}

func TestMatchError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"timeout", errors.New("match timeout after 250ms on input `secret`"), ErrMatchTimeout},
		{"other", errors.New("bad state on input `secret`"), ErrMatchFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := matchError("pattern X", tc.in)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
			if strings.Contains(err.Error(), "secret") {
				t.Errorf("Error leaks the input: %q", err.Error())
			}
		})
	}
}
