// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"fmt"
	"math"
	"strings"
)

// ConfidencePolicy maps a violation list to a score in [0, 1] telling the
// caller how far ProcessedContent can be trusted. It is a heuristic, not a
// calibrated probability.
type ConfidencePolicy interface {
	Confidence(violations []Violation) float64
}

// LinearDecay subtracts Step per violation from 1, never going below Floor.
type LinearDecay struct {
	Step  float64
	Floor float64
}

// DefaultConfidence is max(0.1, 1 - 0.3·n).
var DefaultConfidence = LinearDecay{Step: 0.3, Floor: 0.1}

func (d LinearDecay) Confidence(violations []Violation) float64 {
	c := 1.0 - d.Step*float64(len(violations))
	return math.Min(1, math.Max(d.Floor, c))
}

// FailurePolicy decides what a check returns when a checker or the rewriter
// fails internally.
type FailurePolicy int

const (
	// FailOpen returns a safe result with confidence 0.5 and an error
	// annotation. It keeps conversations flowing when a rule breaks.
	FailOpen FailurePolicy = iota

	// FailClosed returns an unsafe result whose processed content is a
	// fixed safe response, with confidence 0 and an error annotation.
	FailClosed
)

const failOpenConfidence = 0.5

func (f FailurePolicy) String() string {
	switch f {
	case FailOpen:
		return "fail_open"
	case FailClosed:
		return "fail_closed"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(f))
	}
}

// ParseFailurePolicy accepts "open"/"fail_open" and "closed"/"fail_closed".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open", "fail_open", "fail-open":
		return FailOpen, nil
	case "closed", "fail_closed", "fail-closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("unknown failure policy %q", s)
	}
}
