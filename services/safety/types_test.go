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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolationTypeText(t *testing.T) {
	want := []string{
		"inappropriate_content", "scary_topic", "violence", "adult_topic",
		"personal_info", "blocked_topic", "language_complexity", "emotional_inappropriate",
	}
	types := AllViolationTypes()
	require.Len(t, types, len(want))
	for i, vt := range types {
		assert.Equal(t, want[i], vt.String())

		var back ViolationType
		require.NoError(t, back.UnmarshalText([]byte(want[i])))
		assert.Equal(t, vt, back)
	}

	var vt ViolationType
	assert.Error(t, vt.UnmarshalText([]byte("rudeness")))
	_, err := ViolationType(99).MarshalText()
	assert.Error(t, err)
}

func TestSeverityOrderAndPublic(t *testing.T) {
	assert.Less(t, SeverityLow, SeverityMedium)
	assert.Less(t, SeverityMedium, SeverityHigh)
	assert.Less(t, SeverityHigh, SeverityCritical)

	assert.Equal(t, SeverityHigh, SeverityCritical.Public())
	assert.Equal(t, SeverityMedium, SeverityMedium.Public())
}

func TestViolationJSONCollapsesCritical(t *testing.T) {
	v := Violation{
		Type:            PersonalInfo,
		Severity:        SeverityCritical,
		Description:     "personal information",
		DetectedContent: "1234567890...",
		Rule:            "PHONE_DIGITS",
	}
	b, err := json.Marshal(v)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "personal_info", raw["type"])
	assert.Equal(t, "high", raw["severity"])
	assert.Equal(t, "critical", raw["tier"])

	var back Violation
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, v, back)

	var legacy Violation
	require.NoError(t, json.Unmarshal([]byte(`{"type":"violence","severity":"high"}`), &legacy))
	assert.Equal(t, SeverityHigh, legacy.Severity)
}

func TestParseFailurePolicy(t *testing.T) {
	tests := map[string]FailurePolicy{
		"":            FailOpen,
		"open":        FailOpen,
		"fail_closed": FailClosed,
		"Closed":      FailClosed,
	}
	for in, want := range tests {
		got, err := ParseFailurePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFailurePolicy("sometimes")
	assert.Error(t, err)
}
