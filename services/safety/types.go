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
	"errors"
	"fmt"
	"strings"
)

// MaxContentBytes is the largest message a check accepts. Conversational
// turns are far shorter; the cap keeps every pattern scan well inside its
// match timeout.
const MaxContentBytes = 16 << 10

var (
	// ErrMissingContent is returned when a check is requested without content.
	ErrMissingContent = errors.New("content is required")

	// ErrContentTooLong is returned for content over MaxContentBytes.
	ErrContentTooLong = errors.New("content exceeds maximum length")

	// ErrInvalidProfile is returned when a profile fails structural
	// validation: a negative age or one above 120, more than 200 topics per
	// list, or an unknown sensitivity. Zero values are not errors; they mean
	// "not provided" and take defaults.
	ErrInvalidProfile = errors.New("invalid child safety profile")
)

// =============================================================================
// Violation types
// =============================================================================

// ViolationType is the closed set of rule families a violation belongs to.
type ViolationType int

const (
	InappropriateContent ViolationType = iota + 1
	ScaryTopic
	Violence
	AdultTopic
	PersonalInfo
	BlockedTopic
	LanguageComplexity
	EmotionalInappropriate
)

var violationTypeNames = [...]string{
	InappropriateContent:   "inappropriate_content",
	ScaryTopic:             "scary_topic",
	Violence:               "violence",
	AdultTopic:             "adult_topic",
	PersonalInfo:           "personal_info",
	BlockedTopic:           "blocked_topic",
	LanguageComplexity:     "language_complexity",
	EmotionalInappropriate: "emotional_inappropriate",
}

// AllViolationTypes returns every violation type in checker order.
func AllViolationTypes() []ViolationType {
	return []ViolationType{
		InappropriateContent, ScaryTopic, Violence, AdultTopic,
		PersonalInfo, BlockedTopic, LanguageComplexity, EmotionalInappropriate,
	}
}

func (v ViolationType) Valid() bool {
	return v >= InappropriateContent && v <= EmotionalInappropriate
}

func (v ViolationType) String() string {
	if !v.Valid() {
		return fmt.Sprintf("ViolationType(%d)", int(v))
	}
	return violationTypeNames[v]
}

func (v ViolationType) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("invalid violation type %d", int(v))
	}
	return []byte(violationTypeNames[v]), nil
}

func (v *ViolationType) UnmarshalText(b []byte) error {
	s := string(b)
	for _, t := range AllViolationTypes() {
		if violationTypeNames[t] == s {
			*v = t
			return nil
		}
	}
	return fmt.Errorf("invalid violation type %q", s)
}

// =============================================================================
// Severity
// =============================================================================

// Severity is an ordinal tier. Critical is reserved for personal information.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

func (s Severity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// Public collapses the critical tier to high for callers that only know
// three tiers.
func (s Severity) Public() Severity {
	if s == SeverityCritical {
		return SeverityHigh
	}
	return s
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(severityNames[s]), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	for i := SeverityLow; i <= SeverityCritical; i++ {
		if severityNames[i] == string(b) {
			*s = i
			return nil
		}
	}
	return fmt.Errorf("invalid severity %q", string(b))
}

// =============================================================================
// Sensitivity and language
// =============================================================================

// Sensitivity tightens the emotional-tone thresholds for a child. The zero
// value means "not set" and normalizes to SensitivityMedium.
type Sensitivity int

const (
	SensitivityLow Sensitivity = iota + 1
	SensitivityMedium
	SensitivityHigh
)

var sensitivityNames = [...]string{
	SensitivityLow:    "low",
	SensitivityMedium: "medium",
	SensitivityHigh:   "high",
}

func (s Sensitivity) Valid() bool {
	return s >= SensitivityLow && s <= SensitivityHigh
}

func (s Sensitivity) String() string {
	if !s.Valid() {
		return "unset"
	}
	return sensitivityNames[s]
}

func (s Sensitivity) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("invalid sensitivity %d", int(s))
	}
	return []byte(sensitivityNames[s]), nil
}

func (s *Sensitivity) UnmarshalText(b []byte) error {
	raw := strings.ToLower(strings.TrimSpace(string(b)))
	if raw == "" {
		*s = 0
		return nil
	}
	for i := SensitivityLow; i <= SensitivityHigh; i++ {
		if sensitivityNames[i] == raw {
			*s = i
			return nil
		}
	}
	return fmt.Errorf("invalid sensitivity %q", raw)
}

// Language is an ISO 639-1 code. Unsupported codes fall back to the
// policy's default language.
type Language string

const (
	Spanish Language = "es"
	English Language = "en"

	DefaultLanguage = Spanish
)

// =============================================================================
// Violation and result
// =============================================================================

// Violation is one detected policy breach. Rule names the policy entry that
// fired so every decision can be traced.
type Violation struct {
	Type            ViolationType
	Severity        Severity
	Description     string
	DetectedContent string
	Suggestion      string
	Rule            string
}

type violationJSON struct {
	Type            ViolationType `json:"type"`
	Severity        Severity      `json:"severity"`
	Tier            Severity      `json:"tier"`
	Description     string        `json:"description"`
	DetectedContent string        `json:"detected_content"`
	Suggestion      string        `json:"suggestion"`
	Rule            string        `json:"rule,omitempty"`
}

// MarshalJSON reports the three-tier severity under "severity" and the
// internal tier under "tier".
func (v Violation) MarshalJSON() ([]byte, error) {
	return json.Marshal(violationJSON{
		Type:            v.Type,
		Severity:        v.Severity.Public(),
		Tier:            v.Severity,
		Description:     v.Description,
		DetectedContent: v.DetectedContent,
		Suggestion:      v.Suggestion,
		Rule:            v.Rule,
	})
}

func (v *Violation) UnmarshalJSON(b []byte) error {
	var raw struct {
		violationJSON
		Tier *Severity `json:"tier"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*v = Violation{
		Type:            raw.Type,
		Severity:        raw.Severity,
		Description:     raw.Description,
		DetectedContent: raw.DetectedContent,
		Suggestion:      raw.Suggestion,
		Rule:            raw.Rule,
	}
	if raw.Tier != nil {
		v.Severity = *raw.Tier
	}
	return nil
}

// CheckResult is the outcome of one check. It is never mutated after it is
// returned.
type CheckResult struct {
	CheckID          string      `json:"check_id"`
	IsSafe           bool        `json:"is_safe"`
	Violations       []Violation `json:"violations"`
	ProcessedContent string      `json:"processed_content"`
	Confidence       float64     `json:"confidence"`
	Language         Language    `json:"language"`
	PolicyVersion    string      `json:"policy_version"`
	Error            string      `json:"error,omitempty"`
}

// HasViolation reports whether any violation has type t.
func (r *CheckResult) HasViolation(t ViolationType) bool {
	for _, v := range r.Violations {
		if v.Type == t {
			return true
		}
	}
	return false
}

// MaxSeverity returns the highest tier present, or 0 when there are none.
func (r *CheckResult) MaxSeverity() Severity {
	return maxSeverity(r.Violations)
}

func maxSeverity(vs []Violation) Severity {
	var max Severity
	for _, v := range vs {
		if v.Severity > max {
			max = v.Severity
		}
	}
	return max
}

// Turn is one prior conversation turn.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SafetyContext carries optional conversation metadata. A nil context is
// valid everywhere.
type SafetyContext struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Topic          string `json:"topic,omitempty"`
	Level          int    `json:"level,omitempty"`
	RecentHistory  []Turn `json:"recent_history,omitempty"`
}
