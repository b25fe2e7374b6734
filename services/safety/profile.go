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
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultAge     = 8
	DefaultChildID = "unknown"

	// Ages the policy tables are written for. Profiles outside this range
	// are accepted but some age-banded rules will not apply.
	MinExpectedAge = 3
	MaxExpectedAge = 17
)

// profileValidate is the validator instance for profiles.
var profileValidate *validator.Validate

func init() {
	profileValidate = validator.New()
	_ = profileValidate.RegisterValidation("sensitivity", validateSensitivity)
}

func validateSensitivity(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(Sensitivity)
	return ok && (s == 0 || s.Valid())
}

// ChildSafetyProfile is the caller-owned safety configuration for one child.
// Zero values mean "not provided"; Normalize fills them in once at the
// boundary so checkers never deal with defaults.
type ChildSafetyProfile struct {
	ChildID         string      `json:"child_id" validate:"max=128"`
	Age             int         `json:"age" validate:"gte=0,lte=120"`
	Sensitivity     Sensitivity `json:"sensitivity" validate:"sensitivity"`
	Language        Language    `json:"language" validate:"omitempty,max=8"`
	BlockedTopics   []string    `json:"blocked_topics" validate:"max=200,dive,max=200"`
	SensitiveTopics []string    `json:"sensitive_topics" validate:"max=200,dive,max=200"`
}

// Validate checks structural limits. It does not apply defaults.
func (p *ChildSafetyProfile) Validate() error {
	if err := profileValidate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return nil
}

// Normalize returns a copy with defaults applied: age 8, medium sensitivity,
// language "es", child id "unknown". Topic lists are trimmed, emptied of
// blanks and deduplicated case-insensitively; the originals are not touched.
func (p ChildSafetyProfile) Normalize() ChildSafetyProfile {
	out := p
	if strings.TrimSpace(out.ChildID) == "" {
		out.ChildID = DefaultChildID
	}
	if out.Age <= 0 {
		out.Age = DefaultAge
	}
	if !out.Sensitivity.Valid() {
		out.Sensitivity = SensitivityMedium
	}
	out.Language = Language(strings.ToLower(strings.TrimSpace(string(out.Language))))
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	out.BlockedTopics = cleanTopics(p.BlockedTopics)
	out.SensitiveTopics = cleanTopics(p.SensitiveTopics)
	return out
}

// InExpectedAgeRange reports whether the age is one the tables target.
func (p ChildSafetyProfile) InExpectedAgeRange() bool {
	return p.Age >= MinExpectedAge && p.Age <= MaxExpectedAge
}

// AvoidedTopics is the union of blocked and sensitive topics, in order,
// without duplicates.
func (p ChildSafetyProfile) AvoidedTopics() []string {
	return cleanTopics(append(append([]string(nil), p.BlockedTopics...), p.SensitiveTopics...))
}

func cleanTopics(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := foldText(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
