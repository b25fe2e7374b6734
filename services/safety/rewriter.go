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

	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
)

// rewrite produces the sanitized form of content.
//
// Terms flagged as inappropriate, violent or scary are swapped for their
// positive replacement when the language has one; unmapped terms stay.
// When any personal information was found, the whole text is then
// re-scanned with every PII pattern and each hit is replaced with the
// language's placeholder, whether or not the first pass touched it.
func rewrite(content string, violations []Violation, policy *policy_engine.PolicyEngine, tables *policy_engine.LanguageTables) (string, error) {
	out := content
	redact := false
	applied := make(map[string]bool)

	for _, v := range violations {
		switch v.Type {
		case InappropriateContent, Violence, ScaryTopic:
			r, ok := tables.ReplacementFor(v.DetectedContent)
			if !ok || applied[r.Term] {
				continue
			}
			applied[r.Term] = true
			var err error
			if out, err = r.Apply(out); err != nil {
				return "", fmt.Errorf("replacing %q: %w", r.Term, err)
			}
		case PersonalInfo:
			redact = true
		case AdultTopic, BlockedTopic, LanguageComplexity, EmotionalInappropriate:
			// Flagged only; the caller picks an alternative.
		default:
			return "", fmt.Errorf("rewriter has no rule for violation type %v", v.Type)
		}
	}

	if redact {
		var err error
		if out, err = policy.RedactPII(out, tables.PIIPlaceholder); err != nil {
			return "", fmt.Errorf("redacting personal information: %w", err)
		}
	}
	return out, nil
}
