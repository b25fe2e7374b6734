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
	"strings"

	"github.com/google/uuid"
)

// ValidateProfileSafety audits a child's own configuration. A young child
// with high sensitivity should have every entry of the language's
// recommended blocklist blocked; any missing entries produce one medium
// blocked_topic violation naming them.
//
// Returns ErrInvalidProfile when the profile is structurally invalid. The
// result carries no content.
func (e *Engine) ValidateProfileSafety(profile ChildSafetyProfile) (*CheckResult, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	policy := e.store.Current()
	p := profile.Normalize()
	tables := e.tablesFor(policy, "", p)

	if !p.InExpectedAgeRange() {
		e.logger.Debug("Profile age outside the range the policy targets",
			"child_id", p.ChildID,
			"age", p.Age)
	}

	var violations []Violation
	if p.Age <= policy.AgeGates().ProfileAuditMaxAge && p.Sensitivity == SensitivityHigh {
		blocked := make(map[string]struct{}, len(p.BlockedTopics))
		for _, t := range p.BlockedTopics {
			blocked[foldText(t)] = struct{}{}
		}
		var missing []string
		for _, rec := range tables.RecommendedBlocklist {
			if _, ok := blocked[foldText(rec)]; !ok {
				missing = append(missing, rec)
			}
		}
		if len(missing) > 0 {
			violations = append(violations, Violation{
				Type:            BlockedTopic,
				Severity:        SeverityMedium,
				Description:     "recommended topics are not blocked for a young, highly sensitive child",
				DetectedContent: strings.Join(missing, ", "),
				Suggestion:      "add to blocked topics: " + strings.Join(missing, ", "),
				Rule:            "profile.recommended_blocklist",
			})
		}
	}

	return &CheckResult{
		CheckID:       uuid.NewString(),
		IsSafe:        len(violations) == 0,
		Violations:    violations,
		Confidence:    e.confidence.Confidence(violations),
		Language:      Language(tables.Code),
		PolicyVersion: policy.Version(),
	}, nil
}
