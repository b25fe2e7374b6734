// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import "context"

// FilterResult contains the outcome of filtering a message.
//
// # Description
//
// When WasBlocked is true the caller must not deliver Original; Filtered
// then holds a replacement if the filter supplied one. When only
// WasModified is true, Filtered is the text to deliver.
type FilterResult struct {
	Original    string      `json:"original"`
	Filtered    string      `json:"filtered"`
	WasModified bool        `json:"was_modified"`
	WasBlocked  bool        `json:"was_blocked"`
	BlockReason string      `json:"block_reason,omitempty"`
	Detections  []Detection `json:"detections,omitempty"`
}

// Detection describes one rule that fired.
type Detection struct {
	// Type is the violation category, e.g. "personal_info".
	Type string `json:"type"`

	// Severity is "low", "medium", "high" or "critical".
	Severity string `json:"severity"`

	// Rule names the policy entry that matched.
	Rule string `json:"rule"`

	// Action is "redacted", "replaced", "flagged" or "blocked".
	Action string `json:"action"`

	// Excerpt is the matched text, truncated for personal information.
	Excerpt string `json:"excerpt"`
}

// MessageFilter screens text on its way into and out of a conversation.
//
// FilterInput screens what the child said before it reaches the model.
// FilterOutput screens a candidate reply before it reaches the child.
// FilterContext screens retrieved memory before it is added to a prompt.
type MessageFilter interface {
	FilterInput(ctx context.Context, message string) (*FilterResult, error)
	FilterOutput(ctx context.Context, message string) (*FilterResult, error)
	FilterContext(ctx context.Context, contextMsg string) (*FilterResult, error)
}
