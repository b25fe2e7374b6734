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
	"context"
	"fmt"

	"github.com/AleutianAI/EmoRobCare/pkg/extensions"
)

// MessageFilter adapts an Engine to extensions.MessageFilter for one child.
//
// Output and context messages go through ResolveReply: a safe message passes
// untouched, a filtered one is marked modified, and one that needs a
// fallback is marked blocked with the fallback in Filtered. Input messages,
// which come from the child, only have personal information redacted; the
// rest of the child's words reach the model unchanged and the child is never
// "blocked" from speaking.
type MessageFilter struct {
	engine   *Engine
	profile  ChildSafetyProfile
	language Language
}

func NewMessageFilter(engine *Engine, profile ChildSafetyProfile, language Language) *MessageFilter {
	return &MessageFilter{engine: engine, profile: profile, language: language}
}

func (f *MessageFilter) FilterInput(ctx context.Context, message string) (*extensions.FilterResult, error) {
	result, err := f.engine.CheckContentSafety(ctx, message, f.profile, nil, f.language)
	if err != nil {
		return nil, err
	}
	filtered, err := f.engine.RedactPersonalInfo(message, f.profile, f.language)
	if err != nil {
		return nil, fmt.Errorf("redact input: %w", err)
	}
	return &extensions.FilterResult{
		Original:    message,
		Filtered:    filtered,
		WasModified: filtered != message,
		Detections:  detections(result.Violations),
	}, nil
}

func (f *MessageFilter) FilterOutput(ctx context.Context, message string) (*extensions.FilterResult, error) {
	return f.filterDeliverable(ctx, message)
}

func (f *MessageFilter) FilterContext(ctx context.Context, contextMsg string) (*extensions.FilterResult, error) {
	return f.filterDeliverable(ctx, contextMsg)
}

func (f *MessageFilter) filterDeliverable(ctx context.Context, message string) (*extensions.FilterResult, error) {
	result, err := f.engine.CheckContentSafety(ctx, message, f.profile, nil, f.language)
	if err != nil {
		return nil, err
	}
	reply := f.engine.ResolveReply(result, f.profile, f.language)
	out := &extensions.FilterResult{
		Original:   message,
		Filtered:   reply.Content,
		Detections: detections(result.Violations),
	}
	switch reply.Source {
	case ReplyFiltered:
		out.WasModified = true
	case ReplyFallback:
		out.WasModified = true
		out.WasBlocked = true
		out.BlockReason = blockReason(result)
	}
	return out, nil
}

func blockReason(result *CheckResult) string {
	if result.Error != "" {
		return "internal safety error"
	}
	if len(result.Violations) == 0 {
		return "unsafe"
	}
	return result.Violations[0].Type.String() + ": " + result.Violations[0].Description
}

func detections(vs []Violation) []extensions.Detection {
	if len(vs) == 0 {
		return nil
	}
	out := make([]extensions.Detection, len(vs))
	for i, v := range vs {
		action := "flagged"
		switch v.Type {
		case PersonalInfo:
			action = "redacted"
		case InappropriateContent, Violence, ScaryTopic:
			action = "replaced"
		}
		out[i] = extensions.Detection{
			Type:     v.Type.String(),
			Severity: v.Severity.String(),
			Rule:     v.Rule,
			Action:   action,
			Excerpt:  v.DetectedContent,
		}
	}
	return out
}

var _ extensions.MessageFilter = (*MessageFilter)(nil)
