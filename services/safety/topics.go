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

	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
)

// DeliverFilteredMinConfidence is the confidence above which an unsafe
// result's ProcessedContent may be delivered instead of a fallback.
const DeliverFilteredMinConfidence = 0.7

// ReplySource says where a resolved reply came from.
type ReplySource string

const (
	ReplyOriginal ReplySource = "original"
	ReplyFiltered ReplySource = "filtered"
	ReplyFallback ReplySource = "fallback"
)

// Reply is the text the orchestrator may deliver for a checked candidate.
type Reply struct {
	Content          string      `json:"content"`
	Source           ReplySource `json:"source"`
	AlternativeTopic string      `json:"alternative_topic,omitempty"`
	CheckID          string      `json:"check_id"`
}

// GetSafeAlternativeTopic returns a topic drawn uniformly from the
// age-banded safe list for the child's language, or from the language's
// fallback list when the age is outside every band. blockedTopic is
// informational only.
func (e *Engine) GetSafeAlternativeTopic(blockedTopic string, profile ChildSafetyProfile, language Language) string {
	p := profile.Normalize()
	tables := e.tablesFor(e.store.Current(), language, p)
	topics, ok := tables.SafeTopicsFor(p.Age)
	if !ok {
		topics = tables.FallbackTopics
	}
	topic := e.pick(topics)
	e.logger.Debug("Selected alternative topic",
		"child_id", p.ChildID,
		"blocked_topic", blockedTopic,
		"topic", topic)
	return topic
}

// GetSafeResponse returns a fixed, age-appropriate conversation opener.
// topic is informational only.
func (e *Engine) GetSafeResponse(topic string, profile ChildSafetyProfile, language Language) string {
	p := profile.Normalize()
	return e.pickResponse(e.tablesFor(e.store.Current(), language, p), p.Age)
}

func (e *Engine) pickResponse(tables *policy_engine.LanguageTables, age int) string {
	responses, ok := tables.SafeResponsesFor(age)
	if !ok {
		return tables.FallbackResponse
	}
	return e.pick(responses)
}

func (e *Engine) pick(items []string) string {
	if len(items) == 0 {
		return ""
	}
	e.rngMu.Lock()
	i := e.rng.IntN(len(items))
	e.rngMu.Unlock()
	return items[i]
}

// ResolveReply decides what may be delivered for a checked candidate:
// the original when safe, ProcessedContent when unsafe but confidence is
// above DeliverFilteredMinConfidence, and otherwise a safe response about
// an alternative topic. Unsafe raw content is never returned.
func (e *Engine) ResolveReply(result *CheckResult, profile ChildSafetyProfile, language Language) Reply {
	if language == "" && result.Language != "" {
		language = result.Language
	}
	switch {
	case result.IsSafe:
		return Reply{Content: result.ProcessedContent, Source: ReplyOriginal, CheckID: result.CheckID}
	case result.ProcessedContent != "" && len(result.Violations) > 0 && result.Confidence > DeliverFilteredMinConfidence:
		return Reply{Content: result.ProcessedContent, Source: ReplyFiltered, CheckID: result.CheckID}
	default:
		blocked := ""
		if len(result.Violations) > 0 {
			blocked = result.Violations[0].DetectedContent
		}
		topic := e.GetSafeAlternativeTopic(blocked, profile, language)
		return Reply{
			Content:          e.GetSafeResponse(topic, profile, language),
			Source:           ReplyFallback,
			AlternativeTopic: topic,
			CheckID:          result.CheckID,
		}
	}
}

// CheckAndResolve runs a check and resolves the deliverable reply in one
// call.
func (e *Engine) CheckAndResolve(ctx context.Context, req CheckRequest) (*CheckResult, Reply, error) {
	result, err := e.Check(ctx, req)
	if err != nil {
		return nil, Reply{}, err
	}
	return result, e.ResolveReply(result, req.Profile, req.Language), nil
}
