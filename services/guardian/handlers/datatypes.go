// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"time"

	"github.com/AleutianAI/EmoRobCare/services/safety"
)

// AlternativeTopicRequest asks for a replacement topic and opener.
type AlternativeTopicRequest struct {
	BlockedTopic string                    `json:"blocked_topic"`
	Profile      safety.ChildSafetyProfile `json:"profile"`
	Language     safety.Language           `json:"language,omitempty"`
}

type AlternativeTopicResponse struct {
	Topic    string `json:"topic"`
	Response string `json:"response"`
}

// FilterRequest screens one message for one child. Direction is "input"
// (from the child), "output" (a candidate reply) or "context" (retrieved
// memory).
type FilterRequest struct {
	Direction string                    `json:"direction" binding:"required,oneof=input output context"`
	Message   *string                   `json:"message" binding:"required"`
	Profile   safety.ChildSafetyProfile `json:"profile"`
	Language  safety.Language           `json:"language,omitempty"`
}

// ResolveResponse carries the full check next to the delivery decision.
type ResolveResponse struct {
	Result *safety.CheckResult `json:"result"`
	Reply  safety.Reply        `json:"reply"`
}

// Alert is one critical-violation notice. It never carries content.
type Alert struct {
	Timestamp      time.Time `json:"timestamp"`
	CheckID        string    `json:"check_id"`
	ChildID        string    `json:"child_id"`
	Age            any       `json:"age,omitempty"`
	ViolationCount any       `json:"violation_count,omitempty"`
	ViolationTypes any       `json:"violation_types,omitempty"`
}

type AlertsResponse struct {
	Alerts []Alert `json:"alerts"`
	Count  int     `json:"count"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
