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

import (
	"context"
	"sort"
	"sync"
	"time"
)

// AuditEvent records a safety-relevant action for later review.
//
// Events never carry the text that was checked. Metadata holds identifiers,
// counts and violation types only.
type AuditEvent struct {
	// EventType categorizes the event, e.g. "safety.critical" or
	// "policy.reload".
	EventType string

	Timestamp time.Time

	// SubjectID identifies the child the event concerns, when there is one.
	SubjectID string

	// Action is what happened, e.g. "check", "reload".
	Action string

	// ResourceType and ResourceID name what was acted on, e.g. "check" and
	// a check id, or "policy" and a policy version.
	ResourceType string
	ResourceID   string

	// Outcome is "blocked", "allowed", "success" or "failure".
	Outcome string

	Metadata map[string]any
}

// AuditFilter narrows a Query. Zero fields match everything.
type AuditFilter struct {
	EventTypes []string
	SubjectID  string
	StartTime  time.Time
	EndTime    time.Time
	Outcome    string
	Limit      int
}

// Matches reports whether ev passes the filter.
func (f AuditFilter) Matches(ev AuditEvent) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == ev.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SubjectID != "" && f.SubjectID != ev.SubjectID {
		return false
	}
	if !f.StartTime.IsZero() && ev.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !ev.Timestamp.Before(f.EndTime) {
		return false
	}
	if f.Outcome != "" && f.Outcome != ev.Outcome {
		return false
	}
	return true
}

// AuditLogger receives safety alerts and policy lifecycle events.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuditLogger interface {
	// Log records an event. Implementations should not block the caller for
	// long; the check path calls Log synchronously on critical alerts.
	Log(ctx context.Context, event AuditEvent) error

	// Query returns matching events, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush writes any buffered events.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards every event.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// MemoryAuditLogger keeps the newest events in memory. It is what the
// service uses when no external audit sink is configured, so operators can
// still list recent alerts.
type MemoryAuditLogger struct {
	mu       sync.Mutex
	events   []AuditEvent
	capacity int
}

// NewMemoryAuditLogger creates a logger holding at most capacity events.
// Non-positive capacity defaults to 1000.
func NewMemoryAuditLogger(capacity int) *MemoryAuditLogger {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuditLogger{capacity: capacity}
}

func (l *MemoryAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
	return nil
}

func (l *MemoryAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	l.mu.Lock()
	out := make([]AuditEvent, 0, len(l.events))
	for _, ev := range l.events {
		if filter.Matches(ev) {
			out = append(out, ev)
		}
	}
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *MemoryAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// Len returns the number of retained events.
func (l *MemoryAuditLogger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
)
