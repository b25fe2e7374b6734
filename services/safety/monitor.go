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
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/EmoRobCare/pkg/extensions"
	"github.com/google/uuid"
)

const (
	// DefaultMonitorCapacity is the log size that triggers a trim.
	DefaultMonitorCapacity = 1000

	// EventCriticalViolation is the audit event type for critical alerts.
	EventCriticalViolation = "safety.critical"
)

// LogEntry is one monitored check. It never holds the checked text.
type LogEntry struct {
	ID             string          `json:"id"`
	CheckID        string          `json:"check_id"`
	Timestamp      time.Time       `json:"timestamp"`
	ChildID        string          `json:"child_id"`
	Age            int             `json:"age"`
	ContentLength  int             `json:"content_length"`
	IsSafe         bool            `json:"is_safe"`
	ViolationCount int             `json:"violation_count"`
	ViolationTypes []ViolationType `json:"violation_types"`
	MaxSeverity    Severity        `json:"max_severity,omitempty"`
	Failed         bool            `json:"failed,omitempty"`
}

func newLogEntry(result *CheckResult, p ChildSafetyProfile, content string) LogEntry {
	types := make([]ViolationType, len(result.Violations))
	for i, v := range result.Violations {
		types[i] = v.Type
	}
	return LogEntry{
		ID:             uuid.NewString(),
		CheckID:        result.CheckID,
		Timestamp:      time.Now(),
		ChildID:        p.ChildID,
		Age:            p.Age,
		ContentLength:  len([]rune(content)),
		IsSafe:         result.IsSafe,
		ViolationCount: len(result.Violations),
		ViolationTypes: types,
		MaxSeverity:    result.MaxSeverity(),
		Failed:         result.Error != "",
	}
}

// Statistics summarizes the retained log.
type Statistics struct {
	TotalChecks     int                   `json:"total_safety_checks"`
	SafeChecks      int                   `json:"safe_checks"`
	UnsafeChecks    int                   `json:"unsafe_checks"`
	SafetyRate      float64               `json:"safety_rate"`
	ViolationCounts map[ViolationType]int `json:"violation_counts"`
	LastCheck       *time.Time            `json:"last_check"`

	// LifetimeChecks counts every check since start, including trimmed ones.
	LifetimeChecks uint64 `json:"lifetime_checks"`
}

// MonitorConfig configures a Monitor. Zero values use defaults.
type MonitorConfig struct {
	// Capacity is the size that triggers a trim. Default 1000.
	Capacity int

	// Retain is how many newest entries survive a trim. Default Capacity/2.
	Retain int

	Logger *slog.Logger

	// Audit receives one event per critical alert. Default no-op.
	Audit extensions.AuditLogger
}

// Monitor is a bounded, process-lifetime log of check outcomes.
//
// # Description
//
// Entries are appended in order. When an append pushes the log past
// Capacity, the oldest entries are dropped in one batch so only the newest
// Retain remain. Statistics are computed over what is retained.
//
// Any entry with a critical violation raises an alert immediately: a
// structured warning log line and an audit event. Alerts are sent after the
// lock is released.
//
// # Thread Safety
//
// Append and trim happen in one critical section under a single mutex.
type Monitor struct {
	mu       sync.Mutex
	entries  []LogEntry
	lifetime uint64

	capacity int
	retain   int
	logger   *slog.Logger
	audit    extensions.AuditLogger
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultMonitorCapacity
	}
	if cfg.Retain <= 0 || cfg.Retain > cfg.Capacity {
		cfg.Retain = cfg.Capacity / 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = &extensions.NopAuditLogger{}
	}
	return &Monitor{
		entries:  make([]LogEntry, 0, cfg.Capacity+1),
		capacity: cfg.Capacity,
		retain:   cfg.Retain,
		logger:   cfg.Logger,
		audit:    cfg.Audit,
	}
}

// Record appends entry, trimming if needed, then alerts on critical entries.
func (m *Monitor) Record(ctx context.Context, entry LogEntry) {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.lifetime++
	if len(m.entries) > m.capacity {
		kept := make([]LogEntry, m.retain, m.capacity+1)
		copy(kept, m.entries[len(m.entries)-m.retain:])
		m.entries = kept
	}
	m.mu.Unlock()

	if entry.MaxSeverity == SeverityCritical {
		m.alert(ctx, entry)
	}
}

func (m *Monitor) alert(ctx context.Context, entry LogEntry) {
	types := make([]string, len(entry.ViolationTypes))
	for i, t := range entry.ViolationTypes {
		types[i] = t.String()
	}
	m.logger.WarnContext(ctx, "CRITICAL SAFETY VIOLATION",
		"check_id", entry.CheckID,
		"child_id", entry.ChildID,
		"age", entry.Age,
		"violation_types", types)

	err := m.audit.Log(ctx, extensions.AuditEvent{
		EventType:    EventCriticalViolation,
		Timestamp:    entry.Timestamp,
		SubjectID:    entry.ChildID,
		Action:       "check",
		ResourceType: "check",
		ResourceID:   entry.CheckID,
		Outcome:      "blocked",
		Metadata: map[string]any{
			"age":             entry.Age,
			"violation_count": entry.ViolationCount,
			"violation_types": types,
		},
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to write critical safety audit event",
			"check_id", entry.CheckID,
			"error", err)
	}
}

// Statistics computes aggregates over the retained entries.
func (m *Monitor) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Statistics{
		TotalChecks:     len(m.entries),
		ViolationCounts: make(map[ViolationType]int),
		LifetimeChecks:  m.lifetime,
	}
	for _, e := range m.entries {
		if e.IsSafe {
			stats.SafeChecks++
		} else {
			stats.UnsafeChecks++
		}
		for _, t := range e.ViolationTypes {
			stats.ViolationCounts[t]++
		}
	}
	if stats.TotalChecks > 0 {
		stats.SafetyRate = float64(stats.SafeChecks) / float64(stats.TotalChecks)
		last := m.entries[len(m.entries)-1].Timestamp
		stats.LastCheck = &last
	}
	return stats
}

// Entries returns a copy of the retained log, oldest first.
func (m *Monitor) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Lifetime returns the number of checks recorded since start.
func (m *Monitor) Lifetime() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lifetime
}
