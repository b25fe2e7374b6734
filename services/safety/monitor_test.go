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
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/EmoRobCare/pkg/extensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(i int, safe bool, types ...ViolationType) LogEntry {
	e := LogEntry{
		ID:             fmt.Sprintf("e-%d", i),
		Timestamp:      time.Unix(int64(i), 0),
		ChildID:        "c",
		IsSafe:         safe,
		ViolationCount: len(types),
		ViolationTypes: types,
	}
	if len(types) > 0 {
		e.MaxSeverity = SeverityMedium
	}
	return e
}

func TestMonitor_TrimKeepsNewestHalf(t *testing.T) {
	m := NewMonitor(MonitorConfig{Capacity: 10, Logger: discardLogger()})
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		m.Record(ctx, entry(i, true))
	}
	assert.Len(t, m.Entries(), 10, "no trim until capacity is exceeded")

	m.Record(ctx, entry(11, true))
	entries := m.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, "e-7", entries[0].ID)
	assert.Equal(t, "e-11", entries[4].ID)
	assert.Equal(t, uint64(11), m.Lifetime())
}

func TestMonitor_Statistics(t *testing.T) {
	m := NewMonitor(MonitorConfig{Logger: discardLogger()})
	ctx := context.Background()

	empty := m.Statistics()
	assert.Zero(t, empty.TotalChecks)
	assert.Nil(t, empty.LastCheck)
	assert.Zero(t, empty.SafetyRate)

	m.Record(ctx, entry(1, true))
	m.Record(ctx, entry(2, false, Violence, InappropriateContent))
	m.Record(ctx, entry(3, false, Violence))
	m.Record(ctx, entry(4, true))

	stats := m.Statistics()
	assert.Equal(t, 4, stats.TotalChecks)
	assert.Equal(t, 2, stats.SafeChecks)
	assert.Equal(t, 2, stats.UnsafeChecks)
	assert.InDelta(t, 0.5, stats.SafetyRate, 1e-9)
	assert.Equal(t, 2, stats.ViolationCounts[Violence])
	assert.Equal(t, 1, stats.ViolationCounts[InappropriateContent])
	require.NotNil(t, stats.LastCheck)
	assert.Equal(t, time.Unix(4, 0), *stats.LastCheck)
}

func TestMonitor_ConcurrentRecord(t *testing.T) {
	m := NewMonitor(MonitorConfig{Capacity: 100, Logger: discardLogger()})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Record(ctx, entry(g*1000+i, i%3 != 0))
				stats := m.Statistics()
				assert.Equal(t, stats.TotalChecks, stats.SafeChecks+stats.UnsafeChecks)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), m.Lifetime())
	assert.LessOrEqual(t, len(m.Entries()), 100)
}

type failingAudit struct{ *extensions.NopAuditLogger }

func (failingAudit) Log(context.Context, extensions.AuditEvent) error {
	return assert.AnError
}

func TestMonitor_CriticalAlert(t *testing.T) {
	audit := extensions.NewMemoryAuditLogger(10)
	m := NewMonitor(MonitorConfig{Logger: discardLogger(), Audit: audit})
	ctx := context.Background()

	critical := entry(1, false, PersonalInfo)
	critical.MaxSeverity = SeverityCritical
	critical.CheckID = "chk-1"
	m.Record(ctx, critical)
	m.Record(ctx, entry(2, false, Violence))

	events, err := audit.Query(ctx, extensions.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventCriticalViolation, events[0].EventType)
	assert.Equal(t, "chk-1", events[0].ResourceID)
	assert.Equal(t, []string{"personal_info"}, events[0].Metadata["violation_types"])

	// A failing audit sink does not stop recording.
	m2 := NewMonitor(MonitorConfig{Logger: discardLogger(), Audit: failingAudit{&extensions.NopAuditLogger{}}})
	m2.Record(ctx, critical)
	assert.Len(t, m2.Entries(), 1)
}

func TestMonitor_Defaults(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	assert.Equal(t, DefaultMonitorCapacity, m.capacity)
	assert.Equal(t, DefaultMonitorCapacity/2, m.retain)

	m = NewMonitor(MonitorConfig{Capacity: 8, Retain: 20})
	assert.Equal(t, 4, m.retain, "retain larger than capacity falls back to half")
}
