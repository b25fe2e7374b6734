// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *SafetyMetrics {
	t.Helper()
	return NewSafetyMetrics(prometheus.NewRegistry())
}

func TestObserveCheck(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveCheck(&safety.CheckResult{IsSafe: true}, time.Millisecond)
	m.ObserveCheck(&safety.CheckResult{
		IsSafe: false,
		Violations: []safety.Violation{
			{Type: safety.Violence, Severity: safety.SeverityHigh},
			{Type: safety.PersonalInfo, Severity: safety.SeverityCritical},
		},
	}, 2*time.Millisecond)
	m.ObserveCheck(&safety.CheckResult{IsSafe: true, Error: "boom"}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("safe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("unsafe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViolationsTotal.WithLabelValues("violence", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViolationsTotal.WithLabelValues("personal_info", "critical")))
}

func TestObserveReload(t *testing.T) {
	m := newTestMetrics(t)
	engine, err := policy_engine.NewPolicyEngine()
	require.NoError(t, err)

	m.ObserveReload(policy_engine.ReloadEvent{Previous: engine, Current: engine})
	m.ObserveReload(policy_engine.ReloadEvent{Previous: engine, Current: engine, Err: assert.AnError})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyReloadsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyReloadsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyInfo.WithLabelValues(engine.Version(), engine.Fingerprint())))
}

func TestEngineWiring(t *testing.T) {
	m := newTestMetrics(t)
	engine, err := safety.NewDefault(safety.WithRecorder(m))
	require.NoError(t, err)

	_, err = engine.CheckContentSafety(context.Background(), "mi email es nino@ejemplo.com",
		safety.ChildSafetyProfile{Age: 8}, nil, "es")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("unsafe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CriticalAlertsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CheckDurationSeconds))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewSafetyMetrics(reg)
	assert.Panics(t, func() { NewSafetyMetrics(reg) })
}
