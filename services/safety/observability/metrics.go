// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability exposes Prometheus metrics for the safety engine.
package observability

import (
	"time"

	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "emorobcare"
	safetySubsystem  = "safety"
)

// SafetyMetrics implements safety.Recorder.
type SafetyMetrics struct {
	// ChecksTotal counts checks by outcome.
	// Labels: result (safe, unsafe, failed)
	ChecksTotal *prometheus.CounterVec

	// ViolationsTotal counts violations.
	// Labels: type (violation type tag), severity (low, medium, high, critical)
	ViolationsTotal *prometheus.CounterVec

	// CheckDurationSeconds measures end-to-end check latency.
	CheckDurationSeconds prometheus.Histogram

	// CriticalAlertsTotal counts checks that raised a critical alert.
	CriticalAlertsTotal prometheus.Counter

	// InternalErrorsTotal counts internal failures converted by the failure
	// policy.
	// Labels: stage (checkers, rewriter)
	InternalErrorsTotal *prometheus.CounterVec

	// PolicyReloadsTotal counts policy reload attempts.
	// Labels: status (success, error)
	PolicyReloadsTotal *prometheus.CounterVec

	// PolicyInfo is 1 for the active policy version.
	// Labels: version, fingerprint
	PolicyInfo *prometheus.GaugeVec
}

// NewSafetyMetrics registers every metric with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewSafetyMetrics(reg prometheus.Registerer) *SafetyMetrics {
	factory := promauto.With(reg)
	return &SafetyMetrics{
		ChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: safetySubsystem,
				Name:      "checks_total",
				Help:      "Total safety checks by result",
			},
			[]string{"result"},
		),

		ViolationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: safetySubsystem,
				Name:      "violations_total",
				Help:      "Total violations by type and severity tier",
			},
			[]string{"type", "severity"},
		),

		CheckDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: safetySubsystem,
				Name:      "check_duration_seconds",
				Help:      "Safety check duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
		),

		CriticalAlertsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: safetySubsystem,
				Name:      "critical_alerts_total",
				Help:      "Checks that raised a critical safety alert",
			},
		),

		InternalErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: safetySubsystem,
				Name:      "internal_errors_total",
				Help:      "Internal failures handled by the failure policy",
			},
			[]string{"stage"},
		),

		PolicyReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: safetySubsystem,
				Name:      "policy_reloads_total",
				Help:      "Policy reload attempts by status",
			},
			[]string{"status"},
		),

		PolicyInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: safetySubsystem,
				Name:      "policy_info",
				Help:      "Active policy version (value is always 1)",
			},
			[]string{"version", "fingerprint"},
		),
	}
}

func (m *SafetyMetrics) ObserveCheck(result *safety.CheckResult, elapsed time.Duration) {
	outcome := "safe"
	switch {
	case result.Error != "":
		outcome = "failed"
	case !result.IsSafe:
		outcome = "unsafe"
	}
	m.ChecksTotal.WithLabelValues(outcome).Inc()
	for _, v := range result.Violations {
		m.ViolationsTotal.WithLabelValues(v.Type.String(), v.Severity.String()).Inc()
	}
	m.CheckDurationSeconds.Observe(elapsed.Seconds())
}

func (m *SafetyMetrics) ObserveInternalError(stage string) {
	m.InternalErrorsTotal.WithLabelValues(stage).Inc()
}

func (m *SafetyMetrics) ObserveCriticalAlert() {
	m.CriticalAlertsTotal.Inc()
}

// SetPolicy marks engine as the active policy.
func (m *SafetyMetrics) SetPolicy(engine *policy_engine.PolicyEngine) {
	m.PolicyInfo.Reset()
	m.PolicyInfo.WithLabelValues(engine.Version(), engine.Fingerprint()).Set(1)
}

// ObserveReload is a policy_engine.Store OnReload callback.
func (m *SafetyMetrics) ObserveReload(ev policy_engine.ReloadEvent) {
	if ev.Err != nil {
		m.PolicyReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.PolicyReloadsTotal.WithLabelValues("success").Inc()
	m.SetPolicy(ev.Current)
}

var _ safety.Recorder = (*SafetyMetrics)(nil)
