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
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/AleutianAI/EmoRobCare/services/safety"

// Recorder receives check outcomes for metrics. See services/safety/observability.
type Recorder interface {
	ObserveCheck(result *CheckResult, elapsed time.Duration)
	ObserveInternalError(stage string)
	ObserveCriticalAlert()
}

type nopRecorder struct{}

func (nopRecorder) ObserveCheck(*CheckResult, time.Duration) {}
func (nopRecorder) ObserveInternalError(string)              {}
func (nopRecorder) ObserveCriticalAlert()                    {}

// CheckRequest is the boundary form of a check. A nil Content is an input
// error; every other field is optional.
type CheckRequest struct {
	Content  *string            `json:"content"`
	Profile  ChildSafetyProfile `json:"profile"`
	Context  *SafetyContext     `json:"context,omitempty"`
	Language Language           `json:"language,omitempty"`
}

// Engine runs safety checks against the live policy snapshot.
//
// # Description
//
// Each check loads the current policy once and uses that snapshot
// throughout, so a concurrent reload never mixes two policy versions in one
// result. Checkers run concurrently; their violations are merged in the
// fixed checker order.
//
// # Thread Safety
//
// Safe for concurrent use.
type Engine struct {
	store      *policy_engine.Store
	logger     *slog.Logger
	monitor    *Monitor
	recorder   Recorder
	tracer     trace.Tracer
	confidence ConfidencePolicy
	failure    FailurePolicy
	checkers   []checker

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMonitor replaces the default monitor, e.g. to share one across engines.
func WithMonitor(m *Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithConfidencePolicy(p ConfidencePolicy) Option {
	return func(e *Engine) { e.confidence = p }
}

func WithFailurePolicy(p FailurePolicy) Option {
	return func(e *Engine) { e.failure = p }
}

// WithRand sets the random source used for topic and response selection.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// New builds an Engine over store. Unset options fall back to slog.Default,
// a fresh Monitor, no metrics, the global otel tracer, DefaultConfidence and
// FailOpen.
func New(store *policy_engine.Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		confidence: DefaultConfidence,
		failure:    FailOpen,
		checkers:   defaultCheckers(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.monitor == nil {
		e.monitor = NewMonitor(MonitorConfig{Logger: e.logger})
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5afe))
	}
	return e
}

// NewDefault builds an Engine over the embedded policy.
func NewDefault(opts ...Option) (*Engine, error) {
	policy, err := policy_engine.NewPolicyEngine()
	if err != nil {
		return nil, err
	}
	return New(policy_engine.NewStore(policy, "", nil), opts...), nil
}

func (e *Engine) Monitor() *Monitor { return e.monitor }

func (e *Engine) Policy() *policy_engine.PolicyEngine { return e.store.Current() }

func (e *Engine) FailurePolicy() FailurePolicy { return e.failure }

// Check validates the request boundary and runs CheckContentSafety.
// Returns ErrMissingContent when Content is nil, plus every error
// CheckContentSafety returns.
func (e *Engine) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	if req.Content == nil {
		return nil, ErrMissingContent
	}
	return e.CheckContentSafety(ctx, *req.Content, req.Profile, req.Context, req.Language)
}

// CheckContentSafety decides whether content may be shown to the child
// described by profile.
//
// # Inputs
//
//   - content: text to check. Empty or whitespace-only text is safe.
//   - profile: raw profile; defaults are applied here.
//   - sctx: optional conversation context, may be nil.
//   - language: overrides profile.Language when non-empty. Unsupported
//     languages fall back to the policy default.
//
// # Outputs
//
//   - *CheckResult: never nil when err is nil.
//   - error: ErrContentTooLong when content is over MaxContentBytes, or
//     ErrInvalidProfile for a structurally invalid profile (see its doc).
//     Internal rule failures are reported in CheckResult.Error according to
//     the failure policy, except pattern timeouts, which always fail closed.
func (e *Engine) CheckContentSafety(ctx context.Context, content string, profile ChildSafetyProfile, sctx *SafetyContext, language Language) (*CheckResult, error) {
	if len(content) > MaxContentBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrContentTooLong, len(content), MaxContentBytes)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	policy := e.store.Current()
	p := profile.Normalize()
	tables := e.tablesFor(policy, language, p)

	ctx, span := e.tracer.Start(ctx, "safety.CheckContentSafety",
		trace.WithAttributes(
			attribute.String("child_id", p.ChildID),
			attribute.Int("age", p.Age),
			attribute.String("language", tables.Code),
			attribute.Int("content_length", len(content)),
			attribute.String("policy_version", policy.Version()),
		))
	defer span.End()

	result := &CheckResult{
		CheckID:       uuid.NewString(),
		Violations:    []Violation{},
		Language:      Language(tables.Code),
		PolicyVersion: policy.Version(),
	}

	if isBlank(content) {
		result.IsSafe = true
		result.ProcessedContent = content
		result.Confidence = 1.0
		e.finish(ctx, span, result, p, content, start)
		return result, nil
	}

	normalized := normalizeText(content)
	in := &checkInput{
		content: normalized,
		folded:  foldText(normalized),
		profile: p,
		sctx:    sctx,
		policy:  policy,
		tables:  tables,
	}

	violations, err := e.runCheckers(ctx, in)
	if err != nil {
		e.failed(ctx, span, result, p, policy, tables, content, "checkers", err)
		e.finish(ctx, span, result, p, content, start)
		return result, nil
	}

	result.Violations = violations
	result.IsSafe = len(violations) == 0 && maxSeverity(violations) < SeverityCritical
	result.Confidence = e.confidence.Confidence(violations)

	if len(violations) == 0 {
		result.ProcessedContent = content
	} else {
		processed, err := rewrite(normalized, violations, policy, tables)
		if err != nil {
			e.failed(ctx, span, result, p, policy, tables, content, "rewriter", err)
			e.finish(ctx, span, result, p, content, start)
			return result, nil
		}
		result.ProcessedContent = processed
	}

	e.finish(ctx, span, result, p, content, start)
	return result, nil
}

// runCheckers fans out every checker and merges their output in checker
// order. A checker that errors or panics fails the whole run.
func (e *Engine) runCheckers(ctx context.Context, in *checkInput) ([]Violation, error) {
	slots := make([][]Violation, len(e.checkers))
	var g errgroup.Group
	for i, c := range e.checkers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s checker panicked: %v", c.kind, r)
				}
			}()
			vs, err := c.run(in)
			if err != nil {
				return fmt.Errorf("%s checker: %w", c.kind, err)
			}
			slots[i] = vs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := []Violation{}
	for _, vs := range slots {
		merged = append(merged, vs...)
	}
	return merged, nil
}

// failed turns an internal error into a result per the failure policy.
//
// A pattern timeout always fails closed: it is caused by the input, not by
// a broken rule. A fail-open result still has its personal information
// redacted; if that redaction fails too, the result fails closed.
func (e *Engine) failed(ctx context.Context, span trace.Span, result *CheckResult, p ChildSafetyProfile, policy *policy_engine.PolicyEngine, tables *policy_engine.LanguageTables, content, stage string, err error) {
	closed := e.failure == FailClosed || errors.Is(err, policy_engine.ErrMatchTimeout)

	var processed string
	if !closed {
		var redactErr error
		if processed, redactErr = policy.RedactPII(content, tables.PIIPlaceholder); redactErr != nil {
			err = errors.Join(err, redactErr)
			closed = true
		}
	}

	outcome := "fail_open"
	if closed {
		outcome = "fail_closed"
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, stage+" failed")
	e.recorder.ObserveInternalError(stage)
	e.logger.ErrorContext(ctx, "Safety check failed internally",
		"stage", stage,
		"check_id", result.CheckID,
		"child_id", p.ChildID,
		"outcome", outcome,
		"error", err)

	result.Violations = []Violation{}
	result.Error = err.Error()
	if closed {
		result.IsSafe = false
		result.Confidence = 0
		result.ProcessedContent = e.pickResponse(tables, p.Age)
		return
	}
	result.IsSafe = true
	result.Confidence = failOpenConfidence
	result.ProcessedContent = processed
}

// finish records the result with the monitor and metrics.
func (e *Engine) finish(ctx context.Context, span trace.Span, result *CheckResult, p ChildSafetyProfile, content string, start time.Time) {
	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Bool("is_safe", result.IsSafe),
		attribute.Int("violations", len(result.Violations)),
		attribute.Float64("confidence", result.Confidence),
	)

	entry := newLogEntry(result, p, content)
	e.monitor.Record(ctx, entry)
	e.recorder.ObserveCheck(result, elapsed)
	if entry.MaxSeverity == SeverityCritical {
		e.recorder.ObserveCriticalAlert()
	}

	e.logger.DebugContext(ctx, "Safety check complete",
		"check_id", result.CheckID,
		"child_id", p.ChildID,
		"is_safe", result.IsSafe,
		"violations", len(result.Violations),
		"confidence", result.Confidence,
		"duration_ms", elapsed.Milliseconds())
}

// RedactPersonalInfo replaces every personal information match in content
// with the placeholder of the resolved language. Nothing else in the text
// changes.
func (e *Engine) RedactPersonalInfo(content string, profile ChildSafetyProfile, language Language) (string, error) {
	policy := e.store.Current()
	tables := e.tablesFor(policy, language, profile.Normalize())
	return policy.RedactPII(content, tables.PIIPlaceholder)
}

// tablesFor resolves the language: explicit argument, then profile, then the
// policy default.
func (e *Engine) tablesFor(policy *policy_engine.PolicyEngine, language Language, p ChildSafetyProfile) *policy_engine.LanguageTables {
	lang := language
	if lang == "" {
		lang = p.Language
	}
	tables, ok := policy.Tables(string(lang))
	if !ok {
		e.logger.Debug("Unsupported language, using policy default",
			"requested", string(lang),
			"default", tables.Code)
	}
	return tables
}

// GetSafetyStatistics reports aggregate outcomes over the retained log.
func (e *Engine) GetSafetyStatistics() Statistics {
	return e.monitor.Statistics()
}

// ServiceStatus is a static capability report.
type ServiceStatus struct {
	Status              string          `json:"status"`
	SupportedLanguages  []string        `json:"supported_languages"`
	RuleCount           int             `json:"rule_count"`
	BlockedPatternCount int             `json:"blocked_pattern_count"`
	ViolationTypes      []ViolationType `json:"violation_types"`
	AgeRanges           []string        `json:"age_ranges"`
	Features            map[string]bool `json:"features"`
	PolicyVersion       string          `json:"policy_version"`
	PolicyFingerprint   string          `json:"policy_fingerprint"`
	PolicySource        string          `json:"policy_source"`
	ChecksPerformed     uint64          `json:"safety_checks_performed"`
	FailurePolicy       string          `json:"failure_policy"`
}

// GetServiceStatus reports what the engine can do under the current policy.
func (e *Engine) GetServiceStatus() ServiceStatus {
	policy := e.store.Current()
	return ServiceStatus{
		Status:              "active",
		SupportedLanguages:  policy.Languages(),
		RuleCount:           policy.RuleCount(),
		BlockedPatternCount: policy.BlockedPatternCount(),
		ViolationTypes:      AllViolationTypes(),
		AgeRanges:           policy.AgeRanges(),
		Features: map[string]bool{
			"content_filtering":       true,
			"age_appropriate_check":   true,
			"personal_info_redaction": true,
			"blocked_topics":          true,
			"language_complexity":     true,
			"emotional_check":         true,
			"alternative_topics":      true,
			"profile_audit":           true,
			"policy_hot_reload":       e.store.Path() != "",
		},
		PolicyVersion:     policy.Version(),
		PolicyFingerprint: policy.Fingerprint(),
		PolicySource:      policy.Source(),
		ChecksPerformed:   e.monitor.Lifetime(),
		FailurePolicy:     e.failure.String(),
	}
}
