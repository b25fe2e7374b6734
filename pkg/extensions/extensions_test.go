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
	"errors"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// ServiceOptions Tests
// ============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if _, ok := opts.AuthProvider.(*NopAuthProvider); !ok {
		t.Error("DefaultOptions().AuthProvider should be *NopAuthProvider")
	}
	if _, ok := opts.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("DefaultOptions().AuditLogger should be *NopAuditLogger")
	}
}

func TestServiceOptions_FluentChaining(t *testing.T) {
	original := DefaultOptions()
	audit := NewMemoryAuditLogger(10)
	auth := &StaticTokenAuthProvider{Token: "secret"}

	opts := original.WithAudit(audit).WithAuth(auth)

	if opts.AuditLogger != audit {
		t.Error("WithAudit did not set the logger")
	}
	if opts.AuthProvider != auth {
		t.Error("WithAuth did not set the provider")
	}
	if _, ok := original.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("chaining must not modify the original options")
	}
}

// ============================================================================
// Audit Tests
// ============================================================================

func TestAuditFilter_Matches(t *testing.T) {
	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	ev := AuditEvent{
		EventType: "safety.critical",
		Timestamp: base,
		SubjectID: "child-1",
		Outcome:   "blocked",
	}

	tests := []struct {
		name   string
		filter AuditFilter
		want   bool
	}{
		{"zero filter", AuditFilter{}, true},
		{"matching type", AuditFilter{EventTypes: []string{"policy.reload", "safety.critical"}}, true},
		{"other type", AuditFilter{EventTypes: []string{"policy.reload"}}, false},
		{"matching subject", AuditFilter{SubjectID: "child-1"}, true},
		{"other subject", AuditFilter{SubjectID: "child-2"}, false},
		{"inside window", AuditFilter{StartTime: base, EndTime: base.Add(time.Second)}, true},
		{"end is exclusive", AuditFilter{EndTime: base}, false},
		{"before start", AuditFilter{StartTime: base.Add(time.Second)}, false},
		{"other outcome", AuditFilter{Outcome: "allowed"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(ev); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNopAuditLogger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := &NopAuditLogger{}
	if err := l.Log(ctx, AuditEvent{EventType: "x"}); err != nil {
		t.Errorf("Log() error = %v", err)
	}
	events, err := l.Query(ctx, AuditFilter{})
	if err != nil || events == nil || len(events) != 0 {
		t.Errorf("Query() = %v, %v; want empty non-nil slice", events, err)
	}
	if err := l.Flush(ctx); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestMemoryAuditLogger_QueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryAuditLogger(10)
	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_ = l.Log(ctx, AuditEvent{
			EventType:  "safety.critical",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			ResourceID: string(rune('a' + i)),
		})
	}
	_ = l.Log(ctx, AuditEvent{EventType: "policy.reload", Timestamp: base.Add(time.Hour)})

	events, err := l.Query(ctx, AuditFilter{EventTypes: []string{"safety.critical"}, Limit: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].ResourceID != "c" || events[1].ResourceID != "b" {
		t.Errorf("events not newest first: %+v", events)
	}
}

func TestMemoryAuditLogger_Capacity(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryAuditLogger(3)
	for i := 0; i < 5; i++ {
		_ = l.Log(ctx, AuditEvent{EventType: "e", ResourceID: string(rune('a' + i))})
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	events, _ := l.Query(ctx, AuditFilter{})
	for _, ev := range events {
		if ev.ResourceID == "a" || ev.ResourceID == "b" {
			t.Errorf("oldest events should have been evicted, found %q", ev.ResourceID)
		}
		if ev.Timestamp.IsZero() {
			t.Error("Log should stamp events that arrive without a timestamp")
		}
	}
}

func TestMemoryAuditLogger_DefaultCapacity(t *testing.T) {
	if l := NewMemoryAuditLogger(0); l.capacity != 1000 {
		t.Errorf("capacity = %d, want 1000", l.capacity)
	}
}

// ============================================================================
// Auth Tests
// ============================================================================

func TestAuthInfo_HasRole(t *testing.T) {
	info := &AuthInfo{Roles: []string{"operator", "reader"}}
	if !info.HasRole("operator") {
		t.Error("expected operator role")
	}
	if info.HasRole("admin") {
		t.Error("unexpected admin role")
	}
	if (&AuthInfo{}).HasRole("operator") {
		t.Error("zero value should have no roles")
	}
}

func TestNopAuthProvider_Validate(t *testing.T) {
	info, err := (&NopAuthProvider{}).Validate(context.Background(), "")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !info.HasRole("operator") {
		t.Error("nop provider should grant the operator role")
	}
}

func TestStaticTokenAuthProvider_Validate(t *testing.T) {
	p := &StaticTokenAuthProvider{Token: "s3cret", ClientID: "orchestrator", Roles: []string{"checker"}}

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"correct token", "s3cret", false},
		{"wrong token", "nope", true},
		{"empty token", "", true},
		{"prefix of token", "s3c", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info, err := p.Validate(context.Background(), tc.token)
			if tc.wantErr {
				if !errors.Is(err, ErrUnauthorized) {
					t.Errorf("Validate() error = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil || info.ClientID != "orchestrator" {
				t.Errorf("Validate() = %+v, %v", info, err)
			}
		})
	}

	if _, err := (&StaticTokenAuthProvider{}).Validate(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Error("a provider with no configured token must reject everything")
	}
}

func TestNopImplementations_ConcurrentSafety(t *testing.T) {
	opts := DefaultOptions().WithAudit(NewMemoryAuditLogger(50))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = opts.AuthProvider.Validate(ctx, "t")
			_ = opts.AuditLogger.Log(ctx, AuditEvent{EventType: "e"})
			_, _ = opts.AuditLogger.Query(ctx, AuditFilter{})
		}()
	}
	wg.Wait()
}
