// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/EmoRobCare/pkg/extensions"
	"github.com/AleutianAI/EmoRobCare/services/guardian/handlers"
	"github.com/AleutianAI/EmoRobCare/services/guardian/routes"
	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	svc, err := New(cfg, discardLogger(), nil)
	require.NoError(t, err)
	return svc
}

func do(t *testing.T, svc *Service, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	svc := newTestService(t, Config{})
	w := do(t, svc, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCheckEndpoint(t *testing.T) {
	svc := newTestService(t, Config{})

	t.Run("safe content", func(t *testing.T) {
		w := do(t, svc, http.MethodPost, "/v1/safety/check", map[string]any{
			"content": "¿Jugamos a dibujar animales?",
			"profile": map[string]any{"age": 6},
		})
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[safety.CheckResult](t, w)
		assert.True(t, res.IsSafe)
		assert.Equal(t, 1.0, res.Confidence)
		assert.NotEmpty(t, res.CheckID)
	})

	t.Run("violent content", func(t *testing.T) {
		w := do(t, svc, http.MethodPost, "/v1/safety/check", map[string]any{
			"content":  "quiero matar al monstruo",
			"profile":  map[string]any{"age": 8},
			"language": "es",
		})
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[safety.CheckResult](t, w)
		assert.False(t, res.IsSafe)
		assert.True(t, res.HasViolation(safety.Violence))
		assert.NotContains(t, res.ProcessedContent, "matar")
	})

	t.Run("empty content is safe", func(t *testing.T) {
		w := do(t, svc, http.MethodPost, "/v1/safety/check", `{"content": ""}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[safety.CheckResult](t, w).IsSafe)
	})

	tests := []struct {
		name string
		body string
	}{
		{"missing content", `{"profile": {"age": 8}}`},
		{"invalid profile", `{"content": "hola", "profile": {"age": -3}}`},
		{"unknown sensitivity", `{"content": "hola", "profile": {"sensitivity": "extreme"}}`},
		{"not json", `content=hola`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, svc, http.MethodPost, "/v1/safety/check", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode[handlers.ErrorResponse](t, w).Error)
		})
	}
}

func TestOversizedRequests(t *testing.T) {
	svc := newTestService(t, Config{})

	t.Run("content over the check limit", func(t *testing.T) {
		w := do(t, svc, http.MethodPost, "/v1/safety/check", map[string]any{
			"content": "mi email es nino@ejemplo.com " + strings.Repeat("a", safety.MaxContentBytes),
		})
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, decode[handlers.ErrorResponse](t, w).Error, "maximum length")
		assert.NotContains(t, w.Body.String(), "nino@ejemplo.com")
	})

	t.Run("declared body over the request limit", func(t *testing.T) {
		body := `{"content": "` + strings.Repeat("a", routes.MaxRequestBytes) + `"}`
		w := do(t, svc, http.MethodPost, "/v1/safety/check", body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("streamed body over the request limit", func(t *testing.T) {
		body := io.MultiReader(
			strings.NewReader(`{"content": "`),
			strings.NewReader(strings.Repeat("a", routes.MaxRequestBytes)),
			strings.NewReader(`"}`),
		)
		req := httptest.NewRequest(http.MethodPost, "/v1/safety/filter", body)
		req.ContentLength = -1
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		svc.Router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "request body too large", decode[handlers.ErrorResponse](t, w).Error)
	})
}

func TestResolveEndpoint(t *testing.T) {
	svc := newTestService(t, Config{})

	w := do(t, svc, http.MethodPost, "/v1/safety/resolve", map[string]any{
		"content": "Me gusta el color azul",
		"profile": map[string]any{"age": 7},
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[handlers.ResolveResponse](t, w)
	assert.Equal(t, safety.ReplyOriginal, resp.Reply.Source)
	assert.Equal(t, "Me gusta el color azul", resp.Reply.Content)
	assert.Equal(t, resp.Result.CheckID, resp.Reply.CheckID)

	w = do(t, svc, http.MethodPost, "/v1/safety/resolve", map[string]any{
		"content": "mi teléfono es 600123456",
		"profile": map[string]any{"age": 7},
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[handlers.ResolveResponse](t, w)
	assert.Equal(t, safety.ReplyFallback, resp.Reply.Source)
	assert.NotContains(t, resp.Reply.Content, "600123456")
	assert.NotEmpty(t, resp.Reply.AlternativeTopic)
}

func TestProfileValidateEndpoint(t *testing.T) {
	svc := newTestService(t, Config{})

	w := do(t, svc, http.MethodPost, "/v1/safety/profile/validate", map[string]any{
		"age":            6,
		"sensitivity":    "high",
		"blocked_topics": []string{"miedo"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[safety.CheckResult](t, w)
	assert.False(t, res.IsSafe)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "monstruos, oscuridad, separación", res.Violations[0].DetectedContent)

	w = do(t, svc, http.MethodPost, "/v1/safety/profile/validate", map[string]any{"age": 500})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlternativeTopicEndpoint(t *testing.T) {
	svc := newTestService(t, Config{})
	tables, ok := svc.Store().Current().Tables("en")
	require.True(t, ok)
	allowed, ok := tables.SafeTopicsFor(9)
	require.True(t, ok)

	w := do(t, svc, http.MethodPost, "/v1/safety/alternative-topic", map[string]any{
		"blocked_topic": "violence",
		"profile":       map[string]any{"age": 9},
		"language":      "en",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[handlers.AlternativeTopicResponse](t, w)
	assert.Contains(t, allowed, resp.Topic)
	assert.NotEmpty(t, resp.Response)
}

func TestFilterEndpoint(t *testing.T) {
	svc := newTestService(t, Config{})

	w := do(t, svc, http.MethodPost, "/v1/safety/filter", map[string]any{
		"direction": "input",
		"message":   "mi email es nino@ejemplo.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[extensions.FilterResult](t, w)
	assert.True(t, res.WasModified)
	assert.False(t, res.WasBlocked)
	assert.NotContains(t, res.Filtered, "nino@ejemplo.com")

	w = do(t, svc, http.MethodPost, "/v1/safety/filter", map[string]any{
		"direction": "output",
		"message":   "te voy a pegar con un cuchillo",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[extensions.FilterResult](t, w).WasBlocked)

	w = do(t, svc, http.MethodPost, "/v1/safety/filter", map[string]any{
		"direction": "sideways",
		"message":   "hola",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusAndStatistics(t *testing.T) {
	svc := newTestService(t, Config{})

	for _, content := range []string{"hola", "quiero matar", "vamos al parque"} {
		w := do(t, svc, http.MethodPost, "/v1/safety/check", map[string]any{"content": content})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, svc, http.MethodGet, "/v1/safety/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]any](t, w)
	assert.Equal(t, float64(3), stats["total_safety_checks"])
	assert.Equal(t, float64(2), stats["safe_checks"])

	w = do(t, svc, http.MethodGet, "/v1/safety/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[safety.ServiceStatus](t, w)
	assert.Equal(t, "active", status.Status)
	assert.Equal(t, []string{"en", "es"}, status.SupportedLanguages)
	assert.Equal(t, uint64(3), status.ChecksPerformed)
	assert.Equal(t, "fail_open", status.FailurePolicy)
	assert.Equal(t, policy_engine.EmbeddedSource, status.PolicySource)
}

func TestAlertsEndpoint(t *testing.T) {
	svc := newTestService(t, Config{})

	w := do(t, svc, http.MethodPost, "/v1/safety/check", map[string]any{
		"content": "llámame al 600123456",
		"profile": map[string]any{"child_id": "nina-1", "age": 7},
	})
	require.Equal(t, http.StatusOK, w.Code)
	checkID := decode[safety.CheckResult](t, w).CheckID

	w = do(t, svc, http.MethodGet, "/v1/safety/alerts?child_id=nina-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[handlers.AlertsResponse](t, w)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, checkID, resp.Alerts[0].CheckID)
	assert.NotContains(t, w.Body.String(), "600123456")

	w = do(t, svc, http.MethodGet, "/v1/safety/alerts?child_id=someone-else", nil)
	assert.Equal(t, 0, decode[handlers.AlertsResponse](t, w).Count)

	for _, q := range []string{"limit=0", "limit=abc", "limit=501", "since=yesterday"} {
		w = do(t, svc, http.MethodGet, "/v1/safety/alerts?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	svc := newTestService(t, Config{})
	do(t, svc, http.MethodPost, "/v1/safety/check", map[string]any{"content": "quiero matar"})

	w := do(t, svc, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `emorobcare_safety_checks_total{result="unsafe"} 1`)
	assert.Contains(t, body, "emorobcare_safety_policy_info")
	assert.Contains(t, body, "go_goroutines")
}

func TestAPIToken(t *testing.T) {
	svc := newTestService(t, Config{APIToken: "s3cret"})

	w := do(t, svc, http.MethodGet, "/v1/safety/status", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, svc, http.MethodGet, "/v1/safety/status", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, svc, http.MethodGet, "/v1/safety/status", nil, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, svc, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health stays open")
}

func TestAlertsRequireOperator(t *testing.T) {
	opts := &extensions.ServiceOptions{
		AuthProvider: &extensions.StaticTokenAuthProvider{Token: "t", ClientID: "robot", Roles: []string{"checker"}},
	}
	svc, err := New(Config{}, discardLogger(), opts)
	require.NoError(t, err)

	w := do(t, svc, http.MethodGet, "/v1/safety/alerts", nil, "Authorization", "Bearer t")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, svc, http.MethodPost, "/v1/safety/check", `{"content":"hola"}`, "Authorization", "Bearer t")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	svc := newTestService(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		w := do(t, svc, http.MethodGet, "/v1/safety/status", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(t, svc, http.MethodGet, "/v1/safety/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = do(t, svc, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health is not rate limited")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{PolicyWatch: true}, discardLogger(), nil)
	assert.Error(t, err, "watch without a file")

	bad := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: 1\nlanguages: nope\n"), 0o644))
	_, err = New(Config{PolicyFile: bad}, discardLogger(), nil)
	assert.ErrorIs(t, err, policy_engine.ErrPolicyInvalid)

	_, err = New(Config{PolicyFile: filepath.Join(t.TempDir(), "missing.yaml")}, discardLogger(), nil)
	assert.Error(t, err)
}

func TestNew_FailClosed(t *testing.T) {
	svc := newTestService(t, Config{FailClosed: true})
	assert.Equal(t, safety.FailClosed, svc.Engine().FailurePolicy())
}

func TestRun_GracefulShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	svc := newTestService(t, Config{Port: port})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
