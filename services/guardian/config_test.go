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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Empty(t, cfg.PolicyFile)
	assert.False(t, cfg.PolicyWatch)
	assert.False(t, cfg.FailClosed)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, float64(DefaultRateLimitRPS), cfg.RateLimitRPS)
	assert.Equal(t, DefaultRateLimitBurst, cfg.RateLimitBurst)
	assert.Equal(t, DefaultMonitorCapacity, cfg.MonitorCapacity)
	assert.Empty(t, cfg.OTelEndpoint)
}

func TestConfigFromEnv_Values(t *testing.T) {
	cfg, err := ConfigFromEnv(envMap(map[string]string{
		EnvPort:           "8081",
		EnvPolicyFile:     `"/etc/safety/policy.yaml"`,
		EnvPolicyWatch:    "true",
		EnvFailClosed:     "1",
		EnvLogLevel:       "DEBUG",
		EnvLogJSON:        "true",
		EnvRateLimitRPS:   "2.5",
		EnvRateLimitBurst: "5",
		EnvAPIToken:       "tok",
		EnvOTelEndpoint:   "otel:4317",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "/etc/safety/policy.yaml", cfg.PolicyFile, "quotes are trimmed")
	assert.True(t, cfg.PolicyWatch)
	assert.True(t, cfg.FailClosed)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 5, cfg.RateLimitBurst)
	assert.Equal(t, "tok", cfg.APIToken)
	assert.Equal(t, "otel:4317", cfg.OTelEndpoint)
}

func TestConfigFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{
			name: "malformed values are all reported",
			env:  map[string]string{EnvPort: "http", EnvFailClosed: "maybe", EnvRateLimitRPS: "fast"},
			want: []string{EnvPort, EnvFailClosed, EnvRateLimitRPS},
		},
		{
			name: "port out of range",
			env:  map[string]string{EnvPort: "70000"},
			want: []string{"Port"},
		},
		{
			name: "unknown log level",
			env:  map[string]string{EnvLogLevel: "chatty"},
			want: []string{"LogLevel"},
		},
		{
			name: "negative rate",
			env:  map[string]string{EnvRateLimitRPS: "-1"},
			want: []string{"RateLimitRPS"},
		},
		{
			name: "watch without file",
			env:  map[string]string{EnvPolicyWatch: "true"},
			want: []string{EnvPolicyFile},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ConfigFromEnv(envMap(tc.env))
			require.Error(t, err)
			for _, w := range tc.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SAFETY_PORT=9999\nSAFETY_LOG_LEVEL=warn\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvPort, "")
	require.NoError(t, os.Unsetenv(EnvPort))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port, "read from .env")
	assert.Equal(t, "error", cfg.LogLevel, "environment wins over .env")
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}.ApplyDefaults()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.RateLimitRPS, "a hand-built config keeps rate limiting off")
	require.NoError(t, cfg.Validate())
}
