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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment keys read by LoadConfig.
const (
	EnvPort            = "SAFETY_PORT"
	EnvPolicyFile      = "SAFETY_POLICY_FILE"
	EnvPolicyWatch     = "SAFETY_POLICY_WATCH"
	EnvFailClosed      = "SAFETY_FAIL_CLOSED"
	EnvLogLevel        = "SAFETY_LOG_LEVEL"
	EnvLogJSON         = "SAFETY_LOG_JSON"
	EnvLogDir          = "SAFETY_LOG_DIR"
	EnvRateLimitRPS    = "SAFETY_RATE_LIMIT_RPS"
	EnvRateLimitBurst  = "SAFETY_RATE_LIMIT_BURST"
	EnvAPIToken        = "SAFETY_API_TOKEN"
	EnvMonitorCapacity = "SAFETY_MONITOR_CAPACITY"
	EnvAlertCapacity   = "SAFETY_ALERT_CAPACITY"
	EnvOTelEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

const (
	DefaultPort            = 12230
	DefaultRateLimitRPS    = 50
	DefaultRateLimitBurst  = 100
	DefaultMonitorCapacity = 1000
	DefaultAlertCapacity   = 1000
)

// Config holds guardian service configuration.
//
// # Description
//
// Every field maps to one environment variable. Zero values are replaced by
// defaults in LoadConfig; a Config built by hand should go through
// ApplyDefaults and Validate before use.
type Config struct {
	// Port is the HTTP listen port. Default: 12230
	Port int `validate:"min=1,max=65535"`

	// PolicyFile overrides the embedded policy. Empty uses the embedded one.
	PolicyFile string

	// PolicyWatch hot-reloads PolicyFile when it changes.
	// Requires PolicyFile.
	PolicyWatch bool

	// FailClosed makes internal rule failures unsafe instead of safe.
	FailClosed bool

	LogLevel string `validate:"omitempty,oneof=debug info warn warning error"`
	LogJSON  bool
	LogDir   string

	// RateLimitRPS is the per-client request rate. 0 disables limiting.
	RateLimitRPS   float64 `validate:"gte=0"`
	RateLimitBurst int     `validate:"gte=1"`

	// APIToken, when set, is required as a bearer token on /v1 routes.
	APIToken string

	MonitorCapacity int `validate:"gte=2"`
	AlertCapacity   int `validate:"gte=1"`

	// OTelEndpoint enables OTLP trace export when set, e.g. "otel:4317".
	OTelEndpoint string
}

var configValidator = validator.New()

// LoadConfig reads configuration from the environment, after loading a
// .env file from the working directory if one exists. Values already set
// in the environment win over the file.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return ConfigFromEnv(os.LookupEnv)
}

// ConfigFromEnv builds a Config from lookup. Every malformed value is
// reported, not just the first.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	p := envParser{lookup: lookup}
	cfg := Config{
		Port:            p.int(EnvPort, DefaultPort),
		PolicyFile:      p.string(EnvPolicyFile, ""),
		PolicyWatch:     p.bool(EnvPolicyWatch, false),
		FailClosed:      p.bool(EnvFailClosed, false),
		LogLevel:        strings.ToLower(p.string(EnvLogLevel, "info")),
		LogJSON:         p.bool(EnvLogJSON, false),
		LogDir:          p.string(EnvLogDir, ""),
		RateLimitRPS:    p.float(EnvRateLimitRPS, DefaultRateLimitRPS),
		RateLimitBurst:  p.int(EnvRateLimitBurst, DefaultRateLimitBurst),
		APIToken:        p.string(EnvAPIToken, ""),
		MonitorCapacity: p.int(EnvMonitorCapacity, DefaultMonitorCapacity),
		AlertCapacity:   p.int(EnvAlertCapacity, DefaultAlertCapacity),
		OTelEndpoint:    p.string(EnvOTelEndpoint, ""),
	}
	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields.
func (c Config) ApplyDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = DefaultRateLimitBurst
	}
	if c.MonitorCapacity == 0 {
		c.MonitorCapacity = DefaultMonitorCapacity
	}
	if c.AlertCapacity == 0 {
		c.AlertCapacity = DefaultAlertCapacity
	}
	return c
}

// Validate checks field ranges and cross-field rules.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.PolicyWatch && c.PolicyFile == "" {
		return fmt.Errorf("invalid configuration: %s requires %s", EnvPolicyWatch, EnvPolicyFile)
	}
	return nil
}

type envParser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *envParser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.Trim(v, "\"' ")
	return v, ok && v != ""
}

func (p *envParser) string(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *envParser) int(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *envParser) float(key string, def float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (p *envParser) bool(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}
