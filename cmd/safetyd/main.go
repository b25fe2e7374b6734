// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command safetyd starts the child content safety HTTP service.
//
// It reads configuration from the environment (and a .env file in the
// working directory, if present) and serves until SIGINT or SIGTERM.
//
// # Environment Variables
//
//   - SAFETY_PORT: HTTP server port (default: 12230)
//   - SAFETY_POLICY_FILE: policy YAML overriding the embedded policy
//   - SAFETY_POLICY_WATCH: hot-reload SAFETY_POLICY_FILE on change
//   - SAFETY_FAIL_CLOSED: treat internal rule failures as unsafe
//   - SAFETY_LOG_LEVEL, SAFETY_LOG_JSON, SAFETY_LOG_DIR: logging
//   - SAFETY_RATE_LIMIT_RPS, SAFETY_RATE_LIMIT_BURST: per-client limits
//   - SAFETY_API_TOKEN: bearer token required on /v1 routes
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP collector; tracing is off when unset
//
// # Usage
//
//	go build -o safetyd ./cmd/safetyd
//	SAFETY_POLICY_FILE=./policy.yaml SAFETY_POLICY_WATCH=true ./safetyd
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/EmoRobCare/pkg/logging"
	"github.com/AleutianAI/EmoRobCare/services/guardian"
	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
	"github.com/gin-gonic/gin"
)

const redactedPlaceholder = "[redacted]"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "safetyd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := guardian.LoadConfig()
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if level > logging.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Log redaction uses the embedded policy's PII patterns. It is fixed at
	// startup so a bad reload can never disable it.
	redactor, err := policy_engine.NewPolicyEngine()
	if err != nil {
		return fmt.Errorf("load embedded policy: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:   level,
		Service: "safetyd",
		JSON:    cfg.LogJSON,
		LogDir:  cfg.LogDir,
		Redact: func(s string) string {
			out, err := redactor.RedactPII(s, redactedPlaceholder)
			if err != nil {
				return redactedPlaceholder
			}
			return out
		},
	})
	defer logger.Close()

	svc, err := guardian.New(cfg, logger.Slog(), nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx)
}
