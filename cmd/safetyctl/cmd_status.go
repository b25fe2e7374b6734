// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/EmoRobCare/pkg/ux"
	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/spf13/cobra"
)

const statusPath = "/v1/safety/status"

func newStatusCmd(g *globalOptions) *cobra.Command {
	var (
		server  string
		token   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine capabilities and the active policy",
		Long: `Show engine capabilities and the active policy.

Without --server the status of a local engine over --policy (or the
embedded policy) is shown. With --server the running safetyd is queried.
The bearer token defaults to $SAFETY_API_TOKEN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			var (
				status safety.ServiceStatus
				err    error
			)
			if server == "" {
				var engine *safety.Engine
				if engine, err = g.engine(); err != nil {
					return err
				}
				status = engine.GetServiceStatus()
			} else {
				if token == "" {
					token = os.Getenv("SAFETY_API_TOKEN")
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if status, err = fetchStatus(ctx, server, token); err != nil {
					return err
				}
			}

			if g.jsonOut {
				return outputResult(cmd.OutOrStdout(), "status", start, status)
			}
			printStatus(g.printer(cmd), status)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&server, "server", "", "safetyd base URL, e.g. http://localhost:12230")
	f.StringVar(&token, "token", "", "bearer token for the /v1 routes")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func fetchStatus(ctx context.Context, server, token string) (safety.ServiceStatus, error) {
	var status safety.ServiceStatus
	url := strings.TrimRight(server, "/") + statusPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return status, fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return status, fmt.Errorf("query %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

func printStatus(p *ux.Printer, s safety.ServiceStatus) {
	p.Title("Safety Engine Status")
	p.KeyValue("status", s.Status)
	p.KeyValue("policy_version", s.PolicyVersion)
	p.KeyValue("policy_source", s.PolicySource)
	p.KeyValue("policy_fingerprint", s.PolicyFingerprint)
	p.KeyValue("languages", strings.Join(s.SupportedLanguages, ", "))
	p.KeyValue("rules", s.RuleCount)
	p.KeyValue("blocked_patterns", s.BlockedPatternCount)
	p.KeyValue("age_ranges", strings.Join(s.AgeRanges, ", "))
	p.KeyValue("failure_policy", s.FailurePolicy)
	p.KeyValue("checks_performed", s.ChecksPerformed)
}
