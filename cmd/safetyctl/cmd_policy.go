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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/EmoRobCare/pkg/ux"
	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
	"github.com/AleutianAI/EmoRobCare/services/policy_engine/enforcement"
	"github.com/spf13/cobra"
)

// =============================================================================
// POLICY SOURCE
// =============================================================================

// policyBytes returns the raw document named by --policy, or the embedded
// policy, along with its display source.
func (o *globalOptions) policyBytes() ([]byte, string, error) {
	if o.policyFile == "" {
		return enforcement.ChildSafetyPolicy, policy_engine.EmbeddedSource, nil
	}
	data, err := os.ReadFile(o.policyFile)
	if err != nil {
		return nil, o.policyFile, fmt.Errorf("read policy: %w", err)
	}
	return data, o.policyFile, nil
}

// =============================================================================
// POLICY VERIFY COMMAND
// =============================================================================

func newPolicyVerifyCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Validate a policy and print its SHA256 fingerprint",
		Long: `Validate a policy document against the schema, compile every pattern
and print its SHA256 fingerprint.

Operators compare the fingerprint with the one reported by
/v1/safety/status to confirm which policy a service is running.
Exits 1 when the document is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyVerify(cmd, g)
		},
	}
}

func runPolicyVerify(cmd *cobra.Command, g *globalOptions) error {
	start := time.Now()
	data, source, err := g.policyBytes()
	if err != nil {
		return err
	}

	result := PolicyVerifyResult{
		Source:   source,
		Hash:     "sha256:" + enforcement.Fingerprint(data),
		ByteSize: len(data),
	}
	engine, loadErr := policy_engine.LoadPolicyEngine(data, source)
	if loadErr != nil {
		result.Problems = policyProblems(loadErr)
	} else {
		result.Valid = true
		result.Version = engine.Version()
		result.Languages = engine.Languages()
		result.RuleCount = engine.RuleCount()
		result.BlockedPatternCount = engine.BlockedPatternCount()
	}

	if g.jsonOut {
		if err := outputResult(cmd.OutOrStdout(), "policy verify", start, result); err != nil {
			return err
		}
	} else {
		printPolicyVerify(g.printer(cmd), result)
	}

	if !result.Valid {
		return findings()
	}
	return nil
}

// policyProblems flattens a load error into one entry per schema field, or
// a single entry for anything else.
func policyProblems(err error) []string {
	var se *policy_engine.SchemaError
	if errors.As(err, &se) {
		out := make([]string, 0, len(se.Errors))
		for _, fe := range se.Errors {
			out = append(out, fe.Field+": "+fe.Message)
		}
		return out
	}
	return []string{err.Error()}
}

func printPolicyVerify(p *ux.Printer, r PolicyVerifyResult) {
	p.Title("Policy Verification")
	p.KeyValue("source", r.Source)
	p.KeyValue("byte_size", r.ByteSize)
	p.KeyValue("fingerprint", r.Hash)
	if !r.Valid {
		p.ErrorBox("Policy is invalid", r.Problems...)
		return
	}
	p.KeyValue("version", r.Version)
	p.KeyValue("languages", strings.Join(r.Languages, ", "))
	p.KeyValue("rules", r.RuleCount)
	p.KeyValue("blocked_patterns", r.BlockedPatternCount)
	p.Status(ux.IconSuccess, "Policy is valid")
}

// =============================================================================
// POLICY DUMP COMMAND
// =============================================================================

func newPolicyDumpCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the raw policy YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, _, err := g.policyBytes()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// =============================================================================
// POLICY TEST COMMAND
// =============================================================================

func newPolicyTestCmd(g *globalOptions) *cobra.Command {
	var redact bool
	cmd := &cobra.Command{
		Use:   "test [text]",
		Short: "Scan text for personal information",
		Long: `Scan text line by line with the policy's personal information
patterns and report every hit. Exits 1 when anything matches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyTest(cmd, g, args, redact)
		},
	}
	cmd.Flags().BoolVar(&redact, "redact", false, "also print the text with matches redacted")
	return cmd
}

func runPolicyTest(cmd *cobra.Command, g *globalOptions, args []string, redact bool) error {
	start := time.Now()
	input, err := readContent(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	data, source, err := g.policyBytes()
	if err != nil {
		return err
	}
	engine, err := policy_engine.LoadPolicyEngine(data, source)
	if err != nil {
		return err
	}

	scan, err := engine.ScanPII(input)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	result := PolicyTestResult{Input: input, Matched: len(scan) > 0, Matches: []PolicyTestMatch{}}
	for _, f := range scan {
		result.Matches = append(result.Matches, PolicyTestMatch{
			Rule:        f.PatternId,
			Description: f.PatternDescription,
			Match:       f.MatchedContent,
			LineNumber:  f.LineNumber,
			Column:      f.Column,
		})
	}
	if redact {
		if result.Redacted, err = engine.RedactPII(input, "[redacted]"); err != nil {
			return fmt.Errorf("redact: %w", err)
		}
	}

	if g.jsonOut {
		if err := outputResult(cmd.OutOrStdout(), "policy test", start, result); err != nil {
			return err
		}
	} else {
		p := g.printer(cmd)
		p.Title("Personal Information Scan")
		if !result.Matched {
			p.Status(ux.IconSuccess, "No personal information found")
		}
		for _, m := range result.Matches {
			p.Bullet(fmt.Sprintf("%d:%d %s %q", m.LineNumber, m.Column, m.Rule, m.Match), m.Description)
		}
		if redact {
			p.Box("Redacted", result.Redacted)
		}
	}

	if result.Matched {
		return findings()
	}
	return nil
}
