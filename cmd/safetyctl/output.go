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
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with findings/violations
	CLIExitError    = 2 // Operation failed
)

// CommandResult wraps --json output with metadata.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// exitError carries a non-zero exit code out of a RunE. A nil err means the
// command already reported its outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// findings signals exit code 1 without an error message.
func findings() error {
	return &exitError{code: CLIExitFindings}
}

// OutputJSON writes data as indented JSON.
func OutputJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// outputResult writes a successful CommandResult envelope.
func outputResult(w io.Writer, command string, start time.Time, data any) error {
	return OutputJSON(w, CommandResult{
		APIVersion: "1.0",
		Command:    command,
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    true,
		Data:       data,
	})
}

// outputError reports err as a failed CommandResult in JSON mode and as an
// "Error:" line on stderr otherwise.
func outputError(stdout, stderr io.Writer, jsonMode bool, err error) {
	if jsonMode {
		_ = OutputJSON(stdout, CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now().UTC(),
			Success:    false,
			Error:      err.Error(),
		})
		return
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
}

// PolicyVerifyResult holds policy verification output.
type PolicyVerifyResult struct {
	Source              string   `json:"source"`
	Valid               bool     `json:"valid"`
	Hash                string   `json:"hash"`
	ByteSize            int      `json:"byte_size"`
	Version             string   `json:"version,omitempty"`
	Languages           []string `json:"languages,omitempty"`
	RuleCount           int      `json:"rule_count,omitempty"`
	BlockedPatternCount int      `json:"blocked_pattern_count,omitempty"`
	Problems            []string `json:"problems,omitempty"`
}

// PolicyTestResult holds PII scan output.
type PolicyTestResult struct {
	Input    string            `json:"input"`
	Matched  bool              `json:"matched"`
	Matches  []PolicyTestMatch `json:"matches"`
	Redacted string            `json:"redacted,omitempty"`
}

// PolicyTestMatch is a single PII hit.
type PolicyTestMatch struct {
	Rule        string `json:"rule"`
	Description string `json:"description"`
	Match       string `json:"match"`
	LineNumber  int    `json:"line_number"`
	Column      int    `json:"column"`
}

// TopicResult holds alternative topic output.
type TopicResult struct {
	Age      int    `json:"age"`
	Language string `json:"language"`
	Topic    string `json:"topic"`
	Response string `json:"response"`
}
