// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/AleutianAI/EmoRobCare/services/policy_engine/enforcement"
	"gopkg.in/yaml.v3"
)

// EmbeddedSource names the built-in policy in Source().
const EmbeddedSource = "embedded"

// PolicyEngine is an immutable, compiled snapshot of one policy document.
// Every method is safe for concurrent use.
type PolicyEngine struct {
	file        PolicyFile
	fingerprint string
	source      string
	size        int
}

// NewPolicyEngine initializes a PolicyEngine from the policy embedded in the
// binary via the enforcement package.
//
// It performs the following operations:
// 1. Validates the document against the embedded JSON schema.
// 2. Unmarshals the YAML, rejecting unknown fields.
// 3. Checks that emotional thresholds tighten with sensitivity.
// 4. Compiles every regex pattern and replacement rule.
// 5. Sorts age-banded lists by lower bound.
//
// Returns an error wrapping ErrPolicyInvalid if any step fails.
func NewPolicyEngine() (*PolicyEngine, error) {
	return LoadPolicyEngine(enforcement.ChildSafetyPolicy, EmbeddedSource)
}

// LoadPolicyFile reads and compiles a policy document from disk.
func LoadPolicyFile(path string) (*PolicyEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	return LoadPolicyEngine(data, path)
}

// LoadPolicyEngine compiles a raw policy document. source is informational.
func LoadPolicyEngine(data []byte, source string) (*PolicyEngine, error) {
	if err := ValidatePolicyDocument(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPolicyInvalid, source, err)
	}

	var file PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal %s: %w", ErrPolicyInvalid, source, err)
	}

	if err := file.Emotional.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPolicyInvalid, source, err)
	}

	if err := file.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPolicyInvalid, source, err)
	}
	file.SortBands()

	if _, ok := file.Languages[file.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("%w: %s: default language %q has no tables",
			ErrPolicyInvalid, source, file.DefaultLanguage)
	}

	return &PolicyEngine{
		file:        file,
		fingerprint: enforcement.Fingerprint(data),
		source:      source,
		size:        len(data),
	}, nil
}

func (e *PolicyEngine) Version() string     { return e.file.Version }
func (e *PolicyEngine) Fingerprint() string { return e.fingerprint }
func (e *PolicyEngine) Source() string      { return e.source }
func (e *PolicyEngine) Size() int           { return e.size }

func (e *PolicyEngine) DefaultLanguage() string { return e.file.DefaultLanguage }

func (e *PolicyEngine) AgeGates() AgeGates { return e.file.AgeGates }

func (e *PolicyEngine) Emotional() EmotionalThresholds { return e.file.Emotional }

// Languages returns the supported language codes, sorted.
func (e *PolicyEngine) Languages() []string {
	out := make([]string, 0, len(e.file.Languages))
	for code := range e.file.Languages {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Tables returns the tables for lang. Unknown or empty languages fall back
// to the default language; the bool reports whether lang was found as given.
func (e *PolicyEngine) Tables(lang string) (*LanguageTables, bool) {
	if t, ok := e.file.Languages[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return t, true
	}
	return e.file.Languages[e.file.DefaultLanguage], false
}

// StrictTables is Tables without the fallback.
func (e *PolicyEngine) StrictTables(lang string) (*LanguageTables, error) {
	t, ok := e.Tables(lang)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	return t, nil
}

// PIIPatterns returns the personal-information pattern set, shared across
// languages.
func (e *PolicyEngine) PIIPatterns() *PatternGroup {
	return &e.file.PersonalInfo
}

// ComplexityCeiling returns the words-per-sentence ceiling for the first
// band containing age. Ages outside every band have no ceiling.
func (e *PolicyEngine) ComplexityCeiling(age int) (ComplexityBand, bool) {
	for _, band := range e.file.Complexity {
		if band.Contains(age) {
			return band, true
		}
	}
	return ComplexityBand{}, false
}

// AgeRanges lists the complexity bands as "min-max" strings.
func (e *PolicyEngine) AgeRanges() []string {
	out := make([]string, 0, len(e.file.Complexity))
	for _, band := range e.file.Complexity {
		out = append(out, band.String())
	}
	return out
}

// BlockedPatternCount is the number of regex patterns that can flag content:
// PII plus every language's inappropriate and violence sets.
func (e *PolicyEngine) BlockedPatternCount() int {
	n := len(e.file.PersonalInfo.Patterns)
	for _, t := range e.file.Languages {
		n += len(t.Inappropriate.Patterns) + len(t.Violence.Patterns)
	}
	return n
}

// RuleCount is every named rule in the policy: blocked patterns, topic
// entries, replacement entries and emotional word lists.
func (e *PolicyEngine) RuleCount() int {
	n := e.BlockedPatternCount() + len(e.file.Complexity)
	for _, t := range e.file.Languages {
		n += len(t.ScaryTopics) + len(t.AdultTopics) + len(t.Replacements)
		n += len(t.NegativeWords) + len(t.ExcitingWords)
	}
	return n
}

// ContainsPII is a fast boolean check against the PII set. Pattern errors
// count as a hit so callers err on the side of redaction.
func (e *PolicyEngine) ContainsPII(content string) bool {
	for i := range e.file.PersonalInfo.Patterns {
		ok, err := e.file.PersonalInfo.Patterns[i].MatchString(content)
		if err != nil || ok {
			return true
		}
	}
	return false
}

// RedactPII replaces every PII match with placeholder.
func (e *PolicyEngine) RedactPII(content, placeholder string) (string, error) {
	out := content
	for i := range e.file.PersonalInfo.Patterns {
		var err error
		out, err = e.file.PersonalInfo.Patterns[i].ReplaceAll(out, placeholder)
		if err != nil {
			return "", err
		}
	}
	return out, nil
}

// ScanPII performs a line-by-line audit of content and reports every PII
// hit with its position. It backs the operator tooling, where line numbers
// matter; the check path uses PIIPatterns directly.
func (e *PolicyEngine) ScanPII(content string) ([]ScanFinding, error) {
	var findings []ScanFinding
	for lineNum, line := range strings.Split(content, "\n") {
		for i := range e.file.PersonalInfo.Patterns {
			pattern := &e.file.PersonalInfo.Patterns[i]
			matches, err := pattern.FindAll(line)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				findings = append(findings, ScanFinding{
					LineNumber:         lineNum + 1,
					Column:             m.Index + 1,
					MatchedContent:     strings.TrimSpace(m.Text),
					PatternId:          pattern.Id,
					PatternDescription: pattern.Description,
				})
			}
		}
	}
	return findings, nil
}
