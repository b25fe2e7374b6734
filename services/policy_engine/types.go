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
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// DefaultMatchTimeout bounds a single regex evaluation. A pattern that runs
// past it surfaces as an error rather than stalling the check path.
const DefaultMatchTimeout = 250 * time.Millisecond

var (
	// ErrPolicyInvalid is returned when a policy document fails schema
	// validation, decoding or pattern compilation.
	ErrPolicyInvalid = errors.New("invalid safety policy")

	// ErrUnknownLanguage is returned by strict table lookups.
	ErrUnknownLanguage = errors.New("unknown policy language")

	// ErrMatchTimeout is returned when a pattern runs past
	// DefaultMatchTimeout.
	ErrMatchTimeout = errors.New("pattern match timed out")

	// ErrMatchFailed is returned for any other pattern evaluation error.
	ErrMatchFailed = errors.New("pattern match failed")
)

// matchError replaces a regexp2 runtime error with a sentinel. regexp2
// quotes the whole input in its timeout message, so the original text is
// dropped and only the rule name survives.
func matchError(rule string, err error) error {
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "match timeout") {
		return fmt.Errorf("%s: %w", rule, ErrMatchTimeout)
	}
	return fmt.Errorf("%s: %w", rule, ErrMatchFailed)
}

// SensitivityKey names a sensitivity level inside the policy document.
type SensitivityKey string

const (
	SensitivityLow    SensitivityKey = "low"
	SensitivityMedium SensitivityKey = "medium"
	SensitivityHigh   SensitivityKey = "high"
)

func (s *SensitivityKey) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	incoming := SensitivityKey(raw)
	switch incoming {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		*s = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for sensitivity: %q", incoming)
	}
}

// PolicyFile is the decoded form of child_safety_policy.yaml.
type PolicyFile struct {
	Version         string                     `yaml:"version"`
	DefaultLanguage string                     `yaml:"default_language"`
	AgeGates        AgeGates                   `yaml:"age_gates"`
	Complexity      []ComplexityBand           `yaml:"complexity"`
	Emotional       EmotionalThresholds        `yaml:"emotional_thresholds"`
	PersonalInfo    PatternGroup               `yaml:"personal_info"`
	Languages       map[string]*LanguageTables `yaml:"languages"`
}

// AgeGates holds the ages at which topic checks switch on or escalate.
type AgeGates struct {
	ScaryTopicMaxAge     int `yaml:"scary_topic_max_age"`
	ScaryTopicHighMaxAge int `yaml:"scary_topic_high_max_age"`
	AdultTopicMaxAge     int `yaml:"adult_topic_max_age"`
	AdultTopicHighMaxAge int `yaml:"adult_topic_high_max_age"`
	ProfileAuditMaxAge   int `yaml:"profile_audit_max_age"`
}

// AgeBand is an inclusive age range.
type AgeBand struct {
	MinAge int `yaml:"min_age" json:"min_age"`
	MaxAge int `yaml:"max_age" json:"max_age"`
}

func (b AgeBand) Contains(age int) bool {
	return age >= b.MinAge && age <= b.MaxAge
}

func (b AgeBand) String() string {
	return fmt.Sprintf("%d-%d", b.MinAge, b.MaxAge)
}

type ComplexityBand struct {
	AgeBand             `yaml:",inline"`
	MaxWordsPerSentence float64 `yaml:"max_words_per_sentence"`
}

// AgeBandList is a list of strings (topics or response templates) for one
// age band.
type AgeBandList struct {
	AgeBand `yaml:",inline"`
	Items   []string `yaml:"items"`
}

// EmotionalThresholds configures the emotional-appropriateness checker.
// A sensitivity with no MaxNegativeWords entry has no negative-word ceiling.
type EmotionalThresholds struct {
	MaxNegativeWords map[SensitivityKey]int `yaml:"max_negative_words"`
	MaxExcitingWords int                    `yaml:"max_exciting_words"`
	ExcitingMaxAge   int                    `yaml:"exciting_max_age"`
}

// NegativeCeiling returns the negative-word ceiling for a sensitivity.
func (e EmotionalThresholds) NegativeCeiling(s SensitivityKey) (int, bool) {
	n, ok := e.MaxNegativeWords[s]
	return n, ok
}

// validate rejects ceilings that would let a higher sensitivity tolerate
// more negative words than a lower one. A missing entry is unbounded.
func (e EmotionalThresholds) validate() error {
	order := []SensitivityKey{SensitivityLow, SensitivityMedium, SensitivityHigh}
	prev, bounded := 0, false
	for _, key := range order {
		n, ok := e.MaxNegativeWords[key]
		if !ok {
			if bounded {
				return fmt.Errorf("sensitivity %s has no negative-word ceiling but a lower sensitivity does", key)
			}
			continue
		}
		if bounded && n > prev {
			return fmt.Errorf("sensitivity %s allows %d negative words, more than the %d of a lower sensitivity", key, n, prev)
		}
		prev, bounded = n, true
	}
	return nil
}

// =============================================================================
// Patterns
// =============================================================================

// Pattern is one named regular expression from the policy.
type Pattern struct {
	Id          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`

	compiled *regexp2.Regexp
}

// Match is a single regex hit. Index is a rune offset into the input.
type Match struct {
	PatternId string
	Text      string
	Index     int
}

func (p *Pattern) compile(opts regexp2.RegexOptions) error {
	re, err := regexp2.Compile(p.Regex, opts)
	if err != nil {
		return fmt.Errorf("failed to compile the regex %s (%s): %w", p.Id, p.Regex, err)
	}
	re.MatchTimeout = DefaultMatchTimeout
	p.compiled = re
	return nil
}

// Compiled reports whether the pattern is ready for matching.
func (p *Pattern) Compiled() bool {
	return p.compiled != nil
}

// FindAll returns every non-overlapping match in s.
func (p *Pattern) FindAll(s string) ([]Match, error) {
	if p.compiled == nil {
		return nil, fmt.Errorf("pattern %s used before compilation", p.Id)
	}
	var out []Match
	m, err := p.compiled.FindStringMatch(s)
	for m != nil && err == nil {
		out = append(out, Match{PatternId: p.Id, Text: m.String(), Index: m.Index})
		m, err = p.compiled.FindNextMatch(m)
	}
	if err != nil {
		return nil, matchError("pattern "+p.Id, err)
	}
	return out, nil
}

// MatchString reports whether s contains a match.
func (p *Pattern) MatchString(s string) (bool, error) {
	if p.compiled == nil {
		return false, fmt.Errorf("pattern %s used before compilation", p.Id)
	}
	ok, err := p.compiled.MatchString(s)
	return ok, matchError("pattern "+p.Id, err)
}

// ReplaceAll substitutes every match with the literal repl.
func (p *Pattern) ReplaceAll(s, repl string) (string, error) {
	if p.compiled == nil {
		return s, fmt.Errorf("pattern %s used before compilation", p.Id)
	}
	out, err := p.compiled.ReplaceFunc(s, func(regexp2.Match) string { return repl }, -1, -1)
	if err != nil {
		return "", matchError("pattern "+p.Id, err)
	}
	return out, nil
}

// PatternGroup is a list of patterns plus the subset of terms that escalate
// a match to high severity.
type PatternGroup struct {
	SevereTerms []string  `yaml:"severe_terms"`
	Patterns    []Pattern `yaml:"patterns"`

	severe map[string]struct{}
}

func (g *PatternGroup) compile(opts regexp2.RegexOptions) error {
	g.severe = make(map[string]struct{}, len(g.SevereTerms))
	for _, term := range g.SevereTerms {
		g.severe[fold(term)] = struct{}{}
	}
	for i := range g.Patterns {
		if err := g.Patterns[i].compile(opts); err != nil {
			return err
		}
	}
	return nil
}

// IsSevere reports whether a matched term is in the severe subset.
func (g *PatternGroup) IsSevere(term string) bool {
	_, ok := g.severe[fold(term)]
	return ok
}

// FindAll runs every pattern in declaration order.
func (g *PatternGroup) FindAll(s string) ([]Match, error) {
	var out []Match
	for i := range g.Patterns {
		matches, err := g.Patterns[i].FindAll(s)
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

// =============================================================================
// Language tables
// =============================================================================

// Replacement is a compiled entry of the positive-replacement map.
type Replacement struct {
	Term        string
	Replacement string

	re *regexp2.Regexp
}

// Apply replaces every whole-word, case-insensitive occurrence of the term.
func (r Replacement) Apply(s string) (string, error) {
	out, err := r.re.ReplaceFunc(s, func(regexp2.Match) string { return r.Replacement }, -1, -1)
	if err != nil {
		return "", matchError("replacement "+r.Term, err)
	}
	return out, nil
}

// LanguageTables holds every lexicon for one language. It is immutable once
// compiled and shared by all concurrent checks.
type LanguageTables struct {
	Code                 string            `yaml:"-"`
	PIIPlaceholder       string            `yaml:"pii_placeholder"`
	Inappropriate        PatternGroup      `yaml:"inappropriate"`
	Violence             PatternGroup      `yaml:"violence"`
	ScaryTopics          []string          `yaml:"scary_topics"`
	AdultTopics          []string          `yaml:"adult_topics"`
	Replacements         map[string]string `yaml:"replacements"`
	NegativeWords        []string          `yaml:"negative_words"`
	ExcitingWords        []string          `yaml:"exciting_words"`
	RecommendedBlocklist []string          `yaml:"recommended_blocklist"`
	SafeTopics           []AgeBandList     `yaml:"safe_topics"`
	FallbackTopics       []string          `yaml:"fallback_topics"`
	SafeResponses        []AgeBandList     `yaml:"safe_responses"`
	FallbackResponse     string            `yaml:"fallback_response"`

	negative     *regexp2.Regexp
	exciting     *regexp2.Regexp
	replacements []Replacement
	byTerm       map[string]int
}

func (t *LanguageTables) compile(code string) error {
	t.Code = code
	if err := t.Inappropriate.compile(regexp2.IgnoreCase); err != nil {
		return fmt.Errorf("language %s inappropriate: %w", code, err)
	}
	if err := t.Violence.compile(regexp2.IgnoreCase); err != nil {
		return fmt.Errorf("language %s violence: %w", code, err)
	}

	var err error
	if t.negative, err = wordSetRegex(t.NegativeWords, `\b`); err != nil {
		return fmt.Errorf("language %s negative words: %w", code, err)
	}
	if t.exciting, err = wordSetRegex(t.ExcitingWords, `!`); err != nil {
		return fmt.Errorf("language %s exciting words: %w", code, err)
	}

	terms := make([]string, 0, len(t.Replacements))
	for term := range t.Replacements {
		terms = append(terms, term)
	}
	// Longer terms first so "golpearlo" wins over "golpear".
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
	t.replacements = make([]Replacement, 0, len(terms))
	t.byTerm = make(map[string]int, len(terms))
	for _, term := range terms {
		re, err := regexp2.Compile(`\b`+regexp2.Escape(term)+`\b`, regexp2.IgnoreCase)
		if err != nil {
			return fmt.Errorf("language %s replacement %q: %w", code, term, err)
		}
		re.MatchTimeout = DefaultMatchTimeout
		t.byTerm[fold(term)] = len(t.replacements)
		t.replacements = append(t.replacements, Replacement{Term: term, Replacement: t.Replacements[term], re: re})
	}
	return nil
}

// wordSetRegex builds \b(?:w1|w2|...)<suffix>, case-insensitive.
func wordSetRegex(words []string, suffix string) (*regexp2.Regexp, error) {
	if len(words) == 0 {
		return nil, nil
	}
	escaped := make([]string, len(words))
	for i, w := range words {
		escaped[i] = regexp2.Escape(w)
	}
	re, err := regexp2.Compile(`\b(?:`+strings.Join(escaped, "|")+`)`+suffix, regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = DefaultMatchTimeout
	return re, nil
}

func countMatches(re *regexp2.Regexp, s string) (int, error) {
	if re == nil {
		return 0, nil
	}
	n := 0
	m, err := re.FindStringMatch(s)
	for m != nil && err == nil {
		n++
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		return 0, matchError("word set", err)
	}
	return n, nil
}

// CountNegative counts whole-word negative-word occurrences.
func (t *LanguageTables) CountNegative(s string) (int, error) {
	return countMatches(t.negative, s)
}

// CountExciting counts excitement words immediately followed by "!".
func (t *LanguageTables) CountExciting(s string) (int, error) {
	return countMatches(t.exciting, s)
}

// ReplacementFor looks up a term case-insensitively.
func (t *LanguageTables) ReplacementFor(term string) (Replacement, bool) {
	i, ok := t.byTerm[fold(term)]
	if !ok {
		return Replacement{}, false
	}
	return t.replacements[i], true
}

// ReplacementRules returns the compiled replacement map, longest term first.
func (t *LanguageTables) ReplacementRules() []Replacement {
	return t.replacements
}

// SafeTopicsFor returns the safe-topic list for the first band containing age.
func (t *LanguageTables) SafeTopicsFor(age int) ([]string, bool) {
	return firstBand(t.SafeTopics, age)
}

// SafeResponsesFor returns the response templates for the first band containing age.
func (t *LanguageTables) SafeResponsesFor(age int) ([]string, bool) {
	return firstBand(t.SafeResponses, age)
}

func firstBand(lists []AgeBandList, age int) ([]string, bool) {
	for _, l := range lists {
		if l.Contains(age) {
			return l.Items, true
		}
	}
	return nil, false
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// =============================================================================
// Compilation
// =============================================================================

// CompileRegexes compiles every pattern in the file. PII patterns are
// compiled case-sensitive; they carry inline (?i) where needed.
func (p *PolicyFile) CompileRegexes() error {
	if err := p.PersonalInfo.compile(regexp2.None); err != nil {
		return fmt.Errorf("personal info: %w", err)
	}
	for code, tables := range p.Languages {
		if tables == nil {
			return fmt.Errorf("language %s has no tables", code)
		}
		if err := tables.compile(code); err != nil {
			return err
		}
	}
	return nil
}

// SortBands orders age-banded lists by their lower bound so first-match
// lookups are deterministic regardless of document order.
func (p *PolicyFile) SortBands() {
	sort.SliceStable(p.Complexity, func(i, j int) bool {
		return p.Complexity[i].MinAge < p.Complexity[j].MinAge
	})
	for _, t := range p.Languages {
		for _, lists := range [][]AgeBandList{t.SafeTopics, t.SafeResponses} {
			sort.SliceStable(lists, func(i, j int) bool {
				return lists[i].MinAge < lists[j].MinAge
			})
		}
	}
}

// ScanFinding is a single PII hit located by line.
type ScanFinding struct {
	LineNumber         int    `json:"line_number"`
	Column             int    `json:"column"`
	MatchedContent     string `json:"matched_content"`
	PatternId          string `json:"pattern_id"`
	PatternDescription string `json:"pattern_description"`
}
