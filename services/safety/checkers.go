// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"fmt"

	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
)

// piiPreviewRunes is how much of a PII match is kept in DetectedContent.
const piiPreviewRunes = 10

// checkInput is what every checker sees. It is built once per check and
// shared read-only by the concurrently running checkers.
type checkInput struct {
	content string // NFC normalized
	folded  string // case folded content, for topic substring tests
	profile ChildSafetyProfile
	sctx    *SafetyContext
	policy  *policy_engine.PolicyEngine
	tables  *policy_engine.LanguageTables
}

// checker is one rule family. run must be a pure function of its input.
type checker struct {
	kind ViolationType
	run  func(in *checkInput) ([]Violation, error)
}

// defaultCheckers is the fixed execution and merge order.
func defaultCheckers() []checker {
	return []checker{
		{InappropriateContent, checkInappropriate},
		{ScaryTopic, checkScaryTopics},
		{Violence, checkViolence},
		{AdultTopic, checkAdultTopics},
		{PersonalInfo, checkPersonalInfo},
		{BlockedTopic, checkBlockedTopics},
		{LanguageComplexity, checkComplexity},
		{EmotionalInappropriate, checkEmotional},
	}
}

func checkInappropriate(in *checkInput) ([]Violation, error) {
	group := &in.tables.Inappropriate
	matches, err := group.FindAll(in.content)
	if err != nil {
		return nil, err
	}
	var out []Violation
	for _, m := range matches {
		sev := SeverityMedium
		if group.IsSevere(m.Text) {
			sev = SeverityHigh
		}
		out = append(out, Violation{
			Type:            InappropriateContent,
			Severity:        sev,
			Description:     fmt.Sprintf("inappropriate term %q", m.Text),
			DetectedContent: m.Text,
			Suggestion:      "use gentler, age-appropriate wording",
			Rule:            m.PatternId,
		})
	}
	return out, nil
}

func checkScaryTopics(in *checkInput) ([]Violation, error) {
	gates := in.policy.AgeGates()
	if in.profile.Age > gates.ScaryTopicMaxAge {
		return nil, nil
	}
	sev := SeverityMedium
	if in.profile.Age <= gates.ScaryTopicHighMaxAge {
		sev = SeverityHigh
	}
	var out []Violation
	for _, topic := range in.tables.ScaryTopics {
		if containsFold(in.folded, topic) {
			out = append(out, Violation{
				Type:            ScaryTopic,
				Severity:        sev,
				Description:     fmt.Sprintf("topic %q may frighten a %d year old", topic, in.profile.Age),
				DetectedContent: topic,
				Suggestion:      "steer toward a calm, familiar topic",
				Rule:            "scary_topic",
			})
		}
	}
	return out, nil
}

func checkViolence(in *checkInput) ([]Violation, error) {
	matches, err := in.tables.Violence.FindAll(in.content)
	if err != nil {
		return nil, err
	}
	var out []Violation
	for _, m := range matches {
		out = append(out, Violation{
			Type:            Violence,
			Severity:        SeverityHigh,
			Description:     fmt.Sprintf("violent term %q", m.Text),
			DetectedContent: m.Text,
			Suggestion:      "describe the situation without violence",
			Rule:            m.PatternId,
		})
	}
	return out, nil
}

func checkAdultTopics(in *checkInput) ([]Violation, error) {
	gates := in.policy.AgeGates()
	if in.profile.Age > gates.AdultTopicMaxAge {
		return nil, nil
	}
	sev := SeverityMedium
	if in.profile.Age <= gates.AdultTopicHighMaxAge {
		sev = SeverityHigh
	}
	var out []Violation
	for _, topic := range in.tables.AdultTopics {
		if containsFold(in.folded, topic) {
			out = append(out, Violation{
				Type:            AdultTopic,
				Severity:        sev,
				Description:     fmt.Sprintf("adult topic %q", topic),
				DetectedContent: topic,
				Suggestion:      "leave this topic to a trusted adult",
				Rule:            "adult_topic",
			})
		}
	}
	return out, nil
}

func checkPersonalInfo(in *checkInput) ([]Violation, error) {
	patterns := in.policy.PIIPatterns().Patterns
	var out []Violation
	for i := range patterns {
		matches, err := patterns[i].FindAll(in.content)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			out = append(out, Violation{
				Type:            PersonalInfo,
				Severity:        SeverityCritical,
				Description:     "personal information: " + patterns[i].Description,
				DetectedContent: piiPreview(m.Text),
				Suggestion:      "never share personal details",
				Rule:            m.PatternId,
			})
		}
	}
	return out, nil
}

func piiPreview(s string) string {
	r := []rune(s)
	if len(r) > piiPreviewRunes {
		r = r[:piiPreviewRunes]
	}
	return string(r) + "..."
}

func checkBlockedTopics(in *checkInput) ([]Violation, error) {
	var out []Violation
	blocked := make(map[string]struct{}, len(in.profile.BlockedTopics))
	for _, topic := range in.profile.BlockedTopics {
		blocked[foldText(topic)] = struct{}{}
		if containsFold(in.folded, topic) {
			out = append(out, Violation{
				Type:            BlockedTopic,
				Severity:        SeverityHigh,
				Description:     fmt.Sprintf("topic %q is blocked for this child", topic),
				DetectedContent: topic,
				Suggestion:      "switch to an alternative topic",
				Rule:            "profile.blocked_topics",
			})
		}
	}
	for _, topic := range in.profile.SensitiveTopics {
		if _, dup := blocked[foldText(topic)]; dup {
			continue
		}
		if containsFold(in.folded, topic) {
			out = append(out, Violation{
				Type:            BlockedTopic,
				Severity:        SeverityHigh,
				Description:     fmt.Sprintf("topic %q is sensitive for this child", topic),
				DetectedContent: topic,
				Suggestion:      "approach gently or switch topic",
				Rule:            "profile.sensitive_topics",
			})
		}
	}
	return out, nil
}

func checkComplexity(in *checkInput) ([]Violation, error) {
	band, ok := in.policy.ComplexityCeiling(in.profile.Age)
	if !ok {
		return nil, nil
	}
	avg := averageWordsPerSentence(in.content)
	if avg <= band.MaxWordsPerSentence {
		return nil, nil
	}
	return []Violation{{
		Type:            LanguageComplexity,
		Severity:        SeverityMedium,
		Description:     fmt.Sprintf("sentences average %.1f words, limit for ages %s is %.0f", avg, band.String(), band.MaxWordsPerSentence),
		DetectedContent: fmt.Sprintf("%.1f words per sentence", avg),
		Suggestion:      "use shorter sentences",
		Rule:            "complexity." + band.String(),
	}}, nil
}

func checkEmotional(in *checkInput) ([]Violation, error) {
	thresholds := in.policy.Emotional()
	var out []Violation

	negative, err := in.tables.CountNegative(in.content)
	if err != nil {
		return nil, err
	}
	if ceiling, ok := thresholds.NegativeCeiling(in.profile.Sensitivity.key()); ok && negative > ceiling {
		out = append(out, Violation{
			Type:            EmotionalInappropriate,
			Severity:        SeverityMedium,
			Description:     fmt.Sprintf("%d negative words for a %s sensitivity child", negative, in.profile.Sensitivity),
			DetectedContent: fmt.Sprintf("%d negative words", negative),
			Suggestion:      "balance with positive, reassuring language",
			Rule:            "emotional.negative",
		})
	}

	if in.profile.Age <= thresholds.ExcitingMaxAge {
		exciting, err := in.tables.CountExciting(in.content)
		if err != nil {
			return nil, err
		}
		if exciting > thresholds.MaxExcitingWords {
			out = append(out, Violation{
				Type:            EmotionalInappropriate,
				Severity:        SeverityLow,
				Description:     fmt.Sprintf("%d excited exclamations may overstimulate a young child", exciting),
				DetectedContent: fmt.Sprintf("%d exclamations", exciting),
				Suggestion:      "use a calmer tone",
				Rule:            "emotional.exciting",
			})
		}
	}
	return out, nil
}

func (s Sensitivity) key() policy_engine.SensitivityKey {
	switch s {
	case SensitivityLow:
		return policy_engine.SensitivityLow
	case SensitivityHigh:
		return policy_engine.SensitivityHigh
	default:
		return policy_engine.SensitivityMedium
	}
}
