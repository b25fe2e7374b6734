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
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalizeText puts content in NFC so composed and decomposed accents hit
// the same lexicon entries.
func normalizeText(s string) string {
	return norm.NFC.String(s)
}

// foldText case-folds for caseless comparison. A Caser is stateful, so one
// is built per call.
func foldText(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// containsFold is a caseless substring test. folded must already be the
// folded haystack.
func containsFold(folded, needle string) bool {
	n := foldText(needle)
	return n != "" && strings.Contains(folded, n)
}

// splitSentences splits on . ! and ?, dropping empty fragments.
func splitSentences(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// averageWordsPerSentence returns the mean whitespace-delimited word count.
func averageWordsPerSentence(s string) float64 {
	sentences := splitSentences(s)
	if len(sentences) == 0 {
		return 0
	}
	total := 0
	for _, sentence := range sentences {
		total += len(strings.FieldsFunc(sentence, unicode.IsSpace))
	}
	return float64(total) / float64(len(sentences))
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
