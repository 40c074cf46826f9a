// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package responder

import (
	"regexp"
	"strings"
)

// HardReplyLimit caps any spoken reply regardless of persona.
const HardReplyLimit = 400

var (
	speakerLabelPattern = regexp.MustCompile(`(?i)^\s*(coach|assistant|ai)\s*:\s*`)
	markdownPattern     = regexp.MustCompile("[*_#`>~|]+")
	bulletPattern       = regexp.MustCompile(`(?m)^\s*(?:[-•]|\d+[.)])\s+`)
)

// Sanitize makes model output safe to hand to a TTS engine.
//
// Description:
//
//	Strips speaker labels, markdown, bullets and wrapping quotes, folds
//	newlines into spaces and collapses whitespace. Text longer than
//	maxChars (or HardReplyLimit, whichever is smaller) is cut at the last
//	sentence end that fits, or at the last word boundary with a period
//	appended.
//
// Inputs:
//
//	text - Raw model output.
//	maxChars - Persona limit. Zero or negative uses HardReplyLimit.
//
// Outputs:
//
//	string - Cleaned text. May be empty.
func Sanitize(text string, maxChars int) string {
	if maxChars <= 0 || maxChars > HardReplyLimit {
		maxChars = HardReplyLimit
	}
	s := bulletPattern.ReplaceAllString(text, "")
	s = markdownPattern.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = speakerLabelPattern.ReplaceAllString(s, "")
	s = trimQuotes(s)

	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	cut := string(runes[:maxChars])
	if i := strings.LastIndexAny(cut, ".?!"); i >= maxChars/2 {
		return cut[:i+1]
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return strings.TrimRight(cut[:i], ",;:") + "."
	}
	return cut
}

func trimQuotes(s string) string {
	for len(s) >= 2 {
		r := []rune(s)
		first, last := r[0], r[len(r)-1]
		if (first == '"' && last == '"') || (first == '“' && last == '”') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(string(r[1 : len(r)-1]))
			continue
		}
		break
	}
	return s
}
