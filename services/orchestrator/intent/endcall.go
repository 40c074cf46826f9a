// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// EndReason names the rule that ended a call.
type EndReason string

const (
	EndNone             EndReason = ""
	EndClosingPhrase    EndReason = "closing_phrase"
	EndAssistantClosing EndReason = "assistant_closing"
	EndHardCap          EndReason = "hard_cap"
	EndCommitmentCap    EndReason = "commitment_cap"

	// The reasons below are not produced by DetectEndOfCall; the turn
	// handler and sweeper use them when a call ends outside the dialogue.
	EndSilence     EndReason = "silence"
	EndStatus      EndReason = "telephony_status"
	EndIdleTimeout EndReason = "idle_timeout"
	EndVoicemail   EndReason = "voicemail"
)

// EndDecision is the result of the end-of-call rules.
type EndDecision struct {
	End    bool
	Reason EndReason
}

// closingPhraseRules must match the whole normalized utterance.
var closingPhraseRules = []*regexp.Regexp{
	regexp.MustCompile(`^(no|nope|nothing else|that'?s it|that'?s all|i'?m done|i'?m good|all set|wrap up|wrap it up|finished|bye|goodbye|good bye)$`),
	regexp.MustCompile(`^(good|ok|okay|sounds good|alright|all right|perfect)( (bye|goodbye|thanks|thank you))?$`),
	regexp.MustCompile(`^(thanks|thank you|appreciate it)( (bye|goodbye))?$`),
}

// closingContainsRule may match anywhere in the normalized utterance.
var closingContainsRule = regexp.MustCompile(`\b(end (the )?call|hang up|gotta go|got to go|have to go|talk tomorrow|see you tomorrow)\b`)

// assistantClosingRule matches wrap-up language in the coach's last reply.
var assistantClosingRule = regexp.MustCompile(`\b(sounds good|you'?re all set|great plan)\b`)

// Normalize prepares an utterance for phrase matching.
//
// Description:
//
//	Lower-cases, folds curly apostrophes to straight ones, replaces every
//	other punctuation mark with a space and collapses whitespace. Speech
//	recognizers often append a period, so "That's it." and "that's it"
//	normalize identically.
//
// Inputs:
//
//	utterance - Raw speech result.
//
// Outputs:
//
//	string - Normalized text.
func Normalize(utterance string) string {
	s := strings.ToLower(utterance)
	s = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)
	s = strings.Map(func(r rune) rune {
		if r == '\'' {
			return r
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// IsClosingPhrase reports whether the caller's utterance signals the end of
// the conversation.
func IsClosingPhrase(utterance string) bool {
	norm := Normalize(utterance)
	if norm == "" {
		return false
	}
	for _, rule := range closingPhraseRules {
		if rule.MatchString(norm) {
			return true
		}
	}
	return closingContainsRule.MatchString(norm)
}

// DetectEndOfCall decides whether the call should end now.
//
// Description:
//
//	Runs before any other processing of a caller turn. The snapshot is
//	expected to already contain the caller's newest turn. Rules, in order:
//	  1. The utterance is a closing phrase.
//	  2. The coach's most recent reply used wrap-up language.
//	  3. Dialogue turns exceed HardTurnCap.
//	  4. A decision exists and dialogue turns exceed CommitmentTurnCap.
//
// Inputs:
//
//	snap - Session snapshot including the newest caller turn.
//	utterance - The caller's newest utterance.
//	cfg - Thresholds.
//
// Outputs:
//
//	EndDecision - End is true with the first matching reason.
func DetectEndOfCall(snap session.Snapshot, utterance string, cfg Config) EndDecision {
	cfg = applyDefaults(cfg)

	if IsClosingPhrase(utterance) {
		return EndDecision{End: true, Reason: EndClosingPhrase}
	}
	if last, ok := snap.Transcript.LastAssistant(); ok && last.Kind != session.KindOpener {
		if assistantClosingRule.MatchString(Normalize(last.Text)) {
			return EndDecision{End: true, Reason: EndAssistantClosing}
		}
	}
	turns := snap.Transcript.DialogueLen()
	if turns > cfg.HardTurnCap {
		return EndDecision{End: true, Reason: EndHardCap}
	}
	if snap.HasCommitments() && turns > cfg.CommitmentTurnCap {
		return EndDecision{End: true, Reason: EndCommitmentCap}
	}
	return EndDecision{}
}
