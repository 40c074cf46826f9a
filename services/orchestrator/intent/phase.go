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

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

var (
	priorityWords   = regexp.MustCompile(`(?i)\b(priorit\w*|most important|matters most|main (thing|focus|goal)|biggest|first thing|top (thing|task)|focus on)\b`)
	commitmentWords = regexp.MustCompile(`(?i)\b(will|going to|gonna|plan to|commit|promise|i'?ll|decided)\b`)
	doneWords       = regexp.MustCompile(`(?i)\b(done|ready|good to go|that'?s (it|all)|all set|sounds good|perfect|let'?s go)\b`)
)

// phaseRules map the caller's newest utterance to a phase.
// Order matters - first match wins.
var phaseRules = []struct {
	pattern *regexp.Regexp
	phase   session.Phase
}{
	{priorityWords, session.PhasePrioritization},
	{commitmentWords, session.PhaseCommitment},
	{doneWords, session.PhaseWrapUp},
}

// NextPhase computes the phase after a caller turn.
//
// Description:
//
//	Exchanges are counted as caller turns in the snapshot, which already
//	includes the newest utterance. Fewer than ExplorationExchanges keeps the
//	call in exploration. Otherwise the first matching phase rule wins, then
//	more than WrapUpExchanges forces wrap_up, and otherwise the current phase
//	is kept. An ended session stays ended.
//
// Inputs:
//
//	snap - Snapshot including the newest caller turn.
//	utterance - The newest caller utterance.
//	cfg - Thresholds.
//
// Outputs:
//
//	session.Phase - Never PhaseEnded unless snap was already ended.
func NextPhase(snap session.Snapshot, utterance string, cfg Config) session.Phase {
	cfg = applyDefaults(cfg)
	if snap.Phase.IsTerminal() {
		return snap.Phase
	}

	exchanges := snap.Transcript.UserCount()
	if exchanges < cfg.ExplorationExchanges {
		return session.PhaseExploration
	}
	text := foldQuotes(utterance)
	for _, rule := range phaseRules {
		if rule.pattern.MatchString(text) {
			return rule.phase
		}
	}
	if exchanges > cfg.WrapUpExchanges {
		return session.PhaseWrapUp
	}
	if snap.Phase == "" {
		return session.PhaseExploration
	}
	return snap.Phase
}
