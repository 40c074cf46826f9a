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
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// LoopStrategy names how a detected loop is broken.
type LoopStrategy string

const (
	StrategySimplify      LoopStrategy = "simplify"
	StrategyForceDecision LoopStrategy = "force_decision"
	StrategyFreshAngle    LoopStrategy = "fresh_angle"
)

// LoopBreak is the fixed utterance used to get a stuck conversation moving.
type LoopBreak struct {
	Strategy LoopStrategy
	Text     string
}

// loopThemePattern marks coach turns that circle the same theme.
var loopThemePattern = regexp.MustCompile(`(?i)priorit|important|focus`)

// None of these may contain a loopThemePattern word.
const (
	simplifyText      = "Let's keep it simple. What's one thing you'll get done today?"
	forceDecisionText = "Time to choose. Pick one task and tell me when you'll start."
)

var freshAngleTexts = []string{
	"Different angle. What would make today a win?",
	"Forget the list for a second. What's been nagging at you?",
	"Picture tonight. What do you want to have finished?",
	"Which task would you regret skipping?",
}

// Intner is the slice of *rand.Rand the loop detector needs.
type Intner interface {
	Intn(n int) int
}

// DetectLoop reports whether the coach is repeating itself.
//
// Description:
//
//	Reads the last LoopWindow assistant turns, stopping early at a previous
//	loop break so that one break is not immediately followed by another.
//	When at least LoopThreshold of them mention priorities, importance or
//	focus, the conversation is looping. The strategy depends on how the
//	caller is engaging:
//	  - average caller utterance under LowEngagementChars: simplify
//	  - more than DeepConversationTurns dialogue turns: force a decision
//	  - otherwise: a randomly chosen fresh angle
//
// Inputs:
//
//	snap - Snapshot of the session.
//	cfg - Thresholds.
//	rng - Chooses the fresh angle. Nil always picks the first one.
//
// Outputs:
//
//	LoopBreak - The strategy and its utterance.
//	bool - True when a loop was detected.
func DetectLoop(snap session.Snapshot, cfg Config, rng Intner) (LoopBreak, bool) {
	cfg = applyDefaults(cfg)

	recent := snap.Transcript.LastByRole(session.RoleAssistant, cfg.LoopWindow)
	hits := 0
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Kind == session.KindLoopBreak {
			break
		}
		if loopThemePattern.MatchString(recent[i].Text) {
			hits++
		}
	}
	if hits < cfg.LoopThreshold {
		return LoopBreak{}, false
	}

	if averageUserChars(snap) < float64(cfg.LowEngagementChars) {
		return LoopBreak{Strategy: StrategySimplify, Text: simplifyText}, true
	}
	if snap.Transcript.DialogueLen() > cfg.DeepConversationTurns {
		return LoopBreak{Strategy: StrategyForceDecision, Text: forceDecisionText}, true
	}
	idx := 0
	if rng != nil {
		idx = rng.Intn(len(freshAngleTexts))
	}
	return LoopBreak{Strategy: StrategyFreshAngle, Text: freshAngleTexts[idx]}, true
}

// IsLoopBreakText reports whether text is one of the fixed loop breakers.
func IsLoopBreakText(text string) bool {
	if text == simplifyText || text == forceDecisionText {
		return true
	}
	for _, t := range freshAngleTexts {
		if text == t {
			return true
		}
	}
	return false
}

func averageUserChars(snap session.Snapshot) float64 {
	users := snap.Transcript.ByRole(session.RoleUser)
	if len(users) == 0 {
		return 0
	}
	total := 0
	for _, u := range users {
		total += len([]rune(u.Text))
	}
	return float64(total) / float64(len(users))
}

// lockedRand makes a *rand.Rand safe for concurrent Intn calls.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(src rand.Source) *lockedRand {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &lockedRand{r: rand.New(src)}
}

// Intn implements Intner.
func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
