// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

// Transcript is the ordered, append-only list of turns for one call.
//
// # Description
//
// Order is semantically meaningful: the end-of-call rules look at the most
// recent assistant turn and the loop detector looks at the last three.
// Transcript has no locking of its own; CallSession guards it.
//
// # Limitations
//
//   - Turns are never removed or rewritten once appended.
type Transcript struct {
	turns []Turn
}

// Append adds a turn to the end of the transcript.
func (t *Transcript) Append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Len returns the total number of turns, including system turns.
func (t Transcript) Len() int {
	return len(t.turns)
}

// DialogueLen returns the number of user and assistant turns.
//
// # Description
//
// This is the count the hard turn caps are measured against. System turns
// are never counted.
func (t Transcript) DialogueLen() int {
	n := 0
	for _, turn := range t.turns {
		if turn.Role != RoleSystem {
			n++
		}
	}
	return n
}

// All returns a copy of every turn in order.
func (t Transcript) All() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// LastN returns up to n of the most recent turns, oldest first.
func (t Transcript) LastN(n int) []Turn {
	if n <= 0 {
		return nil
	}
	start := len(t.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(t.turns)-start)
	copy(out, t.turns[start:])
	return out
}

// ByRole returns every turn spoken by role, oldest first.
func (t Transcript) ByRole(role Role) []Turn {
	var out []Turn
	for _, turn := range t.turns {
		if turn.Role == role {
			out = append(out, turn)
		}
	}
	return out
}

// LastByRole returns up to n of the most recent turns spoken by role,
// oldest first.
func (t Transcript) LastByRole(role Role, n int) []Turn {
	if n <= 0 {
		return nil
	}
	var rev []Turn
	for i := len(t.turns) - 1; i >= 0 && len(rev) < n; i-- {
		if t.turns[i].Role == role {
			rev = append(rev, t.turns[i])
		}
	}
	out := make([]Turn, len(rev))
	for i := range rev {
		out[len(rev)-1-i] = rev[i]
	}
	return out
}

// LastAssistant returns the most recent assistant turn, if any.
func (t Transcript) LastAssistant() (Turn, bool) {
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role == RoleAssistant {
			return t.turns[i], true
		}
	}
	return Turn{}, false
}

// UserCount returns the number of caller turns. Each caller turn is one
// exchange for phase tracking.
func (t Transcript) UserCount() int {
	n := 0
	for _, turn := range t.turns {
		if turn.Role == RoleUser {
			n++
		}
	}
	return n
}

// DialogueWindow returns up to n of the most recent user and assistant
// turns, oldest first. System turns are skipped.
func (t Transcript) DialogueWindow(n int) []Turn {
	if n <= 0 {
		return nil
	}
	var rev []Turn
	for i := len(t.turns) - 1; i >= 0 && len(rev) < n; i-- {
		if t.turns[i].Role != RoleSystem {
			rev = append(rev, t.turns[i])
		}
	}
	out := make([]Turn, len(rev))
	for i := range rev {
		out[len(rev)-1-i] = rev[i]
	}
	return out
}

// clone returns an independent copy of the transcript.
func (t Transcript) clone() Transcript {
	return Transcript{turns: t.All()}
}
