// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies caller utterances for the coaching conversation.
//
// Every classifier in this package is a pure function of a session.Snapshot
// and the caller's utterance. Rules are ordered (predicate, tag) tables and
// the first match wins, so precedence is visible in one place.
package intent

import (
	"context"
	"math/rand"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the thresholds used by the classifiers.
type Config struct {
	// HardTurnCap ends the call once dialogue turns exceed it.
	HardTurnCap int

	// CommitmentTurnCap ends the call once a decision exists and dialogue
	// turns exceed it.
	CommitmentTurnCap int

	// WrapUpExchanges moves the phase to wrap_up once caller exchanges
	// exceed it.
	WrapUpExchanges int

	// ExplorationExchanges keeps the phase in exploration while caller
	// exchanges are below it.
	ExplorationExchanges int

	// LoopWindow is how many recent assistant turns the loop detector reads.
	LoopWindow int

	// LoopThreshold is how many of those turns must repeat a theme.
	LoopThreshold int

	// LowEngagementChars is the average caller utterance length below which
	// a loop is broken by simplifying.
	LowEngagementChars int

	// DeepConversationTurns is the dialogue length above which a loop is
	// broken by forcing a decision.
	DeepConversationTurns int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		HardTurnCap:           16,
		CommitmentTurnCap:     8,
		WrapUpExchanges:       8,
		ExplorationExchanges:  3,
		LoopWindow:            3,
		LoopThreshold:         2,
		LowEngagementChars:    20,
		DeepConversationTurns: 12,
	}
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.HardTurnCap <= 0 {
		cfg.HardTurnCap = def.HardTurnCap
	}
	if cfg.CommitmentTurnCap <= 0 {
		cfg.CommitmentTurnCap = def.CommitmentTurnCap
	}
	if cfg.WrapUpExchanges <= 0 {
		cfg.WrapUpExchanges = def.WrapUpExchanges
	}
	if cfg.ExplorationExchanges <= 0 {
		cfg.ExplorationExchanges = def.ExplorationExchanges
	}
	if cfg.LoopWindow <= 0 {
		cfg.LoopWindow = def.LoopWindow
	}
	if cfg.LoopThreshold <= 0 {
		cfg.LoopThreshold = def.LoopThreshold
	}
	if cfg.LowEngagementChars <= 0 {
		cfg.LowEngagementChars = def.LowEngagementChars
	}
	if cfg.DeepConversationTurns <= 0 {
		cfg.DeepConversationTurns = def.DeepConversationTurns
	}
	return cfg
}

// Classifier bundles the classifiers with their thresholds and a tracer.
//
// Thread Safety: Safe for concurrent use. The random source is only read
// through a mutex-guarded wrapper.
type Classifier struct {
	cfg    Config
	rng    *lockedRand
	tracer trace.Tracer
}

// NewClassifier creates a Classifier.
//
// Description:
//
//	Zero-valued thresholds in cfg are replaced with DefaultConfig values.
//	The random source only chooses among fresh-angle loop breakers; tests
//	pass a seeded source to make that choice deterministic.
//
// Inputs:
//
//	cfg - Thresholds.
//	src - Random source. Nil uses a time-seeded source.
//
// Outputs:
//
//	*Classifier - Ready for use.
func NewClassifier(cfg Config, src rand.Source) *Classifier {
	return &Classifier{
		cfg:    applyDefaults(cfg),
		rng:    newLockedRand(src),
		tracer: otel.Tracer("intent"),
	}
}

// Config returns the effective thresholds.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Rand returns the classifier's concurrency-safe random source.
func (c *Classifier) Rand() Intner {
	return c.rng
}

// EndOfCall runs the end-of-call rules under a span.
func (c *Classifier) EndOfCall(ctx context.Context, snap session.Snapshot, utterance string) EndDecision {
	_, span := c.tracer.Start(ctx, "intent.Classifier.EndOfCall",
		trace.WithAttributes(attribute.Int("dialogue_turns", snap.Transcript.DialogueLen())))
	defer span.End()

	d := DetectEndOfCall(snap, utterance, c.cfg)
	span.SetAttributes(
		attribute.Bool("end", d.End),
		attribute.String("reason", string(d.Reason)),
	)
	return d
}

// Tool runs the tool-intent rules under a span.
func (c *Classifier) Tool(ctx context.Context, utterance string) (ToolIntent, bool) {
	_, span := c.tracer.Start(ctx, "intent.Classifier.Tool",
		trace.WithAttributes(attribute.Int("utterance_length", len(utterance))))
	defer span.End()

	ti, ok := ClassifyTool(utterance)
	span.SetAttributes(attribute.Bool("tool", ok))
	if ok {
		span.SetAttributes(attribute.String("action", string(ti.Action)))
	}
	return ti, ok
}

// Loop runs the loop detector under a span.
func (c *Classifier) Loop(ctx context.Context, snap session.Snapshot) (LoopBreak, bool) {
	_, span := c.tracer.Start(ctx, "intent.Classifier.Loop")
	defer span.End()

	lb, ok := DetectLoop(snap, c.cfg, c.rng)
	span.SetAttributes(attribute.Bool("loop", ok))
	if ok {
		span.SetAttributes(attribute.String("strategy", string(lb.Strategy)))
	}
	return lb, ok
}

// Phase computes the next phase.
func (c *Classifier) Phase(snap session.Snapshot, utterance string) session.Phase {
	return NextPhase(snap, utterance, c.cfg)
}

// Commitment reports whether the caller's utterance contains commitment
// language.
func (c *Classifier) Commitment(utterance string) bool {
	return IsCommitment(utterance)
}
