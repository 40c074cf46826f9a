// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/MorningCoach/pkg/config"
	"github.com/AleutianAI/MorningCoach/pkg/ux"
	"github.com/AleutianAI/MorningCoach/services/orchestrator"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/handlers"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
)

const silenceMarker = "(silence)"

// captureSink keeps the finalized record of the simulated call.
type captureSink struct {
	mu      sync.Mutex
	session *summary.SessionRecord
	missed  *summary.MissedCallRecord
}

func (c *captureSink) AppendSession(_ context.Context, rec summary.SessionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &rec
	return nil
}

func (c *captureSink) AppendMissedCall(_ context.Context, rec summary.MissedCallRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missed = &rec
	return nil
}

// simulationReport is the printed outcome of a simulated call.
type simulationReport struct {
	SessionType string           `yaml:"session_type"`
	EndReason   string           `yaml:"end_reason,omitempty"`
	Summary     summary.Summary  `yaml:"summary"`
	Insights    summary.Insights `yaml:"insights"`
	Decisions   []string         `yaml:"decisions,omitempty"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	lines, err := parseTranscript(f)
	if err != nil {
		return err
	}

	sink := &captureSink{}
	svc, err := orchestrator.New(simulationConfig(appConfig), &orchestrator.Options{
		DisableLLM: simulateOffline,
		Sinks:      []summary.Sink{sink},
		Registry:   prometheus.NewRegistry(),
	})
	if err != nil {
		return err
	}
	return simulate(cmd.Context(), svc.Turns(), sink, simulateFrom, lines, cmd.OutOrStdout())
}

// simulationConfig turns off everything that would persist or listen.
// Calendar and task sources stay on so the opener sees the real day.
func simulationConfig(cfg config.Config) config.Config {
	cfg.Server.GinMode = gin.TestMode
	cfg.Storage.BadgerPath = ""
	cfg.Storage.WeaviateURL = ""
	cfg.Storage.Influx = config.InfluxConfig{}
	cfg.Notion.CheckInDatabaseID = ""
	cfg.Telemetry.TracingEnabled = false
	cfg.Telemetry.MetricExporter = "none"
	cfg.Sweeper.Enabled = false
	return cfg
}

// parseTranscript reads one caller utterance per line. Blank lines and the
// silence marker become empty utterances; # comments are dropped.
func parseTranscript(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "#"):
			continue
		case strings.EqualFold(line, silenceMarker):
			line = ""
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return lines, nil
}

// simulate plays lines as one call and writes the dialogue and the
// finalized record to out. The dialogue is styled when out is a terminal.
func simulate(ctx context.Context, turns *handlers.TurnHandler, sink *captureSink, from string, lines []string, out io.Writer) error {
	callID := "SIM-" + uuid.NewString()
	p := ux.NewPrinter(out)

	resp := turns.StartCall(ctx, handlers.CallEvent{
		CallID:    callID,
		From:      from,
		Direction: handlers.DirectionOutbound,
	})
	p.Coach(resp.Say)

	for _, line := range lines {
		if resp.Hangup {
			break
		}
		if line == "" {
			p.Caller(silenceMarker)
		} else {
			p.Caller(line)
		}
		resp = turns.HandleSpeech(ctx, handlers.SpeechEvent{
			CallID:     callID,
			From:       from,
			Text:       line,
			Confidence: 1,
		})
		if resp.Say != "" {
			p.Coach(resp.Say)
		}
	}
	if !resp.Hangup {
		p.Status("(caller hung up)")
		turns.HandleStatus(ctx, handlers.StatusEvent{CallID: callID, Status: "completed"})
	}

	if err := turns.Drain(ctx); err != nil {
		return fmt.Errorf("wait for finalization: %w", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	p.Rule()
	switch {
	case sink.session != nil:
		rec := sink.session
		report := simulationReport{
			SessionType: string(rec.SessionType),
			EndReason:   rec.EndReason,
			Summary:     rec.Summary,
			Insights:    rec.Insights,
		}
		for _, d := range rec.Decisions {
			report.Decisions = append(report.Decisions, d.Text)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case sink.missed != nil:
		p.Status("missed call: " + sink.missed.Reason)
		return nil
	default:
		return fmt.Errorf("call %s produced no record", callID)
	}
}
