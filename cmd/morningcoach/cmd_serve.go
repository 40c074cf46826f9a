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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/MorningCoach/services/orchestrator"
)

// runServe starts the service and blocks until SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	slog.Info("Starting MorningCoach",
		"port", cfg.Server.Port,
		"persona", cfg.Persona.Name,
		"llm_backend", cfg.LLM.Backend,
		"outbound_calls", cfg.TwilioConfigured(),
		"tracing", cfg.Telemetry.TracingEnabled)

	svc, err := orchestrator.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("orchestrator error: %w", err)
	}
	slog.Info("MorningCoach stopped")
	return nil
}
