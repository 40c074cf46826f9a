// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/journal"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryReader reads finalized calls back from the journal.
type HistoryReader interface {
	RecentSessions(ctx context.Context, limit int) ([]summary.SessionRecord, error)
	RecentMissedCalls(ctx context.Context, limit int) ([]summary.MissedCallRecord, error)
	Turns(ctx context.Context, callID string) ([]journal.TurnLogRecord, error)
}

// ListSessions returns the live calls and their phases.
func ListSessions(store *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		live := store.Live()
		c.JSON(http.StatusOK, gin.H{"sessions": live, "count": len(live)})
	}
}

// GetSessionHistory returns recently finalized sessions and missed calls,
// newest first.
func GetSessionHistory(reader HistoryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxHistoryLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
				return
			}
			limit = n
		}

		ctx := c.Request.Context()
		sessions, err := reader.RecentSessions(ctx, limit)
		if err != nil {
			slog.Error("failed to read session history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session history"})
			return
		}
		missed, err := reader.RecentMissedCalls(ctx, limit)
		if err != nil {
			slog.Error("failed to read missed calls", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read missed calls"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions, "missed_calls": missed})
	}
}

// GetCallTurns returns the technical turn log of one call.
func GetCallTurns(reader HistoryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		callID := c.Param("callSid")
		turns, err := reader.Turns(c.Request.Context(), callID)
		if err != nil {
			slog.Error("failed to read turn log", "call_sid", callID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read turn log"})
			return
		}
		if len(turns) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no turns recorded for call"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"call_sid": callID, "turns": turns})
	}
}
