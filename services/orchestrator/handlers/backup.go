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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/journal"
)

// JournalBackuper copies the journal somewhere durable.
type JournalBackuper interface {
	Backup(ctx context.Context) (journal.BackupResult, error)
}

// HandleJournalBackup runs one journal backup and reports where it went.
// A backup already in progress answers 409.
func HandleJournalBackup(b JournalBackuper) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := b.Backup(c.Request.Context())
		if errors.Is(err, journal.ErrBackupRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "a backup is already running"})
			return
		}
		if err != nil {
			slog.Error("Journal backup failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "journal backup failed"})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
