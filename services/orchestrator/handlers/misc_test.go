// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for miscellaneous handlers

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/journal"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// =============================================================================
// HealthCheck Tests
// =============================================================================

func healthRouter(store *session.Store) *gin.Engine {
	router := gin.New()
	router.GET("/health", HealthCheck(store))
	return router
}

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router := healthRouter(session.NewStore())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
	assert.EqualValues(t, 0, response["live_calls"])
}

func TestHealthCheck_JSONContentType(t *testing.T) {
	router := healthRouter(session.NewStore())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	contentType := w.Header().Get("Content-Type")
	assert.Contains(t, contentType, "application/json")
}

func TestHealthCheck_IgnoresEvictedCalls(t *testing.T) {
	store := session.NewStore()
	_, _, _ = store.Open("CA1", "")
	_, _, _ = store.Open("CA2", "")
	store.Evict("CA1")
	router := healthRouter(store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.JSONEq(t, `{"status":"ok","live_calls":1}`, w.Body.String())
}

// =============================================================================
// Journal Backup Tests
// =============================================================================

type stubBackuper struct {
	res journal.BackupResult
	err error
}

func (s stubBackuper) Backup(context.Context) (journal.BackupResult, error) {
	return s.res, s.err
}

func backupRouter(b JournalBackuper) *gin.Engine {
	router := gin.New()
	router.POST("/v1/journal/backup", HandleJournalBackup(b))
	return router
}

func TestHandleJournalBackup(t *testing.T) {
	tests := []struct {
		name     string
		backuper stubBackuper
		wantCode int
		wantBody string
	}{
		{
			name:     "uploaded",
			backuper: stubBackuper{res: journal.BackupResult{Object: "journal-1.badger", Version: 7, Bytes: 512}},
			wantCode: http.StatusOK,
			wantBody: "journal-1.badger",
		},
		{
			name:     "already running",
			backuper: stubBackuper{err: journal.ErrBackupRunning},
			wantCode: http.StatusConflict,
			wantBody: "already running",
		},
		{
			name:     "upload failed",
			backuper: stubBackuper{err: errors.New("bucket gone")},
			wantCode: http.StatusBadGateway,
			wantBody: "journal backup failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/v1/journal/backup", nil)
			backupRouter(tt.backuper).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.NotContains(t, w.Body.String(), "bucket gone")
		})
	}
}
