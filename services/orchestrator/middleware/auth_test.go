// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/MorningCoach/pkg/secret"
	"github.com/AleutianAI/MorningCoach/services/integrations/twilio"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testAuthToken = "12345"
	testBaseURL   = "https://coach.example.com"
)

// signedRouter echoes the bound CallSid so tests can prove the form body
// survives signature checking.
func signedRouter(token *secret.Secret) *gin.Engine {
	router := gin.New()
	router.POST("/gather", TwilioSignature(token, testBaseURL+"/"), func(c *gin.Context) {
		c.String(http.StatusOK, c.PostForm("CallSid"))
	})
	return router
}

func postForm(router *gin.Engine, target string, form url.Values, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sig != "" {
		req.Header.Set(twilio.SignatureHeader, sig)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// TwilioSignature Tests
// =============================================================================

func TestTwilioSignature(t *testing.T) {
	form := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"add milk to my list"}}
	good := twilio.Signature([]byte(testAuthToken), testBaseURL+"/gather", form)
	router := signedRouter(secret.New(testAuthToken))

	t.Run("valid signature passes", func(t *testing.T) {
		w := postForm(router, "/gather", form, good)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "CA1", w.Body.String())
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		w := postForm(router, "/gather", form, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		tampered := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"cancel everything"}}
		w := postForm(router, "/gather", tampered, good)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("query string is signed", func(t *testing.T) {
		w := postForm(router, "/gather?attempt=2", form, good)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		withQuery := twilio.Signature([]byte(testAuthToken), testBaseURL+"/gather?attempt=2", form)
		w = postForm(router, "/gather?attempt=2", form, withQuery)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestTwilioSignature_DisabledWithoutToken(t *testing.T) {
	router := signedRouter(secret.New(""))
	w := postForm(router, "/gather", url.Values{"CallSid": {"CA1"}}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// BearerToken Tests
// =============================================================================

func TestBearerToken(t *testing.T) {
	router := gin.New()
	router.Use(BearerToken(secret.New("admin-token")))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer admin-token", http.StatusOK},
		{"lowercase scheme", "bearer admin-token", http.StatusOK},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"basic auth", "Basic admin-token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestBearerToken_DisabledWithoutToken(t *testing.T) {
	router := gin.New()
	router.Use(BearerToken(nil))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// extractBearerToken Tests
// =============================================================================

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid", "Bearer abc123", "abc123"},
		{"uppercase", "BEARER abc123", "abc123"},
		{"mixed case", "BeArEr abc123", "abc123"},
		{"missing", "", ""},
		{"no bearer prefix", "abc123", ""},
		{"basic auth", "Basic abc123", ""},
		{"empty bearer", "Bearer ", ""},
		{"only bearer", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractBearerToken(c))
		})
	}
}
