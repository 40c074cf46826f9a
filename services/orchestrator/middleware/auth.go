// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the coaching call service.
//
// Two schemes guard the two kinds of callers:
//
//	Telephony webhooks (/voice, /gather, /status)
//	   │
//	   └─► TwilioSignature: HMAC of public URL + sorted form params
//
//	Admin API (/v1/...)
//	   │
//	   └─► BearerToken: "Authorization: Bearer <token>"
//
// Both compare in constant time and answer failures with 401 before any
// handler runs. A nil or empty credential disables the check, which is how
// local development runs.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/MorningCoach/pkg/secret"
	"github.com/AleutianAI/MorningCoach/services/integrations/twilio"
)

// =============================================================================
// Webhook Signature
// =============================================================================

// TwilioSignature creates a middleware that verifies webhook signatures.
//
// # Description
//
// The provider signs each webhook with the account auth token over the URL
// it posted to. Behind a proxy that URL differs from the one the server
// sees, so the signed URL is rebuilt from publicBaseURL plus the request
// path and query.
//
// # Inputs
//
//   - authToken: Account auth token. Empty disables verification.
//   - publicBaseURL: Scheme and host the provider calls, such as
//     "https://coach.example.com". No trailing slash.
//
// # Outputs
//
//   - gin.HandlerFunc: Aborts with 401 on a missing or wrong signature.
//
// # Examples
//
//	router.POST("/gather", middleware.TwilioSignature(token, "https://coach.example.com"), handler)
//
// # Limitations
//
//   - Only form-encoded POST bodies are covered; JSON webhooks are not
//     signed this way.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func TwilioSignature(authToken *secret.Secret, publicBaseURL string) gin.HandlerFunc {
	if authToken.IsEmpty() {
		slog.Warn("Webhook signature verification disabled: no auth token configured")
		return func(c *gin.Context) { c.Next() }
	}
	base := strings.TrimRight(publicBaseURL, "/")

	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form body"})
			return
		}
		fullURL := base + c.Request.URL.RequestURI()
		sig := c.GetHeader(twilio.SignatureHeader)
		if !twilio.ValidSignature(authToken, fullURL, c.Request.PostForm, sig) {
			slog.Warn("Rejected webhook with bad signature", "path", c.Request.URL.Path, "has_signature", sig != "")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

// =============================================================================
// Admin Token
// =============================================================================

// BearerToken creates a middleware that requires a static API token.
//
// # Inputs
//
//   - token: Expected bearer token. Empty disables the check.
//
// # Outputs
//
//   - gin.HandlerFunc: Aborts with 401 when the token is missing or wrong.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.BearerToken(cfg.APIToken))
func BearerToken(token *secret.Secret) gin.HandlerFunc {
	if token.IsEmpty() {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		presented := extractBearerToken(c)
		ok := false
		if presented != "" {
			_ = token.Use(func(expected []byte) error {
				ok = subtle.ConstantTimeCompare(expected, []byte(presented)) == 1
				return nil
			})
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken extracts the token from the Authorization header.
//
// # Description
//
// Parses the Authorization header expecting format: "Bearer <token>"
// Returns empty string if header is missing or malformed.
// The "Bearer" prefix is case-insensitive per RFC 7235.
//
// # Examples
//
//	// Header: "Authorization: bearer ABC123"
//	token := extractBearerToken(c)
//	// token == "ABC123"
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
