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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/MorningCoach/services/integrations/twilio"
)

// placeCallWait bounds how long a request waits on the outbound rate limit.
const placeCallWait = 5 * time.Second

// PlaceCallRequest asks the service to dial a number.
type PlaceCallRequest struct {
	To string `json:"to" binding:"required,e164"`
}

// HandlePlaceCall places an outbound coaching call.
//
// # Description
//
// Responds 202 with the call SID. The rate limiter answers 429 when no
// slot frees up within a few seconds. A nil dialer answers 503.
func HandlePlaceCall(dialer twilio.Dialer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if dialer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbound calling is not configured"})
			return
		}
		var req PlaceCallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be an E.164 phone number"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), placeCallWait)
		defer cancel()
		sid, err := dialer.PlaceCall(ctx, req.To)
		if err != nil {
			var apiErr *twilio.APIError
			switch {
			case errors.Is(err, twilio.ErrRateLimited):
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "outbound call rate limit reached"})
			case errors.Is(err, twilio.ErrInvalidNumber):
				c.JSON(http.StatusBadRequest, gin.H{"error": "to must be an E.164 phone number"})
			case errors.As(err, &apiErr):
				c.JSON(http.StatusBadGateway, gin.H{"error": "telephony provider rejected the call", "code": apiErr.Code})
			default:
				slog.Error("Placing outbound call failed", "error", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "failed to place call"})
			}
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"call_sid": sid})
	}
}
