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
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Webhook Request Types
// =============================================================================

// VoiceRequest is the form posted when a call connects.
type VoiceRequest struct {
	CallSid    string `form:"CallSid" binding:"required,max=64"`
	From       string `form:"From" binding:"max=32"`
	AnsweredBy string `form:"AnsweredBy" binding:"max=32"`
	Direction  string `form:"Direction" binding:"max=32"`
}

// GatherRequest is the form posted with a speech recognition result.
type GatherRequest struct {
	CallSid      string  `form:"CallSid" binding:"required,max=64"`
	From         string  `form:"From" binding:"max=32"`
	SpeechResult string  `form:"SpeechResult" binding:"max=4000"`
	Confidence   float64 `form:"Confidence" binding:"gte=0,lte=1"`
}

// StatusRequest is the form posted on call progress.
type StatusRequest struct {
	CallSid    string `form:"CallSid" binding:"required,max=64"`
	CallStatus string `form:"CallStatus" binding:"required,callstatus"`
	AnsweredBy string `form:"AnsweredBy" binding:"max=32"`
}

// =============================================================================
// Validation
// =============================================================================

// callStatuses are the call status values the provider reports.
var callStatuses = map[string]bool{
	"queued":      true,
	"initiated":   true,
	"ringing":     true,
	"answered":    true,
	"in-progress": true,
	"completed":   true,
	"busy":        true,
	"failed":      true,
	"no-answer":   true,
	"canceled":    true,
}

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags to gin's validator.
// Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			slog.Warn("gin validator engine is not go-playground/validator; custom tags unavailable")
			return
		}
		_ = v.RegisterValidation("callstatus", validateCallStatus)
	})
}

// validateCallStatus accepts only known call status values.
func validateCallStatus(fl validator.FieldLevel) bool {
	return callStatuses[fl.Field().String()]
}

// =============================================================================
// Webhook Handlers
// =============================================================================

// fallbackTwiML is served if rendering itself fails.
const fallbackTwiML = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" + `<Response><Hangup></Hangup></Response>`

// HandleVoice answers the call-connected webhook with the opener.
func HandleVoice(h *TurnHandler, gatherURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VoiceRequest
		if err := c.ShouldBind(&req); err != nil {
			slog.Warn("Invalid voice webhook", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid voice webhook"})
			return
		}
		direction := DirectionInbound
		if strings.HasPrefix(req.Direction, "outbound") {
			direction = DirectionOutbound
		}
		resp := h.StartCall(c.Request.Context(), CallEvent{
			CallID:     req.CallSid,
			From:       req.From,
			AnsweredBy: req.AnsweredBy,
			Direction:  direction,
		})
		writeTwiML(c, resp, h.Voice(), gatherURL)
	}
}

// HandleGather processes a speech result and answers with the next line.
func HandleGather(h *TurnHandler, gatherURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GatherRequest
		if err := c.ShouldBind(&req); err != nil {
			slog.Warn("Invalid gather webhook", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid gather webhook"})
			return
		}
		resp := h.HandleSpeech(c.Request.Context(), SpeechEvent{
			CallID:     req.CallSid,
			From:       req.From,
			Text:       req.SpeechResult,
			Confidence: req.Confidence,
		})
		writeTwiML(c, resp, h.Voice(), gatherURL)
	}
}

// HandleCallStatus processes a call status callback.
func HandleCallStatus(h *TurnHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StatusRequest
		if err := c.ShouldBind(&req); err != nil {
			slog.Warn("Invalid status webhook", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status webhook"})
			return
		}
		h.HandleStatus(c.Request.Context(), StatusEvent{
			CallID:     req.CallSid,
			Status:     req.CallStatus,
			AnsweredBy: req.AnsweredBy,
		})
		c.Status(http.StatusNoContent)
	}
}

func writeTwiML(c *gin.Context, resp Response, voice, gatherURL string) {
	body, err := RenderTwiML(resp, voice, gatherURL)
	if err != nil {
		slog.Error("Rendering TwiML failed", "error", err)
		body = []byte(fallbackTwiML)
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", body)
}
