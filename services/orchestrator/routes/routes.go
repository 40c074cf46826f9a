// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/MorningCoach/pkg/secret"
	"github.com/AleutianAI/MorningCoach/services/integrations/twilio"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/handlers"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/middleware"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// GatherPath is where speech results are posted back.
const GatherPath = "/gather"

// Deps are the handlers' collaborators. Turns and Store are required.
// History, Dialer, Backup and Live may be nil.
type Deps struct {
	Turns   *handlers.TurnHandler
	Store   *session.Store
	History handlers.HistoryReader
	Dialer  twilio.Dialer
	Backup  handlers.JournalBackuper
	Live    *handlers.LiveFeed
}

// Options controls authentication and metrics exposure.
type Options struct {
	// PublicURL is the externally visible base URL. It prefixes the Gather
	// action and is the URL signatures are computed over.
	PublicURL string

	// VerifySignatures enables X-Twilio-Signature checks on the webhooks.
	VerifySignatures bool
	TwilioAuthToken  *secret.Secret

	// AdminToken protects /v1 with a bearer token. Nil or empty leaves the
	// admin routes open.
	AdminToken *secret.Secret

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// SetupRoutes registers every route on router.
//
// # Routes
//
//	POST /voice                           call connected, returns the opener
//	POST /gather                          speech result, returns the next line
//	POST /status                          call status callback
//	POST /v1/calls                        place an outbound call
//	GET  /v1/sessions                     live calls
//	GET  /v1/sessions/live                websocket feed of turns and call ends
//	GET  /v1/sessions/history             finalized sessions and missed calls
//	GET  /v1/sessions/:callSid/turns      technical turn log of one call
//	POST /v1/journal/backup               copy the journal to Cloud Storage
//	GET  /health
//	GET  /metrics
//
// The history routes are only registered when a HistoryReader is given,
// the backup route only when a JournalBackuper is, the live feed only when
// a LiveFeed is.
func SetupRoutes(router *gin.Engine, deps Deps, opts Options) {
	handlers.RegisterValidators()

	gatherURL := strings.TrimRight(opts.PublicURL, "/") + GatherPath

	router.GET("/health", handlers.HealthCheck(deps.Store))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Telephony webhooks
	webhooks := router.Group("")
	if opts.VerifySignatures {
		webhooks.Use(middleware.TwilioSignature(opts.TwilioAuthToken, opts.PublicURL))
	}
	{
		webhooks.POST("/voice", handlers.HandleVoice(deps.Turns, gatherURL))
		webhooks.POST(GatherPath, handlers.HandleGather(deps.Turns, gatherURL))
		webhooks.POST("/status", handlers.HandleCallStatus(deps.Turns))
	}

	// API version 1 group
	v1 := router.Group("/v1", middleware.BearerToken(opts.AdminToken))
	{
		v1.POST("/calls", handlers.HandlePlaceCall(deps.Dialer))

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(deps.Store))
			if deps.Live != nil {
				sessions.GET("/live", handlers.HandleLiveFeed(deps.Live))
			}
			if deps.History != nil {
				sessions.GET("/history", handlers.GetSessionHistory(deps.History))
				sessions.GET("/:callSid/turns", handlers.GetCallTurns(deps.History))
			}
		}
		if deps.Backup != nil {
			v1.POST("/journal/backup", handlers.HandleJournalBackup(deps.Backup))
		}
	}
}
