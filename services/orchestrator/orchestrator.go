// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator wires the MorningCoach service together.
//
// It builds every component from a config.Config: the LLM backend, the
// persona and reply generator, the day-plan sources, the tool backends,
// the journals, the outbound dialer, the turn handler, the idle sweeper,
// tracing, metrics and the HTTP router. Optional integrations whose
// credentials are absent are skipped with an info log; the call flow
// degrades to fallback lines and "not configured" tool results.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/MorningCoach/pkg/config"
	"github.com/AleutianAI/MorningCoach/pkg/secret"
	"github.com/AleutianAI/MorningCoach/services/integrations/calendar"
	"github.com/AleutianAI/MorningCoach/services/integrations/dayplan"
	"github.com/AleutianAI/MorningCoach/services/integrations/gcs"
	"github.com/AleutianAI/MorningCoach/services/integrations/habitica"
	"github.com/AleutianAI/MorningCoach/services/integrations/notion"
	"github.com/AleutianAI/MorningCoach/services/integrations/twilio"
	"github.com/AleutianAI/MorningCoach/services/llm"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/briefing"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/handlers"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/journal"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/observability"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/responder"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/routes"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/telemetry"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/ttl"
)

// errExtractionFallback marks a structured summary that fell back to the
// heuristic, for the LLM error counter.
var errExtractionFallback = errors.New("structured extraction fell back to heuristic")

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the orchestrator lifecycle.
//
// # Thread Safety
//
// Run blocks and should be called once per instance. Router and Turns are
// safe to call at any time after New returns.
type Service interface {
	// Run serves HTTP and runs the idle sweeper until ctx is cancelled or
	// the listener fails, then shuts down gracefully: stops accepting
	// requests, stops the sweeper, waits for pending finalizations and
	// closes the journals.
	Run(ctx context.Context) error

	// Router returns the configured Gin engine, for tests.
	Router() *gin.Engine

	// Turns returns the turn handler, for the CLI and tests.
	Turns() *handlers.TurnHandler
}

// Options injects collaborators in place of the ones built from config.
// Every field is optional.
type Options struct {
	// LLMClient replaces the configured backend.
	LLMClient llm.LLMClient

	// DisableLLM runs without a backend: scripted replies and heuristic
	// summaries only. Ignored when LLMClient is set.
	DisableLLM bool

	// Dialer replaces the Twilio REST client.
	Dialer twilio.Dialer

	// DayPlans replaces the calendar and task sources.
	DayPlans handlers.DayPlanProvider

	// Sinks are added to the journal fanout.
	Sinks []summary.Sink

	// BackupWriter replaces the Cloud Storage bucket as the destination of
	// journal backups. Needs the Badger journal.
	BackupWriter journal.ObjectWriter

	// Registry receives the metrics. Default: a fresh registry with Go
	// and process collectors.
	Registry *prometheus.Registry

	// Clock replaces time.Now in the turn handler and finalizer.
	Clock func() time.Time
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Fields
//
//   - journals: Every sink, closed on shutdown.
//   - history: The Badger journal when configured, else nil.
//   - telemetryShutdown: Flushes the trace and metric exporters.
type service struct {
	config config.Config
	opts   Options

	registry  *prometheus.Registry
	metrics   *observability.CallMetrics
	llmClient llm.LLMClient
	store     *session.Store
	turns     *handlers.TurnHandler
	journals  *journal.Fanout
	history   handlers.HistoryReader
	dialer    twilio.Dialer
	notion    *notion.Client
	sweeper   ttl.Scheduler
	personas  *responder.PersonaWatcher
	backup    *journal.Backuper
	bucket    *gcs.Client
	live      *handlers.LiveFeed
	router    *gin.Engine

	telemetryShutdown func(context.Context) error
}

// =============================================================================
// Constructor
// =============================================================================

// New creates the orchestrator Service.
//
// # Description
//
// New initializes all components in dependency order:
//  1. Prometheus metrics
//  2. OpenTelemetry tracing and metrics
//  3. LLM client
//  4. Journals: Badger, Weaviate, InfluxDB, Notion check-ins
//  5. Tool backends and day-plan sources
//  6. Outbound dialer
//  7. Turn handler and idle sweeper
//  8. HTTP router
//
// A failing optional integration is logged and skipped. The LLM backend,
// persona and Badger journal are required when configured.
//
// # Inputs
//
//   - cfg: Validated configuration.
//   - opts: Injected collaborators. May be nil.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if a required component fails to initialize.
func New(cfg config.Config, opts *Options) (Service, error) {
	s := &service{config: cfg}
	if opts != nil {
		s.opts = *opts
	}

	s.initMetrics()
	if err := s.initTelemetry(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.notion = s.notionClient()

	if err := s.initLLMClient(); err != nil {
		s.cleanup(context.Background())
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if err := s.initJournals(); err != nil {
		s.cleanup(context.Background())
		return nil, fmt.Errorf("failed to initialize journals: %w", err)
	}

	if err := s.initTurnHandler(); err != nil {
		s.cleanup(context.Background())
		return nil, fmt.Errorf("failed to initialize turn handler: %w", err)
	}

	s.initDialer()
	s.initSweeper()
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run implements Service.
func (s *service) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.sweeper != nil {
		if err := s.sweeper.Start(ctx); err != nil {
			s.cleanup(context.Background())
			return fmt.Errorf("failed to start idle sweeper: %w", err)
		}
	}

	if s.personas != nil {
		if err := s.personas.Start(ctx); err != nil {
			slog.Warn("Persona reload disabled", "error", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting orchestrator server", "port", s.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown requested")
	case err := <-serveErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}
	s.cleanup(shutdownCtx)
	return runErr
}

// Router implements Service.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Turns implements Service.
func (s *service) Turns() *handlers.TurnHandler {
	return s.turns
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

func (s *service) initMetrics() {
	s.registry = s.opts.Registry
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	s.metrics = observability.NewCallMetrics(s.registry)
}

// initTelemetry installs the OpenTelemetry providers. Bridged metrics go
// into the service registry.
func (s *service) initTelemetry() error {
	tc := s.config.Telemetry
	traces := tc.TraceExporter
	if !tc.TracingEnabled {
		traces = telemetry.ExporterNone
	}
	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    tc.ServiceName,
		TraceExporter:  traces,
		MetricExporter: tc.MetricExporter,
		OTLPEndpoint:   tc.OTelEndpoint,
		Registerer:     s.registry,
	})
	if err != nil {
		return err
	}
	s.telemetryShutdown = shutdown
	return nil
}

// initLLMClient creates the configured backend unless one was injected.
func (s *service) initLLMClient() error {
	if s.opts.LLMClient != nil {
		s.llmClient = s.opts.LLMClient
		return nil
	}
	if s.opts.DisableLLM {
		slog.Info("LLM disabled, using scripted replies and heuristic summaries")
		return nil
	}
	client, err := llm.New(llm.Config{
		Backend: llm.Backend(s.config.LLM.Backend),
		Model:   s.config.LLM.Model,
		BaseURL: s.config.LLM.BaseURL,
		APIKey:  s.config.LLM.APIKey,
	})
	if err != nil {
		return err
	}
	slog.Info("LLM backend configured", "backend", s.config.LLM.Backend)
	s.llmClient = client
	return nil
}

// initJournals opens every configured sink and combines them.
//
// # Description
//
// Badger is the local journal and the source for the history endpoints;
// failing to open it is fatal. Weaviate, InfluxDB and Notion check-ins
// are best effort.
func (s *service) initJournals() error {
	var sinks []summary.Sink

	if path := s.config.Storage.BadgerPath; path != "" {
		bcfg := journal.DefaultBadgerConfig(path)
		bcfg.Retention = s.config.Storage.BadgerRetention
		bj, err := journal.OpenBadgerJournal(bcfg)
		if err != nil {
			return fmt.Errorf("open badger journal: %w", err)
		}
		sinks = append(sinks, bj)
		s.history = bj
		s.initBackup(bj)
	}

	if rawURL := strings.TrimSpace(s.config.Storage.WeaviateURL); rawURL != "" {
		if wj, err := s.openWeaviate(rawURL); err != nil {
			slog.Warn("Weaviate journal disabled", "error", err)
		} else {
			sinks = append(sinks, wj)
		}
	}

	if ic := s.config.Storage.Influx; ic.URL != "" {
		ij, err := journal.NewInfluxJournal(journal.InfluxConfig{
			URL:    ic.URL,
			Token:  ic.Token,
			Org:    ic.Org,
			Bucket: ic.Bucket,
		})
		if err != nil {
			slog.Warn("InfluxDB journal disabled", "error", err)
		} else {
			sinks = append(sinks, ij)
		}
	}

	if s.notion != nil {
		if checkIns := s.notion.CheckIns(); checkIns != nil {
			sinks = append(sinks, checkIns)
		}
	}

	sinks = append(sinks, s.opts.Sinks...)
	s.journals = journal.NewFanout(sinks...)
	slog.Info("Journals configured", "sinks", s.journals.Len())
	return nil
}

// initBackup enables journal backups when a destination is configured.
// A bucket that cannot be reached disables backups, not the service.
func (s *service) initBackup(bj *journal.BadgerJournal) {
	dst := s.opts.BackupWriter
	bc := s.config.Storage.Backup
	if dst == nil && bc.Bucket != "" {
		client, err := gcs.NewClient(context.Background(), bc.Bucket, bc.CredentialsFile)
		if err != nil {
			slog.Warn("Journal backups disabled", "bucket", bc.Bucket, "error", err)
			return
		}
		s.bucket = client
		dst = client
	}
	if dst == nil {
		return
	}
	s.backup = journal.NewBackuper(bj, dst, bc.Prefix, s.opts.Clock)
}

func (s *service) openWeaviate(rawURL string) (*journal.WeaviateJournal, error) {
	wj, err := journal.NewWeaviateJournal(rawURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wj.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return wj, nil
}

// notionClient returns the Notion client, or nil when not configured.
func (s *service) notionClient() *notion.Client {
	nc := s.config.Notion
	loc, _ := s.config.Location()
	client, err := notion.New(notion.Config{
		APIKey:          nc.APIKey,
		TasksDatabaseID: nc.TasksDatabaseID,
		CheckInDatabase: nc.CheckInDatabaseID,
		BaseURL:         nc.BaseURL,
		Location:        loc,
	})
	if err != nil {
		if !errors.Is(err, tools.ErrNotConfigured) {
			slog.Warn("Notion disabled", "error", err)
		}
		return nil
	}
	return client
}

// calendarBackend picks Google Calendar when a token is set, else the
// CalendarService URL, else nil.
func (s *service) calendarBackend() tools.Calendar {
	loc, _ := s.config.Location()
	if s.config.Google.AccessToken != "" {
		g, err := calendar.NewGoogle(context.Background(), calendar.GoogleConfig{
			AccessToken: s.config.Google.AccessToken,
			CalendarID:  s.config.Google.CalendarID,
			Location:    loc,
		})
		if err == nil {
			slog.Info("Calendar backend configured", "backend", "google")
			return g
		}
		slog.Warn("Google Calendar disabled", "error", err)
	}
	if s.config.Calendar.ServiceURL != "" {
		svc, err := calendar.NewService(s.config.Calendar.ServiceURL, loc)
		if err == nil {
			slog.Info("Calendar backend configured", "backend", "calendar_service")
			return svc
		}
		slog.Warn("Calendar service disabled", "error", err)
	}
	return nil
}

// initTurnHandler builds the conversation engine.
func (s *service) initTurnHandler() error {
	conv := s.config.Conversation
	loc, err := s.config.Location()
	if err != nil {
		return err
	}

	personas, err := responder.LoadPersonas(s.config.Persona.File)
	if err != nil {
		return fmt.Errorf("load personas: %w", err)
	}
	persona, err := personas.Get(s.config.Persona.Name)
	if err != nil {
		return fmt.Errorf("select persona: %w", err)
	}
	gen, err := responder.NewGenerator(s.llmClient, persona, responder.Config{
		Timeout:      conv.ReplyTimeout,
		ContextTurns: conv.ContextTurns,
		Observer: func(elapsed time.Duration, err error) {
			s.metrics.ObserveLLM(observability.OperationReply, elapsed, err)
		},
	})
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}
	if s.config.Persona.Watch && s.config.Persona.File != "" {
		s.personas, err = responder.NewPersonaWatcher(s.config.Persona.File, s.config.Persona.Name, gen, 0)
		if err != nil {
			return fmt.Errorf("watch personas: %w", err)
		}
	}

	icfg := intent.DefaultConfig()
	icfg.HardTurnCap = conv.HardTurnCap
	icfg.CommitmentTurnCap = conv.CommitmentTurnCap
	icfg.LoopWindow = conv.LoopWindow
	icfg.LoopThreshold = conv.LoopThreshold
	icfg.LowEngagementChars = conv.LowEngagementChars
	classifier := intent.NewClassifier(icfg, rand.NewSource(time.Now().UnixNano()))

	finalizer := summary.NewFinalizer(s.llmClient, s.journals, summary.FinalizerConfig{
		ExtractionTimeout: conv.ExtractionTimeout,
		Clock:             s.opts.Clock,
		Observer: func(source summary.Source, latency time.Duration) {
			var err error
			if source != summary.SourceLLM {
				err = errExtractionFallback
			}
			s.metrics.ObserveLLM(observability.OperationExtraction, latency, err)
		},
		OnSinkError: func(record string, err error) {
			s.metrics.RecordJournalError(record)
		},
	})

	// Interfaces are only assigned when a backend exists so the handler
	// sees a true nil otherwise.
	var storeOpts []session.StoreOption
	if s.opts.Clock != nil {
		storeOpts = append(storeOpts, session.WithClock(s.opts.Clock))
	}
	deps := handlers.TurnDeps{
		Store:      session.NewStore(storeOpts...),
		Classifier: classifier,
		Generator:  gen,
		Finalizer:  finalizer,
		Metrics:    s.metrics,
	}
	if s.config.Server.LiveFeed {
		s.live = handlers.NewLiveFeed(0)
		deps.Events = s.live
	}
	if s.journals.Len() > 0 {
		deps.Journal = s.journals
	}

	cal := s.calendarBackend()
	var board tools.TaskBoard
	if s.notion != nil {
		board = s.notion
	}
	if board != nil || cal != nil {
		deps.Tools = tools.NewExecutor(board, cal,
			tools.WithLocation(loc),
			tools.WithTimeout(conv.ToolTimeout))
	}

	if s.opts.DayPlans != nil {
		deps.DayPlans = s.opts.DayPlans
	} else if plans := s.dayPlanProvider(cal, s.notion, loc); plans != nil {
		deps.DayPlans = plans
	}
	deps.Briefer = s.briefer()

	turns, err := handlers.NewTurnHandler(deps, handlers.TurnConfig{
		MaxSilences:    conv.MaxSilences,
		DayPlanTimeout: conv.DayPlanTimeout,
		ToolTimeout:    conv.ToolTimeout,
		Location:       loc,
		Clock:          s.opts.Clock,
	})
	if err != nil {
		return err
	}
	s.store = deps.Store
	s.turns = turns
	return nil
}

// briefer reads the day at call start. The model refines it only when
// day_analysis is on; recent-call context comes from the Badger journal.
func (s *service) briefer() *briefing.Analyzer {
	var client llm.LLMClient
	if s.config.Conversation.DayAnalysis && s.llmClient != nil {
		client = s.llmClient
	}
	var history briefing.HistoryReader
	if s.history != nil {
		history = s.history
	}
	return briefing.NewAnalyzer(client, history, briefing.Config{
		Timeout: s.config.Conversation.DayAnalysisTimeout,
	})
}

// dayPlanProvider combines the calendar with the Notion and Habitica task
// lists. It returns nil when there is no source at all.
func (s *service) dayPlanProvider(cal tools.Calendar, nc *notion.Client, loc *time.Location) *dayplan.Provider {
	var events dayplan.EventSource
	if cal != nil {
		events = cal
	}
	var tasks []dayplan.TaskSource
	if nc != nil {
		tasks = append(tasks, nc)
	}
	hc, err := habitica.New(habitica.Config{
		UserID:   s.config.Habitica.UserID,
		APIToken: s.config.Habitica.APIToken,
	})
	switch {
	case err == nil:
		tasks = append(tasks, hc)
	case !errors.Is(err, tools.ErrNotConfigured):
		slog.Warn("Habitica disabled", "error", err)
	}

	if events == nil && len(tasks) == 0 {
		slog.Info("No day plan sources configured, opener will use the fallback greeting")
		return nil
	}
	return dayplan.New(events, tasks, dayplan.Options{
		MaxAge:       s.config.Conversation.DayPlanMaxAge,
		FetchTimeout: s.config.Conversation.DayPlanTimeout,
		Location:     loc,
	})
}

// initDialer builds the outbound Twilio client when credentials exist.
func (s *service) initDialer() {
	if s.opts.Dialer != nil {
		s.dialer = s.opts.Dialer
		return
	}
	if !s.config.TwilioConfigured() {
		slog.Info("Outbound calling disabled: Twilio credentials or public URL missing")
		return
	}
	base := strings.TrimRight(s.config.Server.PublicURL, "/")
	client, err := twilio.New(twilio.Config{
		AccountSID:        s.config.Twilio.AccountSID,
		AuthToken:         secret.New(s.config.Twilio.AuthToken),
		FromNumber:        s.config.Twilio.FromNumber,
		VoiceURL:          base + "/voice",
		StatusCallbackURL: base + "/status",
		MinInterval:       s.config.Twilio.MinCallInterval,
	})
	if err != nil {
		slog.Warn("Outbound calling disabled", "error", err)
		return
	}
	s.dialer = client
}

// initSweeper creates the idle-call sweeper. It is started by Run.
func (s *service) initSweeper() {
	sc := s.config.Sweeper
	if !sc.Enabled {
		slog.Info("Idle call sweeper disabled")
		return
	}
	var clock ttl.ClockChecker
	if !sc.ClockCheck {
		clock = ttl.NewNoopClockChecker()
	}
	s.sweeper = ttl.NewSweeper(s.store, s.turns, clock, ttl.SchedulerConfig{
		Interval:     sc.Interval,
		IdleTimeout:  sc.IdleTimeout,
		TombstoneTTL: sc.TombstoneTTL,
	})
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	gin.SetMode(s.config.Server.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	if s.config.Telemetry.TracingEnabled {
		s.router.Use(otelgin.Middleware(s.config.Telemetry.ServiceName))
	}

	opts := routes.Options{
		PublicURL:        s.config.Server.PublicURL,
		VerifySignatures: s.config.Twilio.VerifySignatures,
		Gatherer:         s.registry,
	}
	if s.config.Twilio.AuthToken != "" {
		opts.TwilioAuthToken = secret.New(s.config.Twilio.AuthToken)
	}
	if s.config.Server.AdminToken != "" {
		opts.AdminToken = secret.New(s.config.Server.AdminToken)
	}

	deps := routes.Deps{
		Turns:   s.turns,
		Store:   s.store,
		History: s.history,
		Dialer:  s.dialer,
		Live:    s.live,
	}
	if s.backup != nil {
		deps.Backup = s.backup
	}
	routes.SetupRoutes(s.router, deps, opts)
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called when Run exits or on initialization failure. Stops the sweeper,
// waits for pending finalizations while ctx allows, closes the journals
// and flushes the telemetry exporters.
func (s *service) cleanup(ctx context.Context) {
	if s.personas != nil {
		s.personas.Stop()
	}
	if s.sweeper != nil {
		if err := s.sweeper.Stop(); err != nil {
			slog.Warn("Idle sweeper stop error", "error", err)
		}
	}

	if s.turns != nil {
		if err := s.turns.Drain(ctx); err != nil {
			slog.Warn("Pending finalizations did not finish", "error", err)
		}
	}

	if s.journals != nil {
		if err := s.journals.Close(); err != nil {
			slog.Warn("Journal close error", "error", err)
		}
	} else if closer, ok := s.history.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if s.bucket != nil {
		_ = s.bucket.Close()
	}

	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetryShutdown(ctx); err != nil {
			slog.Error("failed to shutdown telemetry providers", "error", err)
		}
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
