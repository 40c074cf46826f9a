// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads MorningCoach configuration.
//
// Values come from, in increasing precedence: built-in defaults, an
// optional YAML file (morningcoach.yaml), and environment variables. Every
// key can be set as MORNINGCOACH_<SECTION>_<KEY>, e.g.
// MORNINGCOACH_SERVER_PORT. Credentials additionally accept the provider's
// conventional variable names (TWILIO_AUTH_TOKEN, NOTION_API_KEY, ...).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFileName is the config file searched for when no path is given.
const DefaultFileName = "morningcoach"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MORNINGCOACH"

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Persona      PersonaConfig      `mapstructure:"persona"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Twilio       TwilioConfig       `mapstructure:"twilio"`
	Notion       NotionConfig       `mapstructure:"notion"`
	Google       GoogleConfig       `mapstructure:"google"`
	Calendar     CalendarConfig     `mapstructure:"calendar"`
	Habitica     HabiticaConfig     `mapstructure:"habitica"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Sweeper      SweeperConfig      `mapstructure:"sweeper"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`

	// PublicURL is the externally reachable base URL, used for TwiML
	// action URLs, outbound call callbacks and signature checks.
	PublicURL string `mapstructure:"public_url"`

	// GinMode is "debug", "release" or "test".
	GinMode string `mapstructure:"gin_mode"`

	// AdminToken protects the /v1 routes. Empty leaves them open.
	AdminToken string `mapstructure:"admin_token"`

	// LiveFeed exposes GET /v1/sessions/live, a websocket stream of
	// transcript lines.
	LiveFeed bool `mapstructure:"live_feed"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PersonaConfig selects the coaching persona.
type PersonaConfig struct {
	Name string `mapstructure:"name"`

	// File is an optional YAML file that overrides or adds personas.
	File string `mapstructure:"file"`

	// Watch reloads File when it changes, without a restart.
	Watch bool `mapstructure:"watch"`
}

// LLMConfig selects the model backend.
type LLMConfig struct {
	Backend string `mapstructure:"backend"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ConversationConfig holds caps, thresholds and timeouts.
type ConversationConfig struct {
	HardTurnCap        int `mapstructure:"hard_turn_cap"`
	CommitmentTurnCap  int `mapstructure:"commitment_turn_cap"`
	LoopWindow         int `mapstructure:"loop_window"`
	LoopThreshold      int `mapstructure:"loop_threshold"`
	LowEngagementChars int `mapstructure:"low_engagement_chars"`
	MaxSilences        int `mapstructure:"max_silences"`
	ContextTurns       int `mapstructure:"context_turns"`

	ReplyTimeout      time.Duration `mapstructure:"reply_timeout"`
	ExtractionTimeout time.Duration `mapstructure:"extraction_timeout"`
	ToolTimeout       time.Duration `mapstructure:"tool_timeout"`
	DayPlanTimeout    time.Duration `mapstructure:"day_plan_timeout"`
	DayPlanMaxAge     time.Duration `mapstructure:"day_plan_max_age"`

	// DayAnalysis lets the model refine the call-start read of the day.
	// Conflicts, free slots and recent-call context are computed either way.
	DayAnalysis        bool          `mapstructure:"day_analysis"`
	DayAnalysisTimeout time.Duration `mapstructure:"day_analysis_timeout"`

	// Timezone is the caller's IANA zone, e.g. "America/New_York".
	Timezone string `mapstructure:"timezone"`
}

// TwilioConfig holds telephony credentials.
type TwilioConfig struct {
	AccountSID       string        `mapstructure:"account_sid"`
	AuthToken        string        `mapstructure:"auth_token"`
	FromNumber       string        `mapstructure:"from_number"`
	VerifySignatures bool          `mapstructure:"verify_signatures"`
	MinCallInterval  time.Duration `mapstructure:"min_call_interval"`
}

// NotionConfig locates the task and check-in databases.
type NotionConfig struct {
	APIKey            string `mapstructure:"api_key"`
	TasksDatabaseID   string `mapstructure:"tasks_database_id"`
	CheckInDatabaseID string `mapstructure:"checkin_database_id"`
	BaseURL           string `mapstructure:"base_url"`
}

// GoogleConfig configures the Google Calendar backend.
type GoogleConfig struct {
	AccessToken string `mapstructure:"access_token"`
	CalendarID  string `mapstructure:"calendar_id"`
}

// CalendarConfig points at a CalendarService instance. Used when no Google
// token is configured.
type CalendarConfig struct {
	ServiceURL string `mapstructure:"service_url"`
}

// HabiticaConfig holds Habitica credentials.
type HabiticaConfig struct {
	UserID   string `mapstructure:"user_id"`
	APIToken string `mapstructure:"api_token"`
}

// StorageConfig locates the journals. Empty values disable a journal.
type StorageConfig struct {
	BadgerPath      string        `mapstructure:"badger_path"`
	BadgerRetention time.Duration `mapstructure:"badger_retention"`
	WeaviateURL     string        `mapstructure:"weaviate_url"`
	Influx          InfluxConfig  `mapstructure:"influx"`
	Backup          BackupConfig  `mapstructure:"backup"`
}

// BackupConfig enables POST /v1/journal/backup, which streams the Badger
// journal to a Cloud Storage bucket.
type BackupConfig struct {
	Bucket string `mapstructure:"bucket"`

	// Prefix is prepended to object names, e.g. "morningcoach/".
	Prefix string `mapstructure:"prefix"`

	// CredentialsFile is a service account key. Empty uses Application
	// Default Credentials.
	CredentialsFile string `mapstructure:"credentials_file"`
}

// InfluxConfig locates the session metrics bucket.
type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// TelemetryConfig configures tracing and OpenTelemetry metrics.
type TelemetryConfig struct {
	TracingEnabled bool `mapstructure:"tracing_enabled"`

	// TraceExporter is "otlp" or "stdout".
	TraceExporter string `mapstructure:"trace_exporter"`

	// MetricExporter is "prometheus" (served on /metrics), "stdout" or
	// "none".
	MetricExporter string `mapstructure:"metric_exporter"`

	OTelEndpoint string `mapstructure:"otel_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// SweeperConfig configures idle-call expiry.
type SweeperConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TombstoneTTL time.Duration `mapstructure:"tombstone_ttl"`
	ClockCheck   bool          `mapstructure:"clock_check"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`

	// Format is "json", "text" or "auto". Auto writes text to a terminal
	// and JSON everywhere else.
	Format string `mapstructure:"format"`
}

// =============================================================================
// Defaults
// =============================================================================

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            12210,
			GinMode:         "release",
			ShutdownTimeout: 30 * time.Second,
		},
		Persona: PersonaConfig{Name: "drill"},
		LLM:     LLMConfig{Backend: "openai"},
		Conversation: ConversationConfig{
			HardTurnCap:        16,
			CommitmentTurnCap:  8,
			LoopWindow:         3,
			LoopThreshold:      2,
			LowEngagementChars: 20,
			MaxSilences:        3,
			ContextTurns:       6,
			ReplyTimeout:       6 * time.Second,
			ExtractionTimeout:  10 * time.Second,
			ToolTimeout:        8 * time.Second,
			DayPlanTimeout:     5 * time.Second,
			DayPlanMaxAge:      5 * time.Minute,
			DayAnalysis:        true,
			DayAnalysisTimeout: 3 * time.Second,
			Timezone:           "Local",
		},
		Twilio: TwilioConfig{
			VerifySignatures: true,
			MinCallInterval:  30 * time.Second,
		},
		Google: GoogleConfig{CalendarID: "primary"},
		Storage: StorageConfig{
			BadgerPath:      "./data/journal",
			BadgerRetention: 90 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			TracingEnabled: true,
			TraceExporter:  "otlp",
			MetricExporter: "prometheus",
			OTelEndpoint:   "otel-collector:4317",
			ServiceName:    "morningcoach",
		},
		Sweeper: SweeperConfig{
			Enabled:      true,
			Interval:     time.Minute,
			IdleTimeout:  10 * time.Minute,
			TombstoneTTL: 24 * time.Hour,
			ClockCheck:   true,
		},
		Log: LogConfig{Level: "info", Format: "auto"},
	}
}

// conventionalEnv lists provider variable names accepted in addition to
// the MORNINGCOACH_ form.
var conventionalEnv = map[string][]string{
	"llm.api_key":                {"OPENAI_API_KEY"},
	"twilio.account_sid":         {"TWILIO_ACCOUNT_SID"},
	"twilio.auth_token":          {"TWILIO_AUTH_TOKEN"},
	"twilio.from_number":         {"TWILIO_FROM_NUMBER"},
	"notion.api_key":             {"NOTION_API_KEY"},
	"notion.tasks_database_id":   {"NOTION_TASKS_DATABASE_ID"},
	"notion.checkin_database_id": {"NOTION_CHECKIN_DATABASE_ID"},
	"google.access_token":        {"GOOGLE_CALENDAR_ACCESS_TOKEN"},
	"google.calendar_id":         {"GOOGLE_CALENDAR_ID"},
	"habitica.user_id":           {"HABITICA_USER_ID"},
	"habitica.api_token":         {"HABITICA_API_TOKEN"},
	"telemetry.otel_endpoint":    {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"telemetry.trace_exporter":   {"OTEL_TRACES_EXPORTER"},
	"telemetry.metric_exporter":  {"OTEL_METRICS_EXPORTER"},

	"storage.backup.credentials_file": {"GOOGLE_APPLICATION_CREDENTIALS"},
}

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration.
//
// # Description
//
// When path is empty, morningcoach.yaml is searched for in the working
// directory and in $HOME/.morningcoach; a missing file is not an error.
// When path is set, the file must exist. Environment variables override
// file values. The result is validated.
//
// # Inputs
//
//   - path: Explicit config file, or "" to search.
//
// # Outputs
//
//   - Config: Defaults, file and environment merged.
//   - error: Non-nil if the file cannot be parsed or a value is invalid.
//
// # Examples
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range conventionalEnv {
		envs := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.morningcoach")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment-only values are seen by
// Unmarshal.
func setDefaults(v *viper.Viper, def Config) {
	c := def
	set := v.SetDefault
	set("server.port", c.Server.Port)
	set("server.public_url", c.Server.PublicURL)
	set("server.gin_mode", c.Server.GinMode)
	set("server.admin_token", c.Server.AdminToken)
	set("server.live_feed", c.Server.LiveFeed)
	set("server.shutdown_timeout", c.Server.ShutdownTimeout)

	set("persona.name", c.Persona.Name)
	set("persona.file", c.Persona.File)
	set("persona.watch", c.Persona.Watch)

	set("llm.backend", c.LLM.Backend)
	set("llm.model", c.LLM.Model)
	set("llm.base_url", c.LLM.BaseURL)
	set("llm.api_key", c.LLM.APIKey)

	set("conversation.hard_turn_cap", c.Conversation.HardTurnCap)
	set("conversation.commitment_turn_cap", c.Conversation.CommitmentTurnCap)
	set("conversation.loop_window", c.Conversation.LoopWindow)
	set("conversation.loop_threshold", c.Conversation.LoopThreshold)
	set("conversation.low_engagement_chars", c.Conversation.LowEngagementChars)
	set("conversation.max_silences", c.Conversation.MaxSilences)
	set("conversation.context_turns", c.Conversation.ContextTurns)
	set("conversation.reply_timeout", c.Conversation.ReplyTimeout)
	set("conversation.extraction_timeout", c.Conversation.ExtractionTimeout)
	set("conversation.tool_timeout", c.Conversation.ToolTimeout)
	set("conversation.day_plan_timeout", c.Conversation.DayPlanTimeout)
	set("conversation.day_plan_max_age", c.Conversation.DayPlanMaxAge)
	set("conversation.day_analysis", c.Conversation.DayAnalysis)
	set("conversation.day_analysis_timeout", c.Conversation.DayAnalysisTimeout)
	set("conversation.timezone", c.Conversation.Timezone)

	set("twilio.account_sid", c.Twilio.AccountSID)
	set("twilio.auth_token", c.Twilio.AuthToken)
	set("twilio.from_number", c.Twilio.FromNumber)
	set("twilio.verify_signatures", c.Twilio.VerifySignatures)
	set("twilio.min_call_interval", c.Twilio.MinCallInterval)

	set("notion.api_key", c.Notion.APIKey)
	set("notion.tasks_database_id", c.Notion.TasksDatabaseID)
	set("notion.checkin_database_id", c.Notion.CheckInDatabaseID)
	set("notion.base_url", c.Notion.BaseURL)

	set("google.access_token", c.Google.AccessToken)
	set("google.calendar_id", c.Google.CalendarID)
	set("calendar.service_url", c.Calendar.ServiceURL)
	set("habitica.user_id", c.Habitica.UserID)
	set("habitica.api_token", c.Habitica.APIToken)

	set("storage.badger_path", c.Storage.BadgerPath)
	set("storage.badger_retention", c.Storage.BadgerRetention)
	set("storage.weaviate_url", c.Storage.WeaviateURL)
	set("storage.influx.url", c.Storage.Influx.URL)
	set("storage.influx.token", c.Storage.Influx.Token)
	set("storage.influx.org", c.Storage.Influx.Org)
	set("storage.influx.bucket", c.Storage.Influx.Bucket)
	set("storage.backup.bucket", c.Storage.Backup.Bucket)
	set("storage.backup.prefix", c.Storage.Backup.Prefix)
	set("storage.backup.credentials_file", c.Storage.Backup.CredentialsFile)

	set("telemetry.tracing_enabled", c.Telemetry.TracingEnabled)
	set("telemetry.trace_exporter", c.Telemetry.TraceExporter)
	set("telemetry.metric_exporter", c.Telemetry.MetricExporter)
	set("telemetry.otel_endpoint", c.Telemetry.OTelEndpoint)
	set("telemetry.service_name", c.Telemetry.ServiceName)

	set("sweeper.enabled", c.Sweeper.Enabled)
	set("sweeper.interval", c.Sweeper.Interval)
	set("sweeper.idle_timeout", c.Sweeper.IdleTimeout)
	set("sweeper.tombstone_ttl", c.Sweeper.TombstoneTTL)
	set("sweeper.clock_check", c.Sweeper.ClockCheck)

	set("log.level", c.Log.Level)
	set("log.dir", c.Log.Dir)
	set("log.format", c.Log.Format)
}

// =============================================================================
// Validation
// =============================================================================

// FieldError reports one invalid configuration value.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Validate checks value ranges and formats. All problems are returned
// joined.
func (c Config) Validate() error {
	var errs []error
	bad := func(field, reason string) {
		errs = append(errs, &FieldError{Field: field, Reason: reason})
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		bad("server.port", "must be between 1 and 65535")
	}
	if c.Server.PublicURL != "" {
		if u, err := url.Parse(c.Server.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			bad("server.public_url", "must be an absolute URL")
		}
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		bad("server.gin_mode", "must be debug, release or test")
	}

	conv := c.Conversation
	if conv.HardTurnCap <= 0 {
		bad("conversation.hard_turn_cap", "must be positive")
	}
	if conv.CommitmentTurnCap <= 0 || conv.CommitmentTurnCap > conv.HardTurnCap {
		bad("conversation.commitment_turn_cap", "must be positive and at most hard_turn_cap")
	}
	if conv.LoopThreshold <= 0 || conv.LoopThreshold > conv.LoopWindow {
		bad("conversation.loop_threshold", "must be positive and at most loop_window")
	}
	if conv.MaxSilences <= 0 {
		bad("conversation.max_silences", "must be positive")
	}
	if _, err := c.Location(); err != nil {
		bad("conversation.timezone", err.Error())
	}

	switch c.Telemetry.TraceExporter {
	case "otlp", "stdout":
	default:
		bad("telemetry.trace_exporter", "must be otlp or stdout")
	}
	switch c.Telemetry.MetricExporter {
	case "prometheus", "stdout", "none":
	default:
		bad("telemetry.metric_exporter", "must be prometheus, stdout or none")
	}

	switch c.Log.Format {
	case "auto", "json", "text":
	default:
		bad("log.format", "must be auto, json or text")
	}

	if c.Sweeper.Enabled && c.Sweeper.IdleTimeout < time.Minute {
		bad("sweeper.idle_timeout", "must be at least 1m")
	}
	if c.Twilio.VerifySignatures && c.Twilio.AuthToken != "" && c.Server.PublicURL == "" {
		bad("server.public_url", "required to verify webhook signatures")
	}
	return errors.Join(errs...)
}

// Location resolves Conversation.Timezone.
func (c Config) Location() (*time.Location, error) {
	switch c.Conversation.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Conversation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", c.Conversation.Timezone)
	}
	return loc, nil
}

// TwilioConfigured reports whether outbound calling can be enabled.
func (c Config) TwilioConfigured() bool {
	t := c.Twilio
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != "" && c.Server.PublicURL != ""
}
