// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
)

// SessionClass is the Weaviate class holding coaching summaries.
const SessionClass = "CoachingSession"

// WeaviateJournal stores session summaries in Weaviate so past mornings
// can be searched. Missed calls and turn logs are not stored there.
type WeaviateJournal struct {
	client *weaviate.Client
}

// NewWeaviateJournal creates a journal for the Weaviate at rawURL.
//
// Inputs:
//
//	rawURL - Service URL with scheme, e.g. "http://weaviate:8080".
//
// Outputs:
//
//	*WeaviateJournal - Ready to use after EnsureSchema.
//	error - Non-nil if the URL is invalid.
func NewWeaviateJournal(rawURL string) (*WeaviateJournal, error) {
	rawURL = strings.Trim(rawURL, "\"' ")
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL %q", rawURL)
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateJournal{client: client}, nil
}

// SessionSchema returns the schema for SessionClass.
func SessionSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:               SessionClass,
		Description:         "Summary of one morning coaching call",
		Vectorizer:          "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{IndexTimestamps: true},
		Properties: []*models.Property{
			{
				Name:            "call_sid",
				DataType:        []string{"text"},
				Description:     "Telephony call identifier.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "session_type",
				DataType:        []string{"text"},
				Description:     "brief or substantive.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "outcome",
				DataType:        []string{"text"},
				Description:     "productive, planning, adjustment, brief or voicemail.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "summary",
				DataType:     []string{"text"},
				Description:  "Key decisions and commitments as prose.",
				Tokenization: "word",
			},
			{
				Name:         "mood_energy",
				DataType:     []string{"text"},
				Description:  "How the caller sounded.",
				Tokenization: "word",
			},
			{
				Name:         "priorities",
				DataType:     []string{"text[]"},
				Description:  "What the caller focused on.",
				Tokenization: "word",
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the call started.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "duration_seconds",
				DataType:        []string{"number"},
				Description:     "Length of the call.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates SessionClass if it does not exist.
func (w *WeaviateJournal) EnsureSchema(ctx context.Context) error {
	class := SessionSchema()
	if _, err := w.client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx); err == nil {
		slog.Info("Schema already exists", "class", class.Class)
		return nil
	}
	slog.Info("Schema not found, creating it", "class", class.Class)
	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create schema for class %s: %w", class.Class, err)
	}
	return nil
}

// AppendSession implements summary.Sink. The record ID is the object ID, so
// writing the same record again replaces it.
func (w *WeaviateJournal) AppendSession(ctx context.Context, rec summary.SessionRecord) error {
	obj := &models.Object{
		Class: SessionClass,
		ID:    strfmt.UUID(rec.ID),
		Properties: map[string]interface{}{
			"call_sid":         rec.CallID,
			"session_type":     string(rec.SessionType),
			"outcome":          string(rec.Summary.Outcome),
			"summary":          SummaryText(rec.Summary),
			"mood_energy":      rec.Summary.MoodEnergy,
			"priorities":       rec.Insights.Priorities,
			"timestamp":        rec.StartTime.UnixMilli(),
			"duration_seconds": rec.Duration().Seconds(),
		},
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return fmt.Errorf("save %s to weaviate: %w", SessionClass, err)
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			return fmt.Errorf("save %s to weaviate: %s", SessionClass, item.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// AppendMissedCall implements summary.Sink. Missed calls have no summary
// worth searching.
func (w *WeaviateJournal) AppendMissedCall(context.Context, summary.MissedCallRecord) error {
	return nil
}

// SummaryText renders a summary as a short paragraph.
func SummaryText(s summary.Summary) string {
	var b strings.Builder
	if len(s.KeyDecisions) > 0 {
		b.WriteString("Decisions: ")
		b.WriteString(strings.Join(s.KeyDecisions, "; "))
		b.WriteString(". ")
	}
	if len(s.Commitments) > 0 {
		parts := make([]string, len(s.Commitments))
		for i, c := range s.Commitments {
			parts[i] = c.Task + " (" + c.Timeframe + ")"
		}
		b.WriteString("Commitments: ")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(". ")
	}
	fmt.Fprintf(&b, "Outcome: %s.", s.Outcome)
	return b.String()
}
