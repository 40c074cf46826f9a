// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notion talks to the Notion API for three things:
//   - CreateTask adds a task to the tasks database (tools.TaskBoard)
//   - TodayTasks reads today's open tasks for the day plan
//   - CheckIns writes one page per coaching call to the check-in database
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
)

const (
	// DefaultBaseURL is the public Notion API.
	DefaultBaseURL = "https://api.notion.com/v1"

	// APIVersion is the Notion-Version header value the payloads target.
	APIVersion = "2022-06-28"

	defaultTimeout  = 10 * time.Second
	defaultPriority = "Medium"
	sourceLabel     = "Morning Coach"
	richTextLimit   = 2000
)

// Config configures the client.
type Config struct {
	APIKey          string
	TasksDatabaseID string
	CheckInDatabase string
	BaseURL         string
	Location        *time.Location
}

// Client is a Notion API client.
type Client struct {
	apiKey     string
	tasksDB    string
	checkInDB  string
	baseURL    string
	loc        *time.Location
	httpClient *http.Client
	now        func() time.Time
}

// New creates a Client. An empty API key returns tools.ErrNotConfigured.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, tools.ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Client{
		apiKey:     cfg.APIKey,
		tasksDB:    cfg.TasksDatabaseID,
		checkInDB:  cfg.CheckInDatabase,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		loc:        cfg.Location,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}, nil
}

// =============================================================================
// Property Builders
// =============================================================================

type object = map[string]any

func titleProp(text string) object {
	return object{"title": []object{{"text": object{"content": clip(text)}}}}
}

func richTextProp(text string) object {
	return object{"rich_text": []object{{"text": object{"content": clip(text)}}}}
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= richTextLimit {
		return s
	}
	return string(r[:richTextLimit])
}

// =============================================================================
// Tasks
// =============================================================================

// CreateTask implements tools.TaskBoard.
func (c *Client) CreateTask(ctx context.Context, in tools.TaskInput) (tools.TaskRef, error) {
	if c.tasksDB == "" {
		return tools.TaskRef{}, tools.ErrNotConfigured
	}
	priority := in.Priority
	if priority == "" {
		priority = defaultPriority
	}
	payload := object{
		"parent": object{"database_id": c.tasksDB},
		"properties": object{
			"Name":      titleProp(in.Title),
			"Date":      object{"date": object{"start": c.today()}},
			"Priority":  object{"select": object{"name": priority}},
			"Source":    richTextProp(sourceLabel),
			"Completed": object{"checkbox": false},
		},
	}
	var page struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/pages", payload, &page); err != nil {
		return tools.TaskRef{}, err
	}
	return tools.TaskRef{ID: page.ID, URL: page.URL}, nil
}

// TodayTasks returns today's incomplete tasks from the tasks database.
func (c *Client) TodayTasks(ctx context.Context) ([]session.Task, error) {
	if c.tasksDB == "" {
		return nil, tools.ErrNotConfigured
	}
	query := object{
		"filter": object{
			"and": []object{
				{"property": "Date", "date": object{"equals": c.today()}},
				{"property": "Completed", "checkbox": object{"equals": false}},
			},
		},
	}
	var resp struct {
		Results []struct {
			ID         string `json:"id"`
			Properties struct {
				Name struct {
					Title []struct {
						PlainText string `json:"plain_text"`
						Text      struct {
							Content string `json:"content"`
						} `json:"text"`
					} `json:"title"`
				} `json:"Name"`
				Priority struct {
					Select *struct {
						Name string `json:"name"`
					} `json:"select"`
				} `json:"Priority"`
			} `json:"properties"`
		} `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/databases/"+c.tasksDB+"/query", query, &resp); err != nil {
		return nil, err
	}

	tasks := make([]session.Task, 0, len(resp.Results))
	for _, r := range resp.Results {
		text := "Untitled"
		if t := r.Properties.Name.Title; len(t) > 0 {
			text = t[0].PlainText
			if text == "" {
				text = t[0].Text.Content
			}
		}
		name := defaultPriority
		if sel := r.Properties.Priority.Select; sel != nil {
			name = sel.Name
		}
		tasks = append(tasks, session.Task{ID: r.ID, Text: text, Priority: priorityWeight(name)})
	}
	return tasks, nil
}

// priorityWeight maps a select label to a sortable weight.
func priorityWeight(name string) float64 {
	switch strings.ToLower(name) {
	case "high", "urgent":
		return 2
	case "low":
		return 0.5
	}
	return 1
}

func (c *Client) today() string {
	return c.now().In(c.loc).Format("2006-01-02")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal notion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", APIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("notion %s: %d %s: %s", path, resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("notion %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode notion %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// Check-ins
// =============================================================================

// CheckIns writes check-in pages. It implements summary.Sink.
type CheckIns struct {
	client *Client
}

// CheckIns returns the check-in sink. It returns nil when no check-in
// database is configured.
func (c *Client) CheckIns() *CheckIns {
	if c.checkInDB == "" {
		return nil
	}
	return &CheckIns{client: c}
}

// AppendSession implements summary.Sink.
func (s *CheckIns) AppendSession(ctx context.Context, rec summary.SessionRecord) error {
	c := s.client
	start := rec.StartTime.In(c.loc)
	priorities := strings.Join(rec.Insights.Priorities, ", ")
	if priorities == "" {
		priorities = "Daily planning and check-in"
	}

	payload := object{
		"parent": object{"database_id": c.checkInDB},
		"properties": object{
			"Date":         titleProp(start.Format("2006-01-02 - 15:04") + " Morning Session"),
			"Priorities":   richTextProp(priorities),
			"Mood":         richTextProp(rec.Insights.Mood),
			"Energy Level": richTextProp(rec.Insights.Energy),
			"Notes":        richTextProp(checkInNotes(rec)),
		},
	}
	return c.do(ctx, http.MethodPost, "/pages", payload, nil)
}

// AppendMissedCall implements summary.Sink. Missed calls are not
// check-ins.
func (s *CheckIns) AppendMissedCall(context.Context, summary.MissedCallRecord) error {
	return nil
}

func checkInNotes(rec summary.SessionRecord) string {
	notes := []string{}
	if rec.Insights.Notes != "" {
		notes = append(notes, rec.Insights.Notes)
	}
	if len(rec.Summary.Commitments) > 0 {
		parts := make([]string, len(rec.Summary.Commitments))
		for i, c := range rec.Summary.Commitments {
			parts[i] = c.Task + " (" + c.Timeframe + ")"
		}
		notes = append(notes, "Commitments: "+strings.Join(parts, "; "))
	}
	notes = append(notes, fmt.Sprintf("Duration: %d minutes", int(rec.Duration().Round(time.Minute)/time.Minute)))
	notes = append(notes, "Outcome: "+string(rec.Summary.Outcome))
	return strings.Join(notes, "\n")
}
