// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package habitica reads the caller's due dailies from Habitica.
package habitica

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
)

const (
	// DefaultBaseURL is the public Habitica API.
	DefaultBaseURL = "https://habitica.com/api/v3"

	// clientHeader identifies this integration, as Habitica requires.
	clientHeader = "morningcoach-orchestrator"

	defaultTimeout = 10 * time.Second
)

// Config holds Habitica credentials.
type Config struct {
	UserID   string
	APIToken string
	BaseURL  string
}

// Client fetches dailies.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Client. Missing credentials return tools.ErrNotConfigured.
func New(cfg Config) (*Client, error) {
	if cfg.UserID == "" || cfg.APIToken == "" {
		return nil, tools.ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: defaultTimeout}}, nil
}

type daily struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Completed bool     `json:"completed"`
	IsDue     *bool    `json:"isDue"`
	Priority  *float64 `json:"priority"`
}

// TodayTasks returns the dailies that are due and not yet completed.
//
// Description:
//
//	A daily without an isDue flag counts as due. A missing priority
//	defaults to 1, Habitica's "easy".
func (c *Client) TodayTasks(ctx context.Context) ([]session.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/tasks/user?type=dailys", nil)
	if err != nil {
		return nil, fmt.Errorf("create habitica request: %w", err)
	}
	req.Header.Set("x-api-user", c.cfg.UserID)
	req.Header.Set("x-api-key", c.cfg.APIToken)
	req.Header.Set("x-client", c.cfg.UserID+"-"+clientHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("habitica request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("habitica returned status %d", resp.StatusCode)
	}

	var body struct {
		Success bool    `json:"success"`
		Data    []daily `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode habitica response: %w", err)
	}

	tasks := make([]session.Task, 0, len(body.Data))
	for _, d := range body.Data {
		if d.Completed || (d.IsDue != nil && !*d.IsDue) {
			continue
		}
		priority := 1.0
		if d.Priority != nil && *d.Priority > 0 {
			priority = *d.Priority
		}
		tasks = append(tasks, session.Task{ID: d.ID, Text: d.Text, Priority: priority})
	}
	return tasks, nil
}
