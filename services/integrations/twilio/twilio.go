// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package twilio places outbound calls through the Twilio REST API and
// verifies webhook signatures.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/MorningCoach/pkg/secret"
)

// DefaultBaseURL is the public Twilio REST API.
const DefaultBaseURL = "https://api.twilio.com"

var (
	// ErrInvalidNumber is returned for a destination that is not E.164.
	ErrInvalidNumber = errors.New("twilio: destination must be an E.164 number")

	// ErrRateLimited is returned when the limiter could not grant a call
	// before the context expired.
	ErrRateLimited = errors.New("twilio: outbound call rate limit")
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// Dialer places outbound calls.
type Dialer interface {
	PlaceCall(ctx context.Context, to string) (string, error)
}

// Config configures the REST client.
type Config struct {
	AccountSID string
	AuthToken  *secret.Secret
	FromNumber string

	// VoiceURL is fetched by Twilio when the callee answers.
	VoiceURL string

	// StatusCallbackURL receives call progress events. Optional.
	StatusCallbackURL string

	// MinInterval is the minimum spacing between placed calls.
	// Default: 30 seconds
	MinInterval time.Duration

	BaseURL string
}

// APIError is an error body returned by Twilio.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Client implements Dialer.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	cfg        Config
	limiter    *rate.Limiter
	httpClient *http.Client
}

// New creates a Client.
//
// Description:
//
//	Requires the account SID, auth token, caller ID and voice URL. Calls
//	are spaced at least MinInterval apart with a burst of one.
//
// Inputs:
//
//	cfg - Client configuration.
//
// Outputs:
//
//	*Client - Ready to dial.
//	error - Non-nil when a required field is missing.
func New(cfg Config) (*Client, error) {
	switch {
	case cfg.AccountSID == "":
		return nil, errors.New("twilio: account sid is required")
	case cfg.AuthToken.IsEmpty():
		return nil, errors.New("twilio: auth token is required")
	case cfg.FromNumber == "":
		return nil, errors.New("twilio: from number is required")
	case cfg.VoiceURL == "":
		return nil, errors.New("twilio: voice url is required")
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// PlaceCall dials to and returns the new call's SID.
//
// Description:
//
//	Waits on the rate limiter, then creates the call with answering
//	machine detection enabled so a voicemail pickup is reported on the
//	voice webhook as AnsweredBy.
//
// Inputs:
//
//	ctx - Bounds both the limiter wait and the request.
//	to - E.164 destination number.
//
// Outputs:
//
//	string - The call SID.
//	error - ErrInvalidNumber, ErrRateLimited, *APIError or a transport error.
func (c *Client) PlaceCall(ctx context.Context, to string) (string, error) {
	if !e164Pattern.MatchString(to) {
		return "", ErrInvalidNumber
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Url", c.cfg.VoiceURL)
	form.Set("MachineDetection", "Enable")
	if c.cfg.StatusCallbackURL != "" {
		form.Set("StatusCallback", c.cfg.StatusCallbackURL)
		form.Add("StatusCallbackEvent", "answered")
		form.Add("StatusCallbackEvent", "completed")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if err := c.cfg.AuthToken.Use(func(token []byte) error {
		req.SetBasicAuth(c.cfg.AccountSID, string(token))
		return nil
	}); err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read twilio response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		slog.Error("Twilio rejected outbound call", "status", resp.StatusCode, "code", apiErr.Code)
		return "", apiErr
	}

	var created struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("failed to parse twilio response: %w", err)
	}
	if created.SID == "" {
		return "", errors.New("twilio response has no call sid")
	}
	slog.Info("Placed outbound call", "call_sid", created.SID, "status", created.Status)
	return created.SID, nil
}
