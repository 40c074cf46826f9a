// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package twilio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/MorningCoach/pkg/secret"
)

type capturedCall struct {
	path string
	user string
	pass string
	form url.Values
}

func newCallServer(t *testing.T, status int, body string) (*httptest.Server, *[]capturedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []capturedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		user, pass, _ := r.BasicAuth()
		mu.Lock()
		calls = append(calls, capturedCall{path: r.URL.Path, user: user, pass: pass, form: form})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(baseURL string) Config {
	return Config{
		AccountSID:        "AC123",
		AuthToken:         secret.New("token-abc"),
		FromNumber:        "+15550000000",
		VoiceURL:          "https://coach.example.com/voice",
		StatusCallbackURL: "https://coach.example.com/status",
		MinInterval:       time.Millisecond,
		BaseURL:           baseURL,
	}
}

func TestNew_RequiredFields(t *testing.T) {
	base := testConfig("http://unused")

	noSID := base
	noSID.AccountSID = ""
	_, err := New(noSID)
	assert.Error(t, err)

	noToken := base
	noToken.AuthToken = nil
	_, err = New(noToken)
	assert.Error(t, err)

	noFrom := base
	noFrom.FromNumber = ""
	_, err = New(noFrom)
	assert.Error(t, err)

	noURL := base
	noURL.VoiceURL = ""
	_, err = New(noURL)
	assert.Error(t, err)

	_, err = New(base)
	assert.NoError(t, err)
}

func TestPlaceCall_Success(t *testing.T) {
	srv, calls := newCallServer(t, http.StatusCreated, `{"sid":"CA999","status":"queued"}`)
	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	sid, err := c.PlaceCall(context.Background(), "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "CA999", sid)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Calls.json", got.path)
	assert.Equal(t, "AC123", got.user)
	assert.Equal(t, "token-abc", got.pass)
	assert.Equal(t, "+15551234567", got.form.Get("To"))
	assert.Equal(t, "+15550000000", got.form.Get("From"))
	assert.Equal(t, "https://coach.example.com/voice", got.form.Get("Url"))
	assert.Equal(t, "Enable", got.form.Get("MachineDetection"))
	assert.Equal(t, "https://coach.example.com/status", got.form.Get("StatusCallback"))
	assert.Equal(t, []string{"answered", "completed"}, got.form["StatusCallbackEvent"])
}

func TestPlaceCall_InvalidNumber(t *testing.T) {
	srv, calls := newCallServer(t, http.StatusCreated, `{"sid":"CA1"}`)
	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	for _, to := range []string{"", "5551234567", "+0123456789", "+1555abc4567"} {
		_, err := c.PlaceCall(context.Background(), to)
		assert.ErrorIs(t, err, ErrInvalidNumber, to)
	}
	assert.Empty(t, *calls)
}

func TestPlaceCall_APIError(t *testing.T) {
	srv, _ := newCallServer(t, http.StatusBadRequest, `{"code":21211,"message":"The 'To' number is not a valid phone number.","status":400}`)
	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.PlaceCall(context.Background(), "+15551234567")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 21211, apiErr.Code)
	assert.Contains(t, apiErr.Message, "not a valid phone number")
}

func TestPlaceCall_MissingSID(t *testing.T) {
	srv, _ := newCallServer(t, http.StatusCreated, `{"status":"queued"}`)
	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.PlaceCall(context.Background(), "+15551234567")
	assert.Error(t, err)
}

func TestPlaceCall_RateLimited(t *testing.T) {
	srv, calls := newCallServer(t, http.StatusCreated, `{"sid":"CA1"}`)
	cfg := testConfig(srv.URL)
	cfg.MinInterval = time.Hour
	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.PlaceCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.PlaceCall(ctx, "+15551234567")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, *calls, 1)
}

func TestSignature_KnownVector(t *testing.T) {
	params := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}
	got := Signature([]byte("12345"), "https://mycompany.com/myapp.php?foo=1&bar=2", params)
	assert.Equal(t, "0/KCTR6DLpKmkAf8muzZqo1nDgQ=", got)
}

func TestValidSignature(t *testing.T) {
	token := secret.New("12345")
	fullURL := "https://coach.example.com/gather"
	params := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"that's it"}}
	sig := Signature([]byte("12345"), fullURL, params)

	assert.True(t, ValidSignature(token, fullURL, params, sig))
	assert.False(t, ValidSignature(token, fullURL, params, ""))
	assert.False(t, ValidSignature(token, fullURL+"?x=1", params, sig))

	tampered := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"keep going"}}
	assert.False(t, ValidSignature(token, fullURL, tampered, sig))

	assert.False(t, ValidSignature(nil, fullURL, params, sig))
}
