// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/MorningCoach/pkg/config"
	"github.com/AleutianAI/MorningCoach/pkg/secret"
	"github.com/AleutianAI/MorningCoach/pkg/ux"
	"github.com/AleutianAI/MorningCoach/services/integrations/twilio"
)

const callTimeout = 30 * time.Second

var errTwilioNotConfigured = errors.New(
	"twilio is not configured: set twilio.account_sid, twilio.auth_token, twilio.from_number and server.public_url")

// runCall dials the given number. The call's webhooks go to the running
// server at server.public_url.
func runCall(cmd *cobra.Command, args []string) error {
	dialer, err := newDialer(appConfig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	p := ux.NewPrinter(cmd.OutOrStdout())
	sid, err := dialer.PlaceCall(ctx, args[0])
	if err != nil {
		p.Failure("Call to " + args[0] + " was not placed")
		return fmt.Errorf("place call: %w", err)
	}
	p.Success("Call placed: " + sid)
	return nil
}

func newDialer(cfg config.Config) (*twilio.Client, error) {
	if !cfg.TwilioConfigured() {
		return nil, errTwilioNotConfigured
	}
	base := strings.TrimRight(cfg.Server.PublicURL, "/")
	return twilio.New(twilio.Config{
		AccountSID:        cfg.Twilio.AccountSID,
		AuthToken:         secret.New(cfg.Twilio.AuthToken),
		FromNumber:        cfg.Twilio.FromNumber,
		VoiceURL:          base + "/voice",
		StatusCallbackURL: base + "/status",
		MinInterval:       cfg.Twilio.MinCallInterval,
	})
}
