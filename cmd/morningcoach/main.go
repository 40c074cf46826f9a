// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command morningcoach runs the MorningCoach voice coaching service.
//
// # Usage
//
//	# Serve the telephony webhooks and admin API
//	morningcoach serve --config morningcoach.yaml
//
//	# Ring someone now
//	morningcoach call +15550001111
//
//	# Replay a transcript through the conversation engine offline
//	morningcoach simulate transcript.txt --offline
//
// Configuration is read from morningcoach.yaml, MORNINGCOACH_* environment
// variables and the conventional credential variables (OPENAI_API_KEY,
// TWILIO_AUTH_TOKEN, ...). See pkg/config.
package main

import (
	"os"

	"github.com/AleutianAI/MorningCoach/pkg/secret"
)

func main() {
	err := rootCmd.Execute()
	secret.Purge()
	if err != nil {
		os.Exit(1)
	}
}
