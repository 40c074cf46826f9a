// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/xml"
	"fmt"
)

const (
	// ListenTimeoutSeconds is how long the provider waits for speech to start.
	ListenTimeoutSeconds = 8

	speechLanguage = "en-US"
)

// twimlDocument is the root of a TwiML response. Field order is output
// order: a listening reply is a Gather wrapping the Say, a closing reply is
// a Say followed by Hangup.
type twimlDocument struct {
	XMLName xml.Name     `xml:"Response"`
	Gather  *twimlGather `xml:"Gather,omitempty"`
	Say     *twimlSay    `xml:"Say,omitempty"`
	Hangup  *struct{}    `xml:"Hangup,omitempty"`
}

type twimlSay struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type twimlGather struct {
	Input               string    `xml:"input,attr"`
	Action              string    `xml:"action,attr"`
	Method              string    `xml:"method,attr"`
	Timeout             int       `xml:"timeout,attr"`
	SpeechTimeout       string    `xml:"speechTimeout,attr"`
	Language            string    `xml:"language,attr"`
	ActionOnEmptyResult bool      `xml:"actionOnEmptyResult,attr"`
	Say                 *twimlSay `xml:"Say,omitempty"`
}

// RenderTwiML renders a Response as a TwiML document.
//
// # Inputs
//
//   - resp: What to say and whether to listen or hang up.
//   - voice: TTS voice name. Empty uses the provider default.
//   - gatherAction: URL the provider posts the speech result to.
//
// # Outputs
//
//   - []byte: The XML document including the XML header.
//   - error: Non-nil only if marshaling fails.
func RenderTwiML(resp Response, voice, gatherAction string) ([]byte, error) {
	var doc twimlDocument
	var say *twimlSay
	if resp.Say != "" {
		say = &twimlSay{Voice: voice, Text: resp.Say}
	}

	if resp.Listen && !resp.Hangup {
		doc.Gather = &twimlGather{
			Input:               "speech",
			Action:              gatherAction,
			Method:              "POST",
			Timeout:             ListenTimeoutSeconds,
			SpeechTimeout:       "auto",
			Language:            speechLanguage,
			ActionOnEmptyResult: true,
			Say:                 say,
		}
	} else {
		doc.Say = say
		doc.Hangup = &struct{}{}
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
