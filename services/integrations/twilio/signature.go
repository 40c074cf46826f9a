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
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	"github.com/AleutianAI/MorningCoach/pkg/secret"
)

// SignatureHeader carries the request signature on every webhook.
const SignatureHeader = "X-Twilio-Signature"

// Signature computes the webhook signature for a POST to fullURL.
//
// The signed string is the full URL followed by every form parameter,
// sorted by name, each written as name then value with no separator.
func Signature(token []byte, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, token)
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether sig matches the expected signature. An
// empty token or signature never validates.
func ValidSignature(token *secret.Secret, fullURL string, params url.Values, sig string) bool {
	if sig == "" {
		return false
	}
	valid := false
	_ = token.Use(func(t []byte) error {
		expected := Signature(t, fullURL, params)
		valid = hmac.Equal([]byte(expected), []byte(sig))
		return nil
	})
	return valid
}
