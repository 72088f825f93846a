// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is how far a signature timestamp may drift from the
// server clock before the request is treated as a replay.
const DefaultTolerance = 5 * time.Minute

// ErrVerification covers every signature failure: malformed header, bad
// timestamp, drift beyond tolerance, or digest mismatch. Callers get no
// finer detail; the distinction stays in server logs only.
var ErrVerification = errors.New("webhook signature verification failed")

// verifySignature checks a provider signature header of the form
//
//	t=<unix seconds>,v1=<hex hmac>[,v1=<hex hmac>...]
//
// against HMAC-SHA256(secret, "<t>.<body>"). Multiple v1 entries appear
// during secret rotation; any one matching digest passes. Comparison is
// constant-time.
func verifySignature(body []byte, header string, secret []byte, tolerance time.Duration, now time.Time) error {
	var timestamp string
	var candidates [][]byte

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}

	if timestamp == "" || len(candidates) == 0 {
		return ErrVerification
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrVerification
	}
	drift := now.Sub(time.Unix(ts, 0))
	if drift < -tolerance || drift > tolerance {
		return ErrVerification
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		if hmac.Equal(expected, candidate) {
			return nil
		}
	}
	return ErrVerification
}
