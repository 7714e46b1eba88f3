// sophia-relay - AI receptionist webhook relay
// Copyright (C) 2026  sophia-relay contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// Package event defines the canonical inbound event record and the
// normalization rules that turn raw webhook fields into one.
package event

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel identifies how an event reached us.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelVoice Channel = "VOICE"
	ChannelWeb   Channel = "WEB"
)

// UnknownSender is the sentinel used when a webhook omits the sender field.
const UnknownSender = "Unknown"

// Event is the normalized representation of one inbound interaction.
// Timestamp is assigned at normalization and immutable thereafter.
type Event struct {
	Channel   Channel
	From      string
	Body      string
	Source    string
	UTM       string
	Timestamp string // RFC 3339 UTC
}

// RelayRecord is the payload shape forwarded to the logging sink.
// It is derived 1:1 from an Event and is append-only: no sink ever
// updates or deletes a record.
//
// JSON schema:
//
//	{
//	  "id":        "550e8400-e29b-41d4-a716-446655440000",
//	  "timestamp": "2026-08-29T12:00:00Z",
//	  "channel":   "SMS",
//	  "from":      "+15551234567",
//	  "body":      "hello",
//	  "source":    "sms",
//	  "utm":       "fb-ad-3"
//	}
type RelayRecord struct {
	// ID is a server-generated UUID used for correlation, so a delivery
	// outcome in the logs can be matched to the record that produced it.
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Channel   Channel `json:"channel"`
	From      string  `json:"from"`
	Body      string  `json:"body"`
	Source    string  `json:"source"`
	UTM       string  `json:"utm,omitempty"`
}

// NewRecord derives the relay payload for ev.
func NewRecord(ev Event) RelayRecord {
	return RelayRecord{
		ID:        uuid.New().String(),
		Timestamp: ev.Timestamp,
		Channel:   ev.Channel,
		From:      ev.From,
		Body:      ev.Body,
		Source:    ev.Source,
		UTM:       ev.UTM,
	}
}

// WithBody returns a copy of r carrying body instead of the original text.
// Compliance keywords are relayed this way: the sink sees the canonical
// keyword, not whatever casing or padding the sender typed.
func (r RelayRecord) WithBody(body string) RelayRecord {
	r.Body = body
	return r
}

// Normalize converts raw webhook fields into an Event. It never fails:
// missing or malformed fields degrade to defaults because the webhook
// caller must always receive a well-formed 200 response.
//
// The sender comes from the channel-specific field ("From" for SMS and
// voice, "phone" for web) and defaults to UnknownSender when absent or
// blank after trimming. Web bodies are synthesized as "<name> — <message>".
func Normalize(fields map[string]string, ch Channel) Event {
	ev := Event{
		Channel:   ch,
		Timestamp: now(),
	}

	switch ch {
	case ChannelWeb:
		ev.Source = "landing"
		ev.From = orUnknown(fields["phone"])
		name := strings.TrimSpace(fields["name"])
		if name == "" {
			name = UnknownSender
		}
		message := strings.TrimSpace(fields["message"])
		if message == "" {
			message = strings.TrimSpace(fields["note"])
		}
		ev.Body = name + " — " + message
		ev.UTM = fields["utm"]
	case ChannelVoice:
		ev.Source = "voice"
		ev.From = orUnknown(fields["From"])
		ev.Body = strings.TrimSpace(fields["Body"])
	default:
		ev.Source = "sms"
		ev.From = orUnknown(fields["From"])
		ev.Body = strings.TrimSpace(fields["Body"])
	}

	return ev
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownSender
	}
	return s
}

var (
	clockMu sync.Mutex
	lastTS  time.Time
)

// now returns the current UTC instant, clamped so timestamps never
// decrease within a process even if the wall clock steps backwards.
func now() string {
	clockMu.Lock()
	defer clockMu.Unlock()
	t := time.Now().UTC()
	if t.Before(lastTS) {
		t = lastTS
	}
	lastTS = t
	return t.Format(time.RFC3339)
}
