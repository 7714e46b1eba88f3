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

// Package relay fans normalized events out to the configured external sinks:
// a spreadsheet logger and an owner-alert SMS channel. Sink failure is
// contained here and never reaches the webhook caller.
package relay

// OutboundMessage is the canonical schema for owner-alert texts, both on the
// direct SMS path and on the alert-outbox Kafka topic.
//
// JSON schema:
//
//	{
//	  "id":   "550e8400-e29b-41d4-a716-446655440000",
//	  "to":   "+15551234567",
//	  "body": "NEW WEB LEAD → Jane (+15559876543) — call me"
//	}
type OutboundMessage struct {
	// ID is a generated UUID used for idempotency and correlation. The
	// alert-sender logs it alongside the delivery outcome so duplicates can
	// be detected when replaying a partition.
	ID string `json:"id"`

	// To is the E.164-formatted destination phone number.
	To string `json:"to"`

	// Body is the alert text, already truncated to the channel limit.
	Body string `json:"body"`
}
