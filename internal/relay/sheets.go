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

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sophiavoice/relay/internal/event"
)

// SheetSink appends RelayRecords to a spreadsheet webapp (a Google Apps
// Script /exec endpoint or anything accepting the same JSON POST) using
// stdlib net/http only — no SDK dependency.
type SheetSink struct {
	url        string
	httpClient *http.Client
}

// NewSheetSink creates a SheetSink posting to url.
func NewSheetSink(url string) *SheetSink {
	return &SheetSink{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Log POSTs rec as JSON. It returns a non-nil error if the HTTP request
// fails or the webapp returns a non-2xx status; the dispatcher decides what
// to do with it.
func (s *SheetSink) Log(ctx context.Context, rec event.RelayRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sheets returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
