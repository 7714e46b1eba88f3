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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// Sender is the interface any alert backend must implement. Keeping it
// minimal means backends are trivially swappable: the direct Twilio REST
// client and the Kafka outbox publisher both satisfy it.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// TwilioSender sends SMS via the Twilio Messages REST API using stdlib
// net/http only — no SDK dependency.
type TwilioSender struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// NewTwilioSender creates a TwilioSender ready to use.
//
// accountSID/authToken are the Twilio account credentials; fromNumber is the
// provisioned number in E.164 format (e.g. "+15550001234").
func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    twilioAPIBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// twilioResponse captures just the fields we care about for diagnostics.
type twilioResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Send dispatches msg through POST /Accounts/{SID}/Messages.json. It returns
// a non-nil error if the request fails, Twilio returns a non-2xx status, or
// the response carries an error code.
func (s *TwilioSender) Send(ctx context.Context, msg OutboundMessage) error {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", s.fromNumber)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twilio returned %d: %s", resp.StatusCode, string(respBody))
	}

	var twResp twilioResponse
	if err := json.Unmarshal(respBody, &twResp); err == nil && twResp.ErrorCode != nil {
		return fmt.Errorf("twilio error %d: %s", *twResp.ErrorCode, twResp.ErrorMessage)
	}

	return nil
}
