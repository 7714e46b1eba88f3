package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sophiavoice/relay/internal/event"
)

func TestSheetSink_PostsJSON(t *testing.T) {
	var got event.RelayRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewSheetSink(srv.URL)
	rec := event.RelayRecord{
		ID:        "r1",
		Timestamp: "2026-08-29T12:00:00Z",
		Channel:   event.ChannelSMS,
		From:      "+15551234567",
		Body:      "STOP",
		Source:    "sms",
	}
	if err := sink.Log(context.Background(), rec); err != nil {
		t.Fatalf("log: %v", err)
	}

	if got != rec {
		t.Errorf("sink received %+v, want %+v", got, rec)
	}
}

func TestSheetSink_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sink := NewSheetSink(srv.URL)
	if err := sink.Log(context.Background(), event.RelayRecord{ID: "r1"}); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestSheetSink_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // close immediately so the dial fails

	sink := NewSheetSink(srv.URL)
	if err := sink.Log(context.Background(), event.RelayRecord{ID: "r1"}); err == nil {
		t.Fatal("expected error on refused connection")
	}
}
