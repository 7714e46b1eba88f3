package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sophiavoice/relay/config"
	"github.com/sophiavoice/relay/internal/conversation"
	"github.com/sophiavoice/relay/internal/event"
	"github.com/sophiavoice/relay/internal/persona"
	"github.com/sophiavoice/relay/internal/relay"
	"github.com/sophiavoice/relay/internal/reply"
)

type fakeSheet struct {
	mu      sync.Mutex
	records []event.RelayRecord
	err     error
}

func (f *fakeSheet) Log(ctx context.Context, rec event.RelayRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

func (f *fakeSheet) all() []event.RelayRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.RelayRecord(nil), f.records...)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []relay.OutboundMessage
}

func (f *fakeSender) Send(ctx context.Context, msg relay.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) all() []relay.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relay.OutboundMessage(nil), f.sent...)
}

type fixture struct {
	router     *chi.Mux
	sheet      *fakeSheet
	alerts     *fakeSender
	dispatcher *relay.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sheet := &fakeSheet{}
	alerts := &fakeSender{}
	d := relay.New(sheet, alerts, "+15550009999", nil)

	cfg := &config.Config{}
	h := New(cfg, conversation.New(0), d, reply.New(nil, nil), persona.NewStore(t.TempDir(), nil), nil)

	return &fixture{router: h.Routes(), sheet: sheet, alerts: alerts, dispatcher: d}
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.dispatcher.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func postForm(t *testing.T, r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postSMS(t *testing.T, r http.Handler, from, body string) *httptest.ResponseRecorder {
	t.Helper()
	return postForm(t, r, "/sms", url.Values{"From": {from}, "Body": {body}})
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestStatus_ReportsMissingDependencies(t *testing.T) {
	d := relay.New(nil, nil, "", nil) // nothing configured
	h := New(&config.Config{}, conversation.New(0), d, reply.New(nil, nil), persona.NewStore(t.TempDir(), nil), nil)
	r := h.Routes()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp statusResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Server != "OK" {
		t.Errorf("server = %q", resp.Server)
	}
	if resp.Sheets != "MISSING" || resp.OpenAI != "MISSING" {
		t.Errorf("expected MISSING deps, got sheets=%q openai=%q", resp.Sheets, resp.OpenAI)
	}

	// The webhook must keep answering even with every sink unconfigured.
	smsResp := postSMS(t, r, "+1555", "hello")
	if smsResp.Code != http.StatusOK || !strings.Contains(smsResp.Body.String(), reply.GenericSMSText) {
		t.Errorf("sms with no sinks: code=%d body=%q", smsResp.Code, smsResp.Body.String())
	}
}

func TestSMS_StopKeyword(t *testing.T) {
	f := newFixture(t)

	w := postSMS(t, f.router, "+15551234567", "STOP")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("expected text/xml, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), reply.OptOutText) {
		t.Errorf("expected opt-out text, got %q", w.Body.String())
	}

	f.settle(t)
	records := f.sheet.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 relay record, got %d", len(records))
	}
	if records[0].Body != "STOP" {
		t.Errorf("expected canonical STOP body, got %q", records[0].Body)
	}
	if records[0].From != "+15551234567" || records[0].Channel != event.ChannelSMS {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestSMS_GenericReply(t *testing.T) {
	f := newFixture(t)

	w := postSMS(t, f.router, "+1555", "are you open saturdays?")
	if !strings.Contains(w.Body.String(), reply.GenericSMSText) {
		t.Errorf("expected generic acknowledgment, got %q", w.Body.String())
	}

	f.settle(t)
	records := f.sheet.all()
	if len(records) != 1 || records[0].Body != "are you open saturdays?" {
		t.Errorf("expected original body relayed, got %+v", records)
	}
}

func TestSMS_BookingFlow(t *testing.T) {
	f := newFixture(t)

	postSMS(t, f.router, "+1555", "I'd like to book a time")
	postSMS(t, f.router, "+1555", "Tuesday 3pm")
	third := postSMS(t, f.router, "+1555", "Jane")

	body := third.Body.String()
	if !strings.Contains(body, "Jane") || !strings.Contains(body, "Tuesday 3pm") {
		t.Errorf("confirmation must embed name and time, got %q", body)
	}

	f.settle(t)

	var bookings []event.RelayRecord
	for _, rec := range f.sheet.all() {
		if strings.Contains(rec.Body, "Booking request") {
			bookings = append(bookings, rec)
		}
	}
	if len(bookings) != 1 {
		t.Fatalf("expected exactly one booking record, got %d", len(bookings))
	}
	if !strings.Contains(bookings[0].Body, "Jane") || !strings.Contains(bookings[0].Body, "Tuesday 3pm") {
		t.Errorf("booking record missing fields: %q", bookings[0].Body)
	}

	// A fourth message falls through to the generic reply and relays no
	// further booking.
	fourth := postSMS(t, f.router, "+1555", "thanks!")
	if !strings.Contains(fourth.Body.String(), reply.GenericSMSText) {
		t.Errorf("expected generic reply after DONE, got %q", fourth.Body.String())
	}
}

func TestSMS_SinkFailureDoesNotChangeReply(t *testing.T) {
	ok := newFixture(t)
	okResp := postSMS(t, ok.router, "+1555", "hello")

	failing := newFixture(t)
	failing.sheet.err = errors.New("sheets down")
	failResp := postSMS(t, failing.router, "+1555", "hello")

	if failResp.Code != okResp.Code {
		t.Errorf("status changed on sink failure: %d vs %d", failResp.Code, okResp.Code)
	}
	if failResp.Body.String() != okResp.Body.String() {
		t.Errorf("body changed on sink failure: %q vs %q", failResp.Body.String(), okResp.Body.String())
	}
}

func TestSMS_MalformedFormStillReplies(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/sms", strings.NewReader("%zz=bad"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for malformed form, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Response>") {
		t.Errorf("expected well-formed TwiML, got %q", w.Body.String())
	}
}

func TestVoice_GreetingAndRecord(t *testing.T) {
	f := newFixture(t)

	w := postForm(t, f.router, "/voice", url.Values{"From": {"+1555"}})
	body := w.Body.String()
	if !strings.Contains(body, reply.VoiceGreeting) {
		t.Errorf("expected greeting, got %q", body)
	}
	if !strings.Contains(body, `recordingStatusCallback="/voicemail"`) {
		t.Errorf("expected recording directive, got %q", body)
	}

	f.settle(t)
	records := f.sheet.all()
	if len(records) != 1 || records[0].Body != "Call started" || records[0].Channel != event.ChannelVoice {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestVoicemail_RelaysAndAlerts(t *testing.T) {
	f := newFixture(t)

	w := postForm(t, f.router, "/voicemail", url.Values{
		"From":         {"+1555"},
		"RecordingUrl": {"https://api.example.com/rec/123"},
	})
	if !strings.Contains(w.Body.String(), "<Response/>") {
		t.Errorf("expected empty acknowledgment, got %q", w.Body.String())
	}

	f.settle(t)
	records := f.sheet.all()
	if len(records) != 1 || records[0].Body != "Voicemail: https://api.example.com/rec/123" {
		t.Errorf("unexpected records: %+v", records)
	}
	alerts := f.alerts.all()
	if len(alerts) != 1 || !strings.Contains(alerts[0].Body, "New voicemail from +1555") {
		t.Errorf("unexpected alerts: %+v", alerts)
	}
}

func TestWebLead_JSON(t *testing.T) {
	f := newFixture(t)

	payload := `{"name":"Jane","phone":"+15551234567","message":"call me","utm":"fb-ad-3"}`
	req := httptest.NewRequest(http.MethodPost, "/web-lead", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp["ok"] {
		t.Errorf("expected {ok:true}, got %q", w.Body.String())
	}

	f.settle(t)
	records := f.sheet.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Body != "Jane — call me" {
		t.Errorf("expected synthesized body, got %q", rec.Body)
	}
	if rec.From != "+15551234567" || rec.Channel != event.ChannelWeb || rec.Source != "landing" || rec.UTM != "fb-ad-3" {
		t.Errorf("unexpected record: %+v", rec)
	}

	alerts := f.alerts.all()
	if len(alerts) != 1 || !strings.HasPrefix(alerts[0].Body, "NEW WEB LEAD") {
		t.Errorf("unexpected alerts: %+v", alerts)
	}
}

func TestWebLead_FormEncoded(t *testing.T) {
	f := newFixture(t)

	w := postForm(t, f.router, "/web-lead", url.Values{
		"name": {"Bob"}, "phone": {"+1555"}, "note": {"ring twice"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	f.settle(t)
	records := f.sheet.all()
	if len(records) != 1 || records[0].Body != "Bob — ring twice" {
		t.Errorf("expected note fallback, got %+v", records)
	}
}

func TestWebLead_CORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/web-lead", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS origin header")
	}
}

func TestPersona_Endpoint(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/persona", "/persona.json", "/persona?niche=medspa&pack=booking"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
			t.Errorf("%s: expected JSON object, got %q", path, w.Body.String())
		}
	}
}

func TestTestOwnerAlert(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/test-owner-alert", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	f.settle(t)
	alerts := f.alerts.all()
	if len(alerts) != 1 || !strings.Contains(alerts[0].Body, "Test alert") {
		t.Errorf("unexpected alerts: %+v", alerts)
	}
}

type panickyCompleter struct{}

func (panickyCompleter) Complete(ctx context.Context, text string) (string, error) {
	panic("completer exploded")
}

func TestSMS_ComposerPanicYieldsFallback(t *testing.T) {
	sheet := &fakeSheet{}
	d := relay.New(sheet, nil, "", nil)
	h := New(&config.Config{}, conversation.New(0), d, reply.New(panickyCompleter{}, nil), persona.NewStore(t.TempDir(), nil), nil)
	r := h.Routes()

	w := postSMS(t, r, "+1555", "hello")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite panic, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), reply.FallbackText) {
		t.Errorf("expected fallback text, got %q", w.Body.String())
	}
}
