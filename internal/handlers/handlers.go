// Package handlers is the HTTP shell around the relay pipeline. Routes stay
// thin: normalize, advance, compose, dispatch — all decisions live in the
// packages underneath.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sophiavoice/relay/config"
	"github.com/sophiavoice/relay/internal/conversation"
	"github.com/sophiavoice/relay/internal/event"
	"github.com/sophiavoice/relay/internal/persona"
	"github.com/sophiavoice/relay/internal/relay"
	"github.com/sophiavoice/relay/internal/reply"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cfg        *config.Config
	tracker    *conversation.Tracker
	dispatcher *relay.Dispatcher
	composer   *reply.Composer
	personas   *persona.Store
	log        *zap.Logger
}

// New creates a new Handler.
func New(cfg *config.Config, tracker *conversation.Tracker, dispatcher *relay.Dispatcher,
	composer *reply.Composer, personas *persona.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		cfg:        cfg,
		tracker:    tracker,
		dispatcher: dispatcher,
		composer:   composer,
		personas:   personas,
		log:        log,
	}
}

// Routes builds the full route table. Shared by main and by tests so the two
// never drift.
func (h *Handler) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors)

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/status", h.Status)

	r.Post("/sms", h.SMS)
	r.Post("/voice", h.Voice)
	r.Get("/voice", h.VoiceInfo)
	r.Post("/voicemail", h.Voicemail)
	r.Post("/web-lead", h.WebLead)

	r.Get("/persona", h.Persona)
	r.Get("/persona.json", h.Persona)

	r.Get("/test-owner-alert", h.TestOwnerAlert)

	return r
}

// cors allows the landing page to POST /web-lead from the browser.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Root serves the liveness text.
// GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Sophia Voice is live"))
}

// Health is the container health check.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type statusResp struct {
	Server   string      `json:"server"`
	OpenAI   string      `json:"openai"`
	Sheets   string      `json:"sheets"`
	Relay    relay.Stats `json:"relay"`
	Sessions int         `json:"sessions"`
}

// Status reports dependency configuration presence and relay counters.
// GET /status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResp{
		Server:   "OK",
		OpenAI:   okOrMissing(h.cfg.OpenAI.APIKey != ""),
		Sheets:   okOrMissing(h.dispatcher.SheetEnabled()),
		Relay:    h.dispatcher.Stats(),
		Sessions: h.tracker.Active(),
	}
	jsonOK(w, http.StatusOK, resp)
}

func okOrMissing(ok bool) string {
	if ok {
		return "OK"
	}
	return "MISSING"
}

// SMS handles the inbound message webhook.
// POST /sms
func (h *Handler) SMS(w http.ResponseWriter, r *http.Request) {
	// A parse failure still gets a well-formed 200: the provider penalizes
	// anything else, so we degrade to empty fields instead.
	_ = r.ParseForm()

	ev := event.Normalize(map[string]string{
		"From": r.FormValue("From"),
		"Body": r.FormValue("Body"),
	}, event.ChannelSMS)

	res := h.tracker.Advance(ev.From, ev.Body)
	out := h.safeCompose(r, ev, res)

	rec := event.NewRecord(ev)
	if out.RelayBody != "" {
		rec = rec.WithBody(out.RelayBody)
	}
	h.dispatcher.Dispatch(rec)

	if res.Completed {
		booking := event.NewRecord(ev).
			WithBody("Booking request — name: " + res.Data["name"] + ", time: " + res.Data["time"])
		h.dispatcher.Dispatch(booking)
		h.dispatcher.Alert("New booking request from " + ev.From +
			": " + res.Data["name"] + " — " + res.Data["time"])
	}

	writeTwiML(w, reply.TwiMLMessage(out.Text))
}

// Voice handles the inbound call webhook: greet, then record a voicemail.
// POST /voice
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	ev := event.Normalize(map[string]string{
		"From": r.FormValue("From"),
		"Body": "Call started",
	}, event.ChannelVoice)
	h.dispatcher.Dispatch(event.NewRecord(ev))

	writeTwiML(w, reply.TwiMLVoicemail(reply.VoiceGreeting, "/voicemail"))
}

// VoiceInfo is a browser sanity check; the provider always POSTs.
// GET /voice
func (h *Handler) VoiceInfo(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Voice endpoint is up. The telephony provider will POST here."))
}

// Voicemail handles the recording-completion callback.
// POST /voicemail
func (h *Handler) Voicemail(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	url := r.FormValue("RecordingUrl")
	ev := event.Normalize(map[string]string{
		"From": r.FormValue("From"),
		"Body": "Voicemail: " + url,
	}, event.ChannelVoice)

	h.dispatcher.Dispatch(event.NewRecord(ev))
	h.dispatcher.Alert("New voicemail from " + ev.From + ": " + url)

	writeTwiML(w, reply.TwiMLEmpty())
}

// WebLead handles the landing-page lead submission, JSON or form-encoded.
// POST /web-lead
func (h *Handler) WebLead(w http.ResponseWriter, r *http.Request) {
	fields := leadFields(r)
	ev := event.Normalize(fields, event.ChannelWeb)

	h.dispatcher.Dispatch(event.NewRecord(ev))

	alert := "NEW WEB LEAD → " + ev.Body
	if phone := fields["phone"]; phone != "" {
		alert += " (" + phone + ")"
	}
	h.dispatcher.Alert(alert)

	jsonOK(w, http.StatusOK, map[string]bool{"ok": true})
}

// leadFields accepts either a JSON object or a form body, because the
// landing page has shipped both over time.
func leadFields(r *http.Request) map[string]string {
	fields := make(map[string]string)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for k, v := range body {
				if s, ok := v.(string); ok {
					fields[k] = s
				}
			}
		}
		return fields
	}

	_ = r.ParseForm()
	for _, key := range []string{"name", "phone", "message", "note", "utm"} {
		fields[key] = r.FormValue(key)
	}
	return fields
}

// Persona serves the assembled persona document.
// GET /persona and GET /persona.json
func (h *Handler) Persona(w http.ResponseWriter, r *http.Request) {
	doc := h.personas.Document(r.URL.Query().Get("niche"), r.URL.Query().Get("pack"))
	jsonOK(w, http.StatusOK, doc)
}

// TestOwnerAlert fires a test alert so operators can verify credentials.
// GET /test-owner-alert
func (h *Handler) TestOwnerAlert(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Alert("Test alert from Sophia Voice")
	jsonOK(w, http.StatusOK, map[string]bool{"ok": true})
}

// safeCompose wraps the composer so an unexpected failure still yields a
// fixed acknowledgment; webhook routes have no fatal error path.
func (h *Handler) safeCompose(r *http.Request, ev event.Event, res conversation.Result) (out reply.Outbound) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Error("compose panicked, using fallback reply",
				zap.Any("panic", p),
				zap.String("channel", string(ev.Channel)))
			out = reply.Outbound{Text: reply.FallbackText}
		}
	}()
	return h.composer.Compose(r.Context(), ev, res)
}

// --- helpers ---

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func jsonOK(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
