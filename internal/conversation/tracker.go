// Package conversation tracks the per-sender booking exchange: a fixed-order
// form fill that collects a preferred time, then a name.
package conversation

import (
	"strings"
	"sync"
	"time"
)

// Step is the cursor of a sender's guided exchange.
type Step string

const (
	StepNone         Step = "NONE"
	StepAwaitingTime Step = "AWAITING_TIME"
	StepAwaitingName Step = "AWAITING_NAME"
	StepDone         Step = "DONE"
)

// Result describes the outcome of advancing a sender's session.
type Result struct {
	Step   Step
	Prompt string // empty means the caller falls through to the generic reply

	// Completed is true exactly once, on the transition into StepDone.
	// It signals the one-time relay of the finished booking.
	Completed bool

	// Data holds the collected fields ("time", "name") once Completed.
	Data map[string]string
}

type session struct {
	step     Step
	data     map[string]string
	lastSeen time.Time
}

// Tracker owns all conversation state. No other component mutates sessions.
//
// Sessions are keyed by sender identity and expire after an idle TTL so the
// map stays bounded; expiry is the only path back to StepNone.
type Tracker struct {
	mu        sync.Mutex
	sessions  map[string]*session
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// New creates a Tracker. ttl <= 0 disables expiry.
func New(ttl time.Duration) *Tracker {
	return &Tracker{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Advance feeds one inbound message into sender's session and returns the
// resulting state plus an optional prompt. The whole read-modify-write runs
// under one lock, so two near-simultaneous messages from the same sender
// cannot skip a step.
func (t *Tracker) Advance(sender, text string) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	nowT := t.now()
	t.sweepLocked(nowT)

	s := t.sessions[sender]
	if s != nil && t.expired(s, nowT) {
		delete(t.sessions, sender)
		s = nil
	}

	if s == nil {
		if !isBookingTrigger(text) {
			return Result{Step: StepNone}
		}
		t.sessions[sender] = &session{
			step:     StepAwaitingTime,
			data:     make(map[string]string),
			lastSeen: nowT,
		}
		return Result{
			Step:   StepAwaitingTime,
			Prompt: "Great — I can help you book an appointment. What day and time work best for you?",
		}
	}

	s.lastSeen = nowT

	switch s.step {
	case StepAwaitingTime:
		s.data["time"] = text
		s.step = StepAwaitingName
		return Result{
			Step:   StepAwaitingName,
			Prompt: "Perfect. And what name should I put the appointment under?",
		}
	case StepAwaitingName:
		s.data["name"] = text
		s.step = StepDone
		data := map[string]string{"time": s.data["time"], "name": s.data["name"]}
		return Result{
			Step:      StepDone,
			Prompt:    "Thanks " + data["name"] + "! I have you down for " + data["time"] + ". We'll text you shortly to confirm.",
			Completed: true,
			Data:      data,
		}
	default:
		// DONE: no further transitions, generic handling takes over.
		return Result{Step: StepDone}
	}
}

// Active returns the number of live sessions.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) expired(s *session, now time.Time) bool {
	return t.ttl > 0 && now.Sub(s.lastSeen) > t.ttl
}

// sweepLocked drops idle sessions. It runs at most every ttl/4 so a busy
// process is not scanning the map on every message.
func (t *Tracker) sweepLocked(now time.Time) {
	if t.ttl <= 0 || now.Sub(t.lastSweep) < t.ttl/4 {
		return
	}
	t.lastSweep = now
	for sender, s := range t.sessions {
		if t.expired(s, now) {
			delete(t.sessions, sender)
		}
	}
}

// isBookingTrigger reports whether text starts a booking exchange.
// First keyword match wins; matching is case-insensitive substring.
func isBookingTrigger(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "book") || strings.Contains(lower, "appointment")
}
