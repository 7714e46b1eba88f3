// Package reply decides what goes back to the webhook caller: compliance
// auto-replies, booking prompts, or the channel's generic acknowledgment.
package reply

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sophiavoice/relay/internal/ai"
	"github.com/sophiavoice/relay/internal/conversation"
	"github.com/sophiavoice/relay/internal/event"
)

// Fixed reply copy. Compliance texts are carrier-mandated wording and must
// not be AI-composed.
const (
	OptOutText      = "You have opted out of Sophia Voice messages. Reply START to resubscribe."
	HelpText        = "Sophia Voice AI Receptionist. For help email hello@sophiavoice.ai. Msg&Data rates may apply. Reply STOP to opt out."
	ResubscribeText = "Welcome back to Sophia Voice updates. Reply STOP to opt out anytime."

	GenericSMSText = "Thanks! I'm Sophia. I've noted your message and will follow up."
	VoiceGreeting  = "Hello! This is Sophia, your AI receptionist. Please leave a message after the tone. Press any key to finish."

	// FallbackText replaces the reply when composing fails unexpectedly.
	FallbackText = "Thanks for reaching out! We'll follow up shortly."
)

// optOutKeywords all collapse to the canonical "STOP" relay body.
var optOutKeywords = map[string]bool{
	"STOP":        true,
	"UNSUBSCRIBE": true,
	"CANCEL":      true,
	"END":         true,
	"QUIT":        true,
}

// Outbound is the composed response for one inbound event.
type Outbound struct {
	// Text is the reply body. Empty for WEB, where the response is a
	// structured acknowledgment with no message.
	Text string

	// RelayBody overrides the event body in the relayed record. Compliance
	// keywords set it to the canonical keyword; otherwise it is empty and
	// the original body is relayed.
	RelayBody string
}

// Composer produces outbound replies. With a nil Completer it is fully
// deterministic: same (event, state result) always yields the same text.
type Composer struct {
	ai  ai.Completer
	log *zap.Logger
}

// New creates a Composer. completer may be nil to disable AI-composed
// acknowledgments.
func New(completer ai.Completer, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{ai: completer, log: log}
}

// Compose picks the reply by precedence: SMS compliance keyword, then a
// booking prompt from the tracker, then the channel generic acknowledgment.
func (c *Composer) Compose(ctx context.Context, ev event.Event, res conversation.Result) Outbound {
	if ev.Channel == event.ChannelSMS {
		if out, ok := compliance(ev.Body); ok {
			return out
		}
	}

	if res.Prompt != "" {
		return Outbound{Text: res.Prompt}
	}

	switch ev.Channel {
	case event.ChannelVoice:
		return Outbound{Text: VoiceGreeting}
	case event.ChannelWeb:
		return Outbound{}
	default:
		return Outbound{Text: c.genericSMS(ctx, ev.Body)}
	}
}

// compliance matches the fixed keyword set, exact and case-insensitive.
// Regulatory keywords win over everything, including an in-flight booking.
func compliance(body string) (Outbound, bool) {
	upper := strings.ToUpper(strings.TrimSpace(body))
	switch {
	case optOutKeywords[upper]:
		return Outbound{Text: OptOutText, RelayBody: "STOP"}, true
	case upper == "HELP":
		return Outbound{Text: HelpText, RelayBody: "HELP"}, true
	case upper == "START":
		return Outbound{Text: ResubscribeText, RelayBody: "START"}, true
	}
	return Outbound{}, false
}

// genericSMS asks the completion collaborator for a reply when one is
// configured; any failure falls back to the fixed acknowledgment.
func (c *Composer) genericSMS(ctx context.Context, body string) string {
	if c.ai == nil || body == "" {
		return GenericSMSText
	}
	text, err := c.ai.Complete(ctx, body)
	if err != nil {
		c.log.Warn("completion failed, using fixed reply", zap.Error(err))
		return GenericSMSText
	}
	return text
}
