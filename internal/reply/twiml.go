package reply

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// TwiML rendering for the telephony provider. Hand-assembled rather than
// SDK-generated: the three shapes we emit are small and fixed.

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// TwiMLMessage wraps text in a messaging response.
func TwiMLMessage(text string) string {
	return xmlHeader + "<Response><Message>" + escape(text) + "</Message></Response>"
}

// TwiMLVoicemail speaks greeting, then records a message that reports its
// completion to callbackPath, then hangs up.
func TwiMLVoicemail(greeting, callbackPath string) string {
	return xmlHeader + "<Response>" +
		`<Say voice="alice">` + escape(greeting) + "</Say>" +
		fmt.Sprintf(`<Record maxLength="120" finishOnKey="any" playBeep="true" recordingStatusCallback=%q recordingStatusCallbackMethod="POST"/>`, callbackPath) +
		"<Hangup/>" +
		"</Response>"
}

// TwiMLEmpty is the bare acknowledgment for callbacks that need no reply.
func TwiMLEmpty() string {
	return xmlHeader + "<Response/>"
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
