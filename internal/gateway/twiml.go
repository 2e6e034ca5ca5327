// ABOUTME: TwiML document builders for voice call instructions
// ABOUTME: Say, record, and bridge verbs with XML escaping

package gateway

import (
	"fmt"
	"strings"
)

const twimlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// voicemailMaxSeconds caps how long a caller can record.
const voicemailMaxSeconds = 120

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// sayVoice normalizes a voice name into the Polly form the Say verb
// expects, defaulting to Joanna.
func sayVoice(voice string) string {
	if voice == "" {
		return "Polly.Joanna"
	}
	if strings.HasPrefix(voice, "Polly.") {
		return voice
	}
	return "Polly." + voice
}

// twimlEmpty acknowledges a webhook with no further instructions.
func twimlEmpty() string {
	return twimlHeader + "<Response></Response>"
}

// twimlSay speaks text and hangs up.
func twimlSay(voice, text string) string {
	return fmt.Sprintf(`%s<Response><Say voice="%s">%s</Say></Response>`,
		twimlHeader, sayVoice(voice), xmlEscaper.Replace(text))
}

// twimlGreetRecord speaks a greeting, then records the caller with
// transcription. The transcription posts back to transcribeCallback when
// one is given.
func twimlGreetRecord(voice, greeting, transcribeCallback string) string {
	record := fmt.Sprintf(`<Record maxLength="%d" playBeep="true" transcribe="true"`, voicemailMaxSeconds)
	if transcribeCallback != "" {
		record += fmt.Sprintf(` transcribeCallback="%s"`, xmlEscaper.Replace(transcribeCallback))
	}
	record += "/>"

	return fmt.Sprintf(`%s<Response><Say voice="%s">%s</Say>%s</Response>`,
		twimlHeader, sayVoice(voice), xmlEscaper.Replace(greeting), record)
}

// twimlAnnounceBridge speaks an announcement, then dials the bridge
// number to connect the parties.
func twimlAnnounceBridge(voice, announce, bridgeTo string) string {
	return fmt.Sprintf(`%s<Response><Say voice="%s">%s</Say><Dial>%s</Dial></Response>`,
		twimlHeader, sayVoice(voice), xmlEscaper.Replace(announce), xmlEscaper.Replace(bridgeTo))
}
