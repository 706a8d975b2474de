package alexa

import (
	"strings"
)

// ResponseEnvelope is the body returned to the platform
type ResponseEnvelope struct {
	Version           string         `json:"version"`
	SessionAttributes map[string]any `json:"sessionAttributes,omitempty"`
	Response          *Response      `json:"response"`
}

// Response is the speech and session directive part of the reply
type Response struct {
	OutputSpeech     *OutputSpeech `json:"outputSpeech,omitempty"`
	Reprompt         *Reprompt     `json:"reprompt,omitempty"`
	ShouldEndSession *bool         `json:"shouldEndSession,omitempty"`
}

// OutputSpeech is speech markup for the device to render
type OutputSpeech struct {
	Type string `json:"type"`
	SSML string `json:"ssml"`
}

// Reprompt is spoken if the user stays silent
type Reprompt struct {
	OutputSpeech *OutputSpeech `json:"outputSpeech"`
}

// NewResponseEnvelope wraps a response. Empty attribute maps are omitted.
func NewResponseEnvelope(resp *Response, attrs map[string]any) *ResponseEnvelope {
	if resp == nil {
		resp = &Response{}
	}
	if len(attrs) == 0 {
		attrs = nil
	}
	return &ResponseEnvelope{
		Version:           "1.0",
		SessionAttributes: attrs,
		Response:          resp,
	}
}

// ResponseBuilder assembles a Response
type ResponseBuilder struct {
	resp Response
}

// NewResponseBuilder returns an empty builder
func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{}
}

// Speak sets the output speech
func (b *ResponseBuilder) Speak(ssml string) *ResponseBuilder {
	b.resp.OutputSpeech = ssmlSpeech(ssml)
	return b
}

// Reprompt sets the reprompt speech and keeps the session open
func (b *ResponseBuilder) Reprompt(ssml string) *ResponseBuilder {
	b.resp.Reprompt = &Reprompt{OutputSpeech: ssmlSpeech(ssml)}
	return b.WithShouldEndSession(false)
}

// WithShouldEndSession sets the session directive explicitly
func (b *ResponseBuilder) WithShouldEndSession(end bool) *ResponseBuilder {
	b.resp.ShouldEndSession = &end
	return b
}

// Response returns a copy of the built response
func (b *ResponseBuilder) Response() *Response {
	resp := b.resp
	return &resp
}

func ssmlSpeech(ssml string) *OutputSpeech {
	return &OutputSpeech{
		Type: "SSML",
		SSML: "<speak>" + trimSpeak(ssml) + "</speak>",
	}
}

func trimSpeak(ssml string) string {
	s := strings.TrimSpace(ssml)
	if strings.HasPrefix(s, "<speak>") && strings.HasSuffix(s, "</speak>") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "<speak>"), "</speak>")
	}
	return s
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeSSML escapes markup characters in user-provided text
func EscapeSSML(text string) string {
	return ssmlEscaper.Replace(text)
}
