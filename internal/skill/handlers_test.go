package skill

import (
	"context"
	"strings"
	"testing"

	"github.com/lexiqai/speech-practice/internal/alexa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSkillID = "amzn1.ask.skill.test"

func intentEnvelope(name string, slots map[string]string) *alexa.RequestEnvelope {
	intent := &alexa.Intent{Name: name, Slots: map[string]alexa.Slot{}}
	for k, v := range slots {
		intent.Slots[k] = alexa.Slot{Name: k, Value: v}
	}
	return &alexa.RequestEnvelope{
		Version: "1.0",
		Session: &alexa.Session{
			SessionID:   "session-1",
			Application: alexa.Application{ApplicationID: testSkillID},
		},
		Request: &alexa.Request{
			Type:      alexa.IntentRequest,
			RequestID: "req-1",
			Intent:    intent,
		},
	}
}

func requestEnvelope(requestType string) *alexa.RequestEnvelope {
	return &alexa.RequestEnvelope{
		Version: "1.0",
		Session: &alexa.Session{
			SessionID:   "session-1",
			Application: alexa.Application{ApplicationID: testSkillID},
		},
		Request: &alexa.Request{Type: requestType, RequestID: "req-1"},
	}
}

func invoke(t *testing.T, env *alexa.RequestEnvelope) *alexa.ResponseEnvelope {
	t.Helper()
	resp, err := NewPracticeSkill(testSkillID).Invoke(context.Background(), env)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Response)
	return resp
}

func speech(resp *alexa.ResponseEnvelope) string {
	if resp.Response.OutputSpeech == nil {
		return ""
	}
	return resp.Response.OutputSpeech.SSML
}

func reprompt(resp *alexa.ResponseEnvelope) string {
	if resp.Response.Reprompt == nil {
		return ""
	}
	return resp.Response.Reprompt.OutputSpeech.SSML
}

func endsSession(resp *alexa.ResponseEnvelope) bool {
	return resp.Response.ShouldEndSession != nil && *resp.Response.ShouldEndSession
}

func TestLaunchHandler(t *testing.T) {
	resp := invoke(t, requestEnvelope(alexa.LaunchRequest))

	assert.Equal(t, "<speak>"+welcomeSpeech+"</speak>", speech(resp))
	assert.Equal(t, "<speak>"+askWordPrompt+"</speak>", reprompt(resp))
	assert.False(t, endsSession(resp))
	assert.Equal(t, welcomeSpeech, resp.SessionAttributes[AttrLastSpeech])
}

func TestPracticeHandler(t *testing.T) {
	resp := invoke(t, intentEnvelope(PracticeIntent, map[string]string{WordSlot: "Hola"}))

	want := "<speak>Vamos a practicar. Escucha y repite después de mí: " +
		`ho<break time="500ms"/>la` +
		". ¿Te gustaría practicar otra palabra?</speak>"
	assert.Equal(t, want, speech(resp))
	assert.Equal(t, "<speak>"+yesNoPrompt+"</speak>", reprompt(resp))
	assert.False(t, endsSession(resp))
	assert.Equal(t, "hola", resp.SessionAttributes[AttrLastWord])
}

func TestPracticeHandler_GoldenWord(t *testing.T) {
	resp := invoke(t, intentEnvelope(PracticeIntent, map[string]string{WordSlot: "murciélago"}))

	assert.Contains(t, speech(resp),
		`mu<break time="500ms"/>rcié<break time="500ms"/>la<break time="500ms"/>go`)
}

func TestPracticeHandler_MissingSlot(t *testing.T) {
	resp := invoke(t, intentEnvelope(PracticeIntent, nil))

	assert.Equal(t, "<speak>"+missingWord+"</speak>", speech(resp))
	assert.Equal(t, "<speak>"+askWordPrompt+"</speak>", reprompt(resp))
}

func TestPracticeHandler_InvalidWord(t *testing.T) {
	resp := invoke(t, intentEnvelope(PracticeIntent, map[string]string{WordSlot: "   "}))

	assert.Equal(t, "<speak>"+wordError+"</speak>", speech(resp))
	assert.Equal(t, "<speak>"+repeatWord+"</speak>", reprompt(resp))
	assert.False(t, endsSession(resp))
}

func TestPracticeSpeech_EscapesMarkup(t *testing.T) {
	got := PracticeSpeech([]string{"a&", "<b"})
	assert.Contains(t, got, `a&amp;<break time="500ms"/>&lt;b`)
}

func TestConfirmHandler(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		speech string
		prompt string
	}{
		{"yes with accent", "Sí", anotherWord, whichWord},
		{"yes without accent", "si", anotherWord, whichWord},
		{"no", " NO ", goodbye, ""},
		{"unknown", "quizás", unknownAnswer, confirmAgain},
		{"empty", "", unknownAnswer, confirmAgain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := map[string]string{}
			if tt.answer != "" {
				slots[AnswerSlot] = tt.answer
			}
			resp := invoke(t, intentEnvelope(ConfirmIntent, slots))

			assert.Equal(t, "<speak>"+tt.speech+"</speak>", speech(resp))
			if tt.prompt == "" {
				assert.Nil(t, resp.Response.Reprompt)
				assert.True(t, endsSession(resp))
			} else {
				assert.Equal(t, "<speak>"+tt.prompt+"</speak>", reprompt(resp))
			}
		})
	}
}

func TestRepeatHandler(t *testing.T) {
	env := intentEnvelope(alexa.RepeatIntent, nil)
	resp := invoke(t, env)
	assert.Equal(t, "<speak>"+nothingToSay+"</speak>", speech(resp))

	practice := invoke(t, intentEnvelope(PracticeIntent, map[string]string{WordSlot: "perro"}))
	env.Session.Attributes = practice.SessionAttributes

	resp = invoke(t, env)
	assert.Equal(t, speech(practice), speech(resp))
	assert.Equal(t, practice.SessionAttributes[AttrLastSpeech], resp.SessionAttributes[AttrLastSpeech])
}

func TestHelpHandler(t *testing.T) {
	resp := invoke(t, intentEnvelope(alexa.HelpIntent, nil))

	assert.Equal(t, "<speak>"+helpSpeech+"</speak>", speech(resp))
	assert.Equal(t, "<speak>"+whichWord+"</speak>", reprompt(resp))
}

func TestStopHandler(t *testing.T) {
	for _, intent := range []string{alexa.StopIntent, alexa.CancelIntent} {
		t.Run(intent, func(t *testing.T) {
			resp := invoke(t, intentEnvelope(intent, nil))

			assert.Equal(t, "<speak>"+goodbye+"</speak>", speech(resp))
			assert.True(t, endsSession(resp))
		})
	}
}

func TestFallbackHandler(t *testing.T) {
	resp := invoke(t, intentEnvelope(alexa.FallbackIntent, nil))

	assert.Equal(t, "<speak>"+fallbackSpeech+"</speak>", speech(resp))
	assert.False(t, endsSession(resp))
}

func TestSessionEndedHandler(t *testing.T) {
	env := requestEnvelope(alexa.SessionEndedRequest)
	env.Request.Reason = "ERROR"
	env.Request.Error = &alexa.RequestError{Type: "INVALID_RESPONSE", Message: "bad"}

	resp := invoke(t, env)
	assert.Nil(t, resp.Response.OutputSpeech)
	assert.Nil(t, resp.Response.Reprompt)
}

func TestUnknownIntent_UsesErrorHandler(t *testing.T) {
	resp := invoke(t, intentEnvelope("SomethingElseIntent", nil))

	assert.Equal(t, "<speak>"+errorSpeech+"</speak>", speech(resp))
	assert.Equal(t, "<speak>"+errorPrompt+"</speak>", reprompt(resp))
}

func TestSessionAttributes_Echoed(t *testing.T) {
	env := intentEnvelope(alexa.FallbackIntent, nil)
	env.Session.Attributes = map[string]any{"counter": float64(3)}

	resp := invoke(t, env)
	assert.Equal(t, float64(3), resp.SessionAttributes["counter"])
}

func TestInvoke_SkillIDMismatch(t *testing.T) {
	env := requestEnvelope(alexa.LaunchRequest)
	env.Session.Application.ApplicationID = "amzn1.ask.skill.other"

	_, err := NewPracticeSkill(testSkillID).Invoke(context.Background(), env)
	assert.ErrorIs(t, err, ErrSkillIDMismatch)

	_, err = NewPracticeSkill("").Invoke(context.Background(), env)
	assert.NoError(t, err)
}

func TestInvoke_Malformed(t *testing.T) {
	s := NewPracticeSkill("")

	_, err := s.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMalformedRequest)

	_, err = s.Invoke(context.Background(), &alexa.RequestEnvelope{})
	assert.ErrorIs(t, err, ErrMalformedRequest)

	_, err = s.Invoke(context.Background(), &alexa.RequestEnvelope{Request: &alexa.Request{}})
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

type panicHandler struct{}

func (panicHandler) CanHandle(*Input) bool { return true }

func (panicHandler) Handle(context.Context, *Input) (*alexa.Response, error) {
	panic("boom")
}

func TestInvoke_RecoversPanics(t *testing.T) {
	s := NewBuilder().
		AddRequestHandlers(panicHandler{}).
		AddErrorHandlers(CatchAllErrorHandler{}).
		Build()

	resp, err := s.Invoke(context.Background(), requestEnvelope(alexa.LaunchRequest))
	require.NoError(t, err)
	assert.Equal(t, "<speak>"+errorSpeech+"</speak>", speech(resp))
}

func TestInvoke_NoErrorHandler(t *testing.T) {
	s := NewBuilder().AddRequestHandlers(LaunchHandler{}).Build()

	_, err := s.Invoke(context.Background(), intentEnvelope(alexa.HelpIntent, nil))
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.True(t, strings.Contains(err.Error(), alexa.HelpIntent))
}

func TestInput_Attributes(t *testing.T) {
	in := &Input{attrs: map[string]any{"a": "x", "n": 1, "empty": ""}}

	s, ok := in.StringAttribute("a")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = in.StringAttribute("n")
	assert.False(t, ok)
	_, ok = in.StringAttribute("empty")
	assert.False(t, ok)

	in.SetSessionAttributes(map[string]any{"b": "y"})
	assert.Equal(t, map[string]any{"b": "y"}, in.SessionAttributes())
}
