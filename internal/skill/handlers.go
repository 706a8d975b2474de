package skill

import (
	"context"
	"fmt"

	"github.com/lexiqai/speech-practice/internal/alexa"
	"github.com/lexiqai/speech-practice/internal/normalize"
	"github.com/lexiqai/speech-practice/internal/observability"
	"github.com/lexiqai/speech-practice/internal/syllable"
)

// Custom intents and their slots
const (
	PracticeIntent = "PracticarIntent"
	ConfirmIntent  = "ConfirmarPracticaIntent"

	WordSlot   = "palabra"
	AnswerSlot = "respuesta"
)

// Session attribute keys
const (
	AttrLastSpeech = "lastSpeech"
	AttrLastWord   = "lastWord"
)

// Spoken prompts
const (
	welcomeSpeech  = "¡Hola! Bienvenido a tu asistente para practicar hablar. Dime una palabra y te ayudaré a practicar pronunciándola por sílabas."
	askWordPrompt  = "Por favor dime una palabra para practicar."
	missingWord    = "No entendí la palabra. Por favor dime una palabra para practicar."
	practiceFormat = "Vamos a practicar. Escucha y repite después de mí: %s. ¿Te gustaría practicar otra palabra?"
	yesNoPrompt    = `Por favor, di "sí" o "no".`
	wordError      = "Hubo un error al procesar tu palabra. Por favor intenta de nuevo."
	repeatWord     = "¿Podrías repetir la palabra?"
	anotherWord    = "Perfecto, dime otra palabra para practicar."
	whichWord      = "¿Qué palabra quieres practicar?"
	goodbye        = "Entendido. Cuando quieras practicar de nuevo, solo pídemelo. ¡Hasta luego!"
	unknownAnswer  = `No entendí tu respuesta. Por favor, di "sí" para continuar o "no" para salir.`
	confirmAgain   = `¿Quieres practicar otra palabra? Di "sí" o "no".`
	helpSpeech     = "Dime una palabra en español y la pronunciaré por sílabas para que la repitas después de mí. ¿Qué palabra quieres practicar?"
	nothingToSay   = "Todavía no hemos practicado ninguna palabra. Dime una palabra para practicar."
	fallbackSpeech = "No entendí eso. Puedes decirme una palabra y la practicamos por sílabas."
	errorSpeech    = "Lo siento, ocurrió un problema. Por favor intenta de nuevo."
	errorPrompt    = "Por favor intenta de nuevo."
)

// NewPracticeSkill returns the syllable practice conversation
func NewPracticeSkill(skillID string) *Skill {
	return NewBuilder().
		AddRequestHandlers(
			LaunchHandler{},
			PracticeHandler{},
			ConfirmHandler{},
			RepeatHandler{},
			HelpHandler{},
			StopHandler{},
			FallbackHandler{},
			SessionEndedHandler{},
		).
		AddErrorHandlers(CatchAllErrorHandler{}).
		WithSkillID(skillID).
		Build()
}

func isIntent(in *Input, names ...string) bool {
	name := in.Envelope.IntentName()
	for _, n := range names {
		if name == n {
			return true
		}
	}
	return false
}

func remember(in *Input, speech string) {
	in.SetSessionAttributes(map[string]any{AttrLastSpeech: speech})
}

// LaunchHandler greets the user when the skill is opened
type LaunchHandler struct{}

func (LaunchHandler) CanHandle(in *Input) bool {
	return in.Envelope.RequestType() == alexa.LaunchRequest
}

func (LaunchHandler) Handle(ctx context.Context, in *Input) (*alexa.Response, error) {
	remember(in, welcomeSpeech)
	return alexa.NewResponseBuilder().
		Speak(welcomeSpeech).
		Reprompt(askWordPrompt).
		Response(), nil
}

// PracticeHandler reads the requested word back syllable by syllable
type PracticeHandler struct{}

func (PracticeHandler) CanHandle(in *Input) bool {
	return isIntent(in, PracticeIntent)
}

func (PracticeHandler) Handle(ctx context.Context, in *Input) (*alexa.Response, error) {
	word, ok := in.Envelope.SlotValue(WordSlot)
	if !ok {
		remember(in, missingWord)
		return alexa.NewResponseBuilder().
			Speak(missingWord).
			Reprompt(askWordPrompt).
			Response(), nil
	}

	syllables, err := syllable.Split(word)
	if err != nil {
		observability.RecordWord("skill", 0, false)
		in.Logger.Error().Err(err).Str("word", word).Msg("Error processing PracticarIntent")

		remember(in, wordError)
		return alexa.NewResponseBuilder().
			Speak(wordError).
			Reprompt(repeatWord).
			Response(), nil
	}

	observability.RecordWord("skill", len(syllables), true)
	speech := PracticeSpeech(syllables)

	in.Logger.Debug().Str("word", word).Int("syllables", len(syllables)).Msg("Practising word")
	in.SetSessionAttributes(map[string]any{
		AttrLastSpeech: speech,
		AttrLastWord:   syllable.Normalize(word),
	})
	return alexa.NewResponseBuilder().
		Speak(speech).
		Reprompt(yesNoPrompt).
		Response(), nil
}

// PracticeSpeech builds the practice prompt, escaping each syllable for speech markup
func PracticeSpeech(syllables []string) string {
	escaped := make([]string, len(syllables))
	for i, s := range syllables {
		escaped[i] = alexa.EscapeSSML(s)
	}
	return fmt.Sprintf(practiceFormat, syllable.Join(escaped))
}

// ConfirmHandler handles the yes/no answer to "practise another word?"
type ConfirmHandler struct{}

func (ConfirmHandler) CanHandle(in *Input) bool {
	return isIntent(in, ConfirmIntent)
}

func (ConfirmHandler) Handle(ctx context.Context, in *Input) (*alexa.Response, error) {
	answer, _ := in.Envelope.SlotValue(AnswerSlot)
	reply := normalize.Classify(answer)
	in.Logger.Debug().Str("answer", answer).Stringer("reply", reply).Msg("Answer received")

	switch reply {
	case normalize.ReplyYes:
		return alexa.NewResponseBuilder().
			Speak(anotherWord).
			Reprompt(whichWord).
			Response(), nil
	case normalize.ReplyNo:
		return alexa.NewResponseBuilder().
			Speak(goodbye).
			WithShouldEndSession(true).
			Response(), nil
	default:
		return alexa.NewResponseBuilder().
			Speak(unknownAnswer).
			Reprompt(confirmAgain).
			Response(), nil
	}
}

// RepeatHandler replays the last thing the skill said
type RepeatHandler struct{}

func (RepeatHandler) CanHandle(in *Input) bool {
	return isIntent(in, alexa.RepeatIntent)
}

func (RepeatHandler) Handle(ctx context.Context, in *Input) (*alexa.Response, error) {
	last, ok := in.StringAttribute(AttrLastSpeech)
	if !ok {
		return alexa.NewResponseBuilder().
			Speak(nothingToSay).
			Reprompt(askWordPrompt).
			Response(), nil
	}
	return alexa.NewResponseBuilder().
		Speak(last).
		Reprompt(askWordPrompt).
		Response(), nil
}

// HelpHandler explains how to use the skill
type HelpHandler struct{}

func (HelpHandler) CanHandle(in *Input) bool {
	return isIntent(in, alexa.HelpIntent)
}

func (HelpHandler) Handle(ctx context.Context, in *Input) (*alexa.Response, error) {
	remember(in, helpSpeech)
	return alexa.NewResponseBuilder().
		Speak(helpSpeech).
		Reprompt(whichWord).
		Response(), nil
}

// StopHandler ends the session on stop or cancel
type StopHandler struct{}

func (StopHandler) CanHandle(in *Input) bool {
	return isIntent(in, alexa.StopIntent, alexa.CancelIntent)
}

func (StopHandler) Handle(ctx context.Context, in *Input) (*alexa.Response, error) {
	return alexa.NewResponseBuilder().
		Speak(goodbye).
		WithShouldEndSession(true).
		Response(), nil
}

// FallbackHandler answers utterances that matched no intent
type FallbackHandler struct{}

func (FallbackHandler) CanHandle(in *Input) bool {
	return isIntent(in, alexa.FallbackIntent)
}

func (FallbackHandler) Handle(ctx context.Context, in *Input) (*alexa.Response, error) {
	return alexa.NewResponseBuilder().
		Speak(fallbackSpeech).
		Reprompt(askWordPrompt).
		Response(), nil
}

// SessionEndedHandler acknowledges the end of a session
type SessionEndedHandler struct{}

func (SessionEndedHandler) CanHandle(in *Input) bool {
	return in.Envelope.RequestType() == alexa.SessionEndedRequest
}

func (SessionEndedHandler) Handle(ctx context.Context, in *Input) (*alexa.Response, error) {
	event := in.Logger.Info().Str("reason", in.Envelope.Request.Reason)
	if e := in.Envelope.Request.Error; e != nil {
		event = event.Str("error_type", e.Type).Str("error_message", e.Message)
	}
	event.Msg("Session ended")
	return alexa.NewResponseBuilder().Response(), nil
}

// CatchAllErrorHandler apologises for any failure
type CatchAllErrorHandler struct{}

func (CatchAllErrorHandler) CanHandle(in *Input, err error) bool {
	return true
}

func (CatchAllErrorHandler) Handle(ctx context.Context, in *Input, err error) (*alexa.Response, error) {
	return alexa.NewResponseBuilder().
		Speak(errorSpeech).
		Reprompt(errorPrompt).
		Response(), nil
}
