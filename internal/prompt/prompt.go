// Package prompt defines the transformation actions, tone modifiers, and the
// builder that turns them into the instruction string every provider sends.
package prompt

import (
	"fmt"
	"strings"
)

// PayloadLabel precedes the source text. The blank line before it separates
// the instruction from the payload.
const PayloadLabel = "\n\nText to transform:\n"

// Action is a transformation the user can request.
type Action int

const (
	FixGrammar Action = iota
	Rewrite
	Simplify
	Translate
	Summarize
	Expand
	ProfessionalEmail
	CreateTweet
	Custom
)

type actionInfo struct {
	id       string
	label    string
	template string
}

var actions = [...]actionInfo{
	FixGrammar:        {"fix_grammar", "Fix Grammar", "Correct grammar, spelling, and clarity. Preserve meaning and tone. Do not add new ideas."},
	Rewrite:           {"rewrite", "Rewrite", "Rewrite this text to improve clarity and flow while preserving the core message."},
	Simplify:          {"simplify", "Simplify", "Simplify this text to make it easier to understand. Use simpler words and shorter sentences."},
	Translate:         {"translate", "Translate", "If this text is in Hindi, translate it to English. If it's in English, translate it to Hindi."},
	Summarize:         {"summarize", "Summarize", "Summarize this text in exactly 3 lines or less. Be concise and capture the main points."},
	Expand:            {"expand", "Expand with examples", "Expand this text with relevant examples and additional explanation to make it more comprehensive."},
	ProfessionalEmail: {"professional_email", "Professional Email", "Rewrite this text as a professional email with proper greeting and sign-off."},
	CreateTweet:       {"create_tweet", "Create Tweet", "Transform this into an engaging tweet. Maximum 280 characters. Include relevant hashtags if appropriate."},
	Custom:            {"custom", "Custom Instruction", ""},
}

func (a Action) valid() bool { return a >= FixGrammar && a <= Custom }

// ID returns the stable identifier used in config and on the command line.
func (a Action) ID() string {
	if !a.valid() {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actions[a].id
}

// Label returns the menu label.
func (a Action) Label() string {
	if !a.valid() {
		return ""
	}
	return actions[a].label
}

// Template returns the fixed instruction. Custom's template is empty.
func (a Action) Template() string {
	if !a.valid() {
		return ""
	}
	return actions[a].template
}

func (a Action) String() string { return a.ID() }

// Actions returns every action in menu order.
func Actions() []Action {
	out := make([]Action, 0, len(actions))
	for i := range actions {
		out = append(out, Action(i))
	}
	return out
}

// ParseAction resolves an action by ID or label, case-insensitively.
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	for i, info := range actions {
		if strings.EqualFold(s, info.id) || strings.EqualFold(s, info.label) {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("prompt: unknown action %q", s)
}

// Tone modifies the register of the output.
type Tone int

const (
	ToneNone Tone = iota
	ToneFormal
	ToneCasual
	ToneEmotional
	ToneNeutral
	ToneProfessional
	TonePersuasive
)

var tones = [...]actionInfo{
	ToneNone:         {"none", "None", ""},
	ToneFormal:       {"formal", "Formal", "Use a formal tone."},
	ToneCasual:       {"casual", "Casual", "Use a casual, friendly tone."},
	ToneEmotional:    {"emotional", "Emotional", "Make it more emotional and expressive."},
	ToneNeutral:      {"neutral", "Neutral", "Keep the tone neutral and objective."},
	ToneProfessional: {"professional", "Professional", "Use a professional business tone."},
	TonePersuasive:   {"persuasive", "Persuasive", "Make it more persuasive and convincing."},
}

func (t Tone) valid() bool { return t >= ToneNone && t <= TonePersuasive }

// ID returns the stable identifier.
func (t Tone) ID() string {
	if !t.valid() {
		return fmt.Sprintf("tone(%d)", int(t))
	}
	return tones[t].id
}

// Label returns the display label.
func (t Tone) Label() string {
	if !t.valid() {
		return ""
	}
	return tones[t].label
}

// Modifier returns the text appended to the instruction. ToneNone has none.
func (t Tone) Modifier() string {
	if !t.valid() {
		return ""
	}
	return tones[t].template
}

func (t Tone) String() string { return t.ID() }

// Tones returns every tone in display order.
func Tones() []Tone {
	out := make([]Tone, 0, len(tones))
	for i := range tones {
		out = append(out, Tone(i))
	}
	return out
}

// ParseTone resolves a tone by ID or label. The empty string is ToneNone.
func ParseTone(s string) (Tone, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ToneNone, nil
	}
	for i, info := range tones {
		if strings.EqualFold(s, info.id) || strings.EqualFold(s, info.label) {
			return Tone(i), nil
		}
	}
	return 0, fmt.Errorf("prompt: unknown tone %q", s)
}

// Request is one transformation to perform. It is a value; nothing holds on
// to it after the response is delivered.
type Request struct {
	Text              string
	Action            Action
	Tone              Tone
	CustomInstruction string
}

// Prompt builds the request's instruction string.
func (r Request) Prompt() string {
	return Build(r.Text, r.Action, r.Tone, r.CustomInstruction)
}

// Build assembles the prompt. The order is fixed: instruction, then the tone
// modifier when tone is not ToneNone, then the labelled payload. Parts are
// joined by a single space. An empty text still yields a payload segment.
func Build(text string, action Action, tone Tone, customInstruction string) string {
	instruction := action.Template()
	if action == Custom && strings.TrimSpace(customInstruction) != "" {
		instruction = customInstruction
	}

	parts := []string{instruction}
	if tone != ToneNone {
		parts = append(parts, tone.Modifier())
	}
	parts = append(parts, PayloadLabel+text)

	return strings.Join(parts, " ")
}
