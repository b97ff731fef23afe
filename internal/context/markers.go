package ctxengine

import (
	"slices"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

// markerCharName stands in for an unnamed character inside marker templates.
const markerCharName = "Character"

// Resolved is the content a segment contributes: text, or the chat
// history when IsHistory is set.
type Resolved struct {
	Text      string
	History   []message.Message
	IsHistory bool
}

// ResolveMarker renders the marker named id against c. Unknown identifiers
// and empty source fields resolve to empty text. The chatHistory marker
// resolves to a copy of the live history.
func ResolveMarker(id string, c Context, f preset.Formats, pick func(n int) int) Resolved {
	f = f.WithDefaults()

	switch id {
	case preset.IDChatHistory:
		return Resolved{History: slices.Clone(c.History), IsHistory: true}
	case preset.IDCharDescription:
		return Resolved{Text: fromTemplate(f.Description, c.Character.Description, c, pick)}
	case preset.IDCharPersonality:
		return Resolved{Text: fromTemplate(f.Personality, c.Character.Personality, c, pick)}
	case preset.IDScenario:
		return Resolved{Text: fromTemplate(f.Scenario, c.Character.Scenario, c, pick)}
	case preset.IDPersonaDescription:
		if c.Persona.Description == "" {
			return Resolved{}
		}
		return Resolved{Text: "[User's persona: " + c.Persona.Description + "]"}
	case preset.IDDialogueExamples:
		if c.Character.ExampleDialogue == "" {
			return Resolved{}
		}
		return Resolved{Text: "[Example dialogue:\n" + c.Character.ExampleDialogue + "]"}
	case preset.IDWorldInfoBefore:
		return Resolved{Text: c.WorldInfo.Before}
	case preset.IDWorldInfoAfter:
		return Resolved{Text: c.WorldInfo.After}
	default:
		return Resolved{}
	}
}

// fromTemplate renders tmpl against the full variable table when field is
// non-empty.
func fromTemplate(tmpl, field string, c Context, pick func(n int) int) string {
	if field == "" {
		return ""
	}
	vars := BuildVars(c)
	if c.Character.Name == "" {
		vars["char"] = markerCharName
	}
	return Substitute(tmpl, vars, pick)
}
