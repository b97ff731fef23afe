package ctxengine

import (
	"regexp"
	"strings"
)

// Vars maps lowercase variable names to their values.
type Vars map[string]string

// Default display names used when the context carries none.
const (
	DefaultUserName = "User"
	DefaultCharName = "Assistant"
)

var (
	placeholderPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	randomPrefix       = "random:"
)

// Substitute replaces {{key}} placeholders in text. Keys match
// case-insensitively; unknown keys are left verbatim. {{random:a,b,c}}
// is replaced with one trimmed alternative chosen by pick, which must
// return a value in [0, n). A nil pick always chooses the first one.
//
// The result is only deterministic when text has no random directive or
// pick is deterministic.
func Substitute(text string, vars Vars, pick func(n int) int) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		inner := strings.TrimSpace(match[2 : len(match)-2])
		lower := strings.ToLower(inner)

		if strings.HasPrefix(lower, randomPrefix) {
			options := strings.Split(inner[len(randomPrefix):], ",")
			i := 0
			if pick != nil && len(options) > 1 {
				i = pick(len(options))
				if i < 0 || i >= len(options) {
					i = 0
				}
			}
			return strings.TrimSpace(options[i])
		}

		if v, ok := vars[lower]; ok {
			return v
		}
		return match
	})
}

// BuildVars derives the substitution table from the live context.
func BuildVars(c Context) Vars {
	user := c.Persona.Name
	if user == "" {
		user = DefaultUserName
	}
	char := c.Character.Name
	if char == "" {
		char = DefaultCharName
	}

	vars := Vars{
		"user":        user,
		"char":        char,
		"model":       c.Model,
		"description": c.Character.Description,
		"personality": c.Character.Personality,
		"scenario":    c.Character.Scenario,
		"first_mes":   c.Character.FirstMessage,
		"mes_example": c.Character.ExampleDialogue,
		"persona":     c.Persona.Description,
	}
	if !c.Now.IsZero() {
		vars["time"] = c.Now.Format("15:04:05")
		vars["date"] = c.Now.Format("2006-01-02")
	}
	for k, v := range c.Extra {
		key := strings.ToLower(k)
		if _, builtin := vars[key]; !builtin {
			vars[key] = v
		}
	}
	return vars
}
