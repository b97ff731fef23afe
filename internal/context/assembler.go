package ctxengine

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

// Character is the active character card.
type Character struct {
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
	Personality     string `json:"personality,omitempty"`
	Scenario        string `json:"scenario,omitempty"`
	FirstMessage    string `json:"first_mes,omitempty"`
	ExampleDialogue string `json:"mes_example,omitempty"`
}

// Persona is the user's self-description.
type Persona struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// WorldInfo is pre-joined world-book text for the two world-info markers.
type WorldInfo struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Context is the live conversation state a single assembly reads.
type Context struct {
	Character Character
	Persona   Persona
	WorldInfo WorldInfo
	History   []message.Message
	Model     string
	// Now feeds {{time}} and {{date}}. Zero leaves them unresolved.
	Now time.Time
	// Extra adds caller-defined variables. Built-in names take precedence.
	Extra map[string]string
}

// AssemblyRequest contains the inputs for context assembly.
type AssemblyRequest struct {
	Profile preset.Profile
	Context Context

	// MaxChars overrides the configured budget. Zero uses the configured
	// value; negative disables truncation.
	MaxChars int
}

// AssemblyResult is the output of context assembly.
type AssemblyResult struct {
	// Messages is the final list, ready for a completion request.
	Messages []message.Message

	// Budget is the final budget breakdown.
	Budget ContextBudget
}

// ContextAssembler turns a profile and live context into the message list
// for one completion request. It performs no I/O and never fails: missing
// or partial input degrades to fewer messages.
type ContextAssembler struct {
	estimator TokenEstimator
	config    ContextConfig

	mu sync.Mutex // guards config.Rand
}

// NewContextAssembler creates a ContextAssembler with the given estimator and config.
// A nil estimator uses NewCharEstimator(4).
func NewContextAssembler(estimator TokenEstimator, cfg ContextConfig) *ContextAssembler {
	if estimator == nil {
		estimator = NewCharEstimator(4)
	}
	return &ContextAssembler{
		estimator: estimator,
		config:    cfg.withDefaults(),
	}
}

// Assemble builds the message list.
//
// The assembly process:
//  1. Select enabled segments in rendering order
//  2. Substitute variables in static text and resolve markers
//  3. Plan head, depth and tail placement around the history
//  4. Build the list and apply the character budget
func (a *ContextAssembler) Assemble(req AssemblyRequest) AssemblyResult {
	ordered := req.Profile.Ordered()
	formats := req.Profile.Formats.WithDefaults()
	vars := BuildVars(req.Context)

	resolved := make(map[string]Resolved, len(ordered))
	for _, seg := range ordered {
		switch body := seg.Body.(type) {
		case preset.Static:
			resolved[seg.Identifier] = Resolved{Text: Substitute(body.Content, vars, a.pick)}
		case preset.Marker:
			resolved[seg.Identifier] = ResolveMarker(seg.Identifier, req.Context, formats, a.pick)
		}
	}

	plan := BuildPlan(ordered, resolved)
	msgs, anchored := plan.Messages()

	maxChars := req.MaxChars
	if maxChars == 0 {
		maxChars = a.config.MaxChars
	}
	if maxChars < 0 {
		maxChars = 0
	}

	tr := Truncate(msgs, maxChars, anchored)
	if tr.Messages == nil {
		tr.Messages = []message.Message{}
	}

	return AssemblyResult{
		Messages: tr.Messages,
		Budget: ContextBudget{
			MaxChars:     maxChars,
			Chars:        tr.Size,
			Tokens:       EstimateMessages(a.estimator, tr.Messages),
			Dropped:      tr.Dropped,
			AnchorForced: tr.AnchorForced,
		},
	}
}

func (a *ContextAssembler) pick(n int) int {
	if a.config.Rand == nil {
		return rand.IntN(n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config.Rand.IntN(n)
}
