// Package ctxengine assembles the message list sent to a chat-completion
// endpoint from prompt segments, live conversation state and a character
// budget.
package ctxengine

import "math/rand/v2"

// ContextConfig holds the tuning knobs for the context engine.
type ContextConfig struct {
	// MaxChars is the default character budget, used when a request does
	// not carry its own. Zero or negative disables truncation.
	MaxChars int

	// Rand drives {{random:...}} directives. Nil uses the process-wide
	// generator. A seeded generator makes assembly fully deterministic.
	Rand *rand.Rand
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg ContextConfig) withDefaults() ContextConfig {
	if cfg.MaxChars < 0 {
		cfg.MaxChars = 0
	}
	return cfg
}
