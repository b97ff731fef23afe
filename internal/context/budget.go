package ctxengine

import (
	"slices"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens using a simple characters-per-token ratio.
// A ratio of ~4 works well for English; ~3 for French or other Latin languages.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator creates a CharEstimator with the given ratio.
// If charsPerToken is <= 0, defaults to 4.0 (English approximation).
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns the estimated token count for the given text.
func (e *CharEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := float64(len([]rune(text))) / e.CharsPerToken
	// Always round up to avoid underestimation.
	return int(tokens) + 1
}

// EstimateMessages returns the total estimated tokens for a message list.
func EstimateMessages(estimator TokenEstimator, messages []message.Message) int {
	total := 0
	for i := range messages {
		// Per-message overhead: role tokens + formatting (~4 tokens).
		total += 4
		total += estimator.Estimate(messages[i].Content)
	}
	return total
}

// ContextBudget reports how the character budget was applied.
type ContextBudget struct {
	MaxChars     int  `json:"max_chars"` // effective budget, 0 when disabled
	Chars        int  `json:"chars"`     // serialized size of the returned messages
	Tokens       int  `json:"tokens"`    // estimated tokens of the returned messages
	Dropped      int  `json:"dropped"`   // messages removed by truncation
	AnchorForced bool `json:"anchor_forced"`
}

// Truncated reports whether any message was dropped.
func (b ContextBudget) Truncated() bool {
	return b.Dropped > 0
}

// Exceeded reports whether the returned messages are larger than the
// budget. This happens when the head message or the single most recent
// message is kept regardless.
func (b ContextBudget) Exceeded() bool {
	return b.MaxChars > 0 && b.Chars > b.MaxChars
}

// Truncation is the output of Truncate.
type Truncation struct {
	Messages     []message.Message
	Size         int
	Dropped      int
	AnchorForced bool
}

// Truncate keeps the most recent messages whose combined message.Size fits
// in maxChars, walking from the newest message backward and stopping at the
// first one that does not fit.
//
// When anchored, messages[0] is the head system message: if the walk does
// not reach it, it is put back in front of the kept messages even though
// that exceeds the budget. Without an anchor, if nothing fits, the single
// most recent message is kept. maxChars <= 0 disables truncation.
//
// The returned slice never aliases messages.
func Truncate(messages []message.Message, maxChars int, anchored bool) Truncation {
	if maxChars <= 0 || len(messages) == 0 {
		kept := slices.Clone(messages)
		return Truncation{Messages: kept, Size: message.TotalSize(kept)}
	}

	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		size := message.Size(messages[i])
		if total+size > maxChars {
			break
		}
		total += size
		start = i
	}

	var (
		kept   []message.Message
		forced bool
	)
	switch {
	case start == 0:
		kept = slices.Clone(messages)
	case anchored:
		kept = make([]message.Message, 0, 1+len(messages)-start)
		kept = append(kept, messages[0])
		kept = append(kept, messages[start:]...)
		total += message.Size(messages[0])
		forced = true
	case start == len(messages):
		last := messages[len(messages)-1]
		kept = []message.Message{last}
		total = message.Size(last)
	default:
		kept = slices.Clone(messages[start:])
	}

	return Truncation{
		Messages:     kept,
		Size:         total,
		Dropped:      len(messages) - len(kept),
		AnchorForced: forced,
	}
}
