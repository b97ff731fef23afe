// Package worldinfo scans recent chat messages for world-book keywords and
// produces the text for the world-info markers.
package worldinfo

import (
	"cmp"
	"slices"
	"strings"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

// Position selects which world-info marker an entry feeds. Positions other
// than PositionBefore and PositionAfter feed neither.
type Position string

// Entry positions.
const (
	PositionBefore Position = "before"
	PositionAfter  Position = "after"
)

// Defaults applied to entries that leave the field unset.
const (
	DefaultDepth = 4
	DefaultOrder = 100
)

// Entry is one keyword-triggered lore snippet.
type Entry struct {
	ID       string   `json:"id"`
	Title    string   `json:"title,omitempty"`
	Keys     []string `json:"keys"`
	Content  string   `json:"content"`
	Enabled  bool     `json:"enabled"`
	Order    int      `json:"order"`
	Depth    int      `json:"depth"`
	Position Position `json:"position"`
}

// Result holds the joined content of triggered entries per position.
type Result struct {
	Before string
	After  string
	// Triggered lists matched entry IDs in activation order.
	Triggered []string
}

// separator joins triggered entry contents.
const separator = "\n\n"

// Scan activates every enabled entry with a key occurring in the last
// Depth messages of history. Matching is a case-insensitive substring test
// against the message contents joined by a space. Entries activate in
// ascending Order; ties keep their input order.
func Scan(entries []Entry, history []message.Message) Result {
	active := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Enabled {
			active = append(active, e)
		}
	}
	slices.SortStableFunc(active, func(a, b Entry) int {
		return cmp.Compare(a.Order, b.Order)
	})

	var before, after []string
	var res Result
	for _, e := range active {
		if !matches(e, history) {
			continue
		}
		res.Triggered = append(res.Triggered, e.ID)
		switch e.Position {
		case PositionBefore, "":
			before = append(before, e.Content)
		case PositionAfter:
			after = append(after, e.Content)
		}
	}
	res.Before = strings.Join(before, separator)
	res.After = strings.Join(after, separator)
	return res
}

func matches(e Entry, history []message.Message) bool {
	depth := e.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}
	recent := history[max(0, len(history)-depth):]

	parts := make([]string, len(recent))
	for i, m := range recent {
		parts[i] = m.Content
	}
	text := strings.ToLower(strings.Join(parts, " "))

	for _, key := range e.Keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "" && strings.Contains(text, key) {
			return true
		}
	}
	return false
}
