package ctxengine

import (
	"slices"
	"strings"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

// headSeparator joins head blocks into the single leading system message.
const headSeparator = "\n\n"

// DepthInsertion is a message to splice in Depth positions from the end.
type DepthInsertion struct {
	Depth   int
	Message message.Message
}

// Plan partitions resolved segments into the buckets that make up the
// final message list.
type Plan struct {
	// Head holds non-empty blocks folded into the leading system message.
	Head []string
	// Tail holds messages appended after everything else, in order.
	Tail []message.Message
	// Depth holds insertions applied in order against the growing list.
	Depth []DepthInsertion
	// History is the chat history, placed after the head message.
	History []message.Message
	// HasHistory is set once a chatHistory marker has been consumed.
	HasHistory bool
}

// BuildPlan walks segments in rendering order and sorts each one's resolved
// content into a bucket. Segments whose content is the empty string
// contribute nothing; whitespace counts as content. History is consumed at
// most once.
func BuildPlan(segments []preset.Segment, resolved map[string]Resolved) Plan {
	var p Plan
	for _, seg := range segments {
		r := resolved[seg.Identifier]

		if r.IsHistory {
			if !p.HasHistory {
				p.History = r.History
				p.HasHistory = true
			}
			continue
		}
		if r.Text == "" {
			continue
		}

		inj := seg.Injection
		if inj == nil {
			p.Head = append(p.Head, r.Text)
			continue
		}

		msg := message.Message{Role: seg.Role.OrDefault(), Content: r.Text}
		switch inj.Position {
		case preset.PositionTail:
			p.Tail = append(p.Tail, msg)
		case preset.PositionDepth:
			p.Depth = append(p.Depth, DepthInsertion{Depth: max(0, inj.Depth), Message: msg})
		default:
			p.Head = append(p.Head, r.Text)
		}
	}
	return p
}

// Messages builds the ordered message list. anchored reports whether the
// first message of the result is the folded head system message.
//
// The list starts as [head?, history...]. Each depth insertion lands at
// max(0, len-depth) of the list as it stands at that point, so depth 0
// appends. Tail messages follow. An insertion clamped to index 0 lands in
// front of the head message, which then no longer counts as the anchor.
func (p Plan) Messages() (msgs []message.Message, anchored bool) {
	msgs = make([]message.Message, 0, 1+len(p.History)+len(p.Depth)+len(p.Tail))

	if len(p.Head) > 0 {
		msgs = append(msgs, message.System(strings.Join(p.Head, headSeparator)))
		anchored = true
	}
	msgs = append(msgs, p.History...)

	for _, ins := range p.Depth {
		at := max(0, len(msgs)-ins.Depth)
		if at == 0 {
			anchored = false
		}
		msgs = slices.Insert(msgs, at, ins.Message)
	}

	msgs = append(msgs, p.Tail...)
	return msgs, anchored
}
