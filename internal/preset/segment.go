// Package preset defines prompt segments, their ordering and the preset
// files that bundle them with sampling settings.
package preset

import "github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"

// Position says where a positioned segment lands in the final message list.
type Position string

// Supported injection positions.
const (
	PositionHead  Position = "head"
	PositionTail  Position = "tail"
	PositionDepth Position = "depth"
)

// Injection places a segment outside the folded head system message.
// Depth is only meaningful with PositionDepth and counts messages from the end.
type Injection struct {
	Position Position
	Depth    int
}

// Body is the content variant of a segment: Static or Marker.
type Body interface {
	isBody()
}

// Static is literal segment text, subject to variable substitution.
type Static struct {
	Content string
}

// Marker is a placeholder resolved against live conversation state at
// assembly time. The segment identifier names what it resolves to.
type Marker struct{}

func (Static) isBody() {}
func (Marker) isBody() {}

// Segment is one configurable unit of prompt text.
type Segment struct {
	Identifier string
	Name       string
	Role       message.Role
	// SystemPrompt flags segments shipped with the default preset.
	SystemPrompt bool
	Enabled      bool
	Injection    *Injection
	Body         Body
}

// IsMarker reports whether the segment is a marker.
func (s Segment) IsMarker() bool {
	_, ok := s.Body.(Marker)
	return ok
}

// IsEnabled reports whether the segment participates in assembly.
// Markers are always enabled.
func (s Segment) IsEnabled() bool {
	switch s.Body.(type) {
	case Marker:
		return true
	case Static:
		return s.Enabled
	default:
		return false
	}
}

// Content returns the static text, or "" for markers.
func (s Segment) Content() string {
	if b, ok := s.Body.(Static); ok {
		return b.Content
	}
	return ""
}

// NewStatic builds an enabled static segment with no injection.
func NewStatic(id, name string, role message.Role, content string) Segment {
	return Segment{
		Identifier: id,
		Name:       name,
		Role:       role,
		Enabled:    true,
		Body:       Static{Content: content},
	}
}

// NewMarker builds a marker segment.
func NewMarker(id, name string) Segment {
	return Segment{
		Identifier:   id,
		Name:         name,
		Role:         message.RoleSystem,
		SystemPrompt: true,
		Enabled:      true,
		Body:         Marker{},
	}
}
