package preset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

// Numeric injection positions used by preset files.
const (
	wirePositionHead  = 0
	wirePositionTail  = 1
	wirePositionDepth = 2
)

// promptJSON is the preset file representation of a Segment.
type promptJSON struct {
	Identifier        string          `json:"identifier"`
	Name              string          `json:"name,omitempty"`
	SystemPrompt      bool            `json:"system_prompt,omitempty"`
	Role              string          `json:"role,omitempty"`
	Content           *string         `json:"content,omitempty"`
	Marker            bool            `json:"marker,omitempty"`
	Enabled           *bool           `json:"enabled,omitempty"`
	InjectionPosition json.RawMessage `json:"injection_position,omitempty"`
	InjectionDepth    *int            `json:"injection_depth,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s Segment) MarshalJSON() ([]byte, error) {
	enabled := s.Enabled
	w := promptJSON{
		Identifier:   s.Identifier,
		Name:         s.Name,
		SystemPrompt: s.SystemPrompt,
		Role:         string(s.Role),
		Enabled:      &enabled,
	}
	switch b := s.Body.(type) {
	case Marker:
		w.Marker = true
	case Static:
		content := b.Content
		w.Content = &content
	}
	if s.Injection != nil {
		pos := wirePositionHead
		switch s.Injection.Position {
		case PositionTail:
			pos = wirePositionTail
		case PositionDepth:
			pos = wirePositionDepth
		}
		w.InjectionPosition = json.RawMessage(strconv.Itoa(pos))
		depth := s.Injection.Depth
		w.InjectionDepth = &depth
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. A missing enabled flag means
// enabled and a missing role means system.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var w promptJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	seg := Segment{
		Identifier:   w.Identifier,
		Name:         w.Name,
		SystemPrompt: w.SystemPrompt,
		Role:         message.Role(w.Role),
		Enabled:      w.Enabled == nil || *w.Enabled,
	}
	if seg.Role == "" {
		seg.Role = message.RoleSystem
	}
	if w.Marker {
		seg.Body = Marker{}
	} else {
		content := ""
		if w.Content != nil {
			content = *w.Content
		}
		seg.Body = Static{Content: content}
	}

	if len(w.InjectionPosition) > 0 && !bytes.Equal(w.InjectionPosition, []byte("null")) {
		pos, err := parsePosition(w.InjectionPosition)
		if err != nil {
			return fmt.Errorf("prompt %q: %w", w.Identifier, err)
		}
		inj := &Injection{Position: pos}
		if w.InjectionDepth != nil {
			inj.Depth = *w.InjectionDepth
		}
		seg.Injection = inj
	}

	*s = seg
	return nil
}

func parsePosition(raw json.RawMessage) (Position, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		switch n {
		case wirePositionHead:
			return PositionHead, nil
		case wirePositionTail:
			return PositionTail, nil
		case wirePositionDepth:
			return PositionDepth, nil
		}
		return "", fmt.Errorf("unknown injection_position %d", n)
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return "", fmt.Errorf("injection_position must be a number or string: %w", err)
	}
	switch p := Position(str); p {
	case PositionHead, PositionTail, PositionDepth:
		return p, nil
	}
	return "", fmt.Errorf("unknown injection_position %q", str)
}

// orderEntryJSON is the object form of an order descriptor entry.
type orderEntryJSON struct {
	Identifier json.RawMessage `json:"identifier"`
	Enabled    *bool           `json:"enabled,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e OrderEntry) MarshalJSON() ([]byte, error) {
	var id any = e.Identifier
	if e.Identifier == "" {
		id = e.LegacyID
	}
	return json.Marshal(struct {
		Identifier any  `json:"identifier"`
		Enabled    bool `json:"enabled"`
	}{id, e.Enabled})
}

// UnmarshalJSON accepts a bare string identifier or an object whose
// identifier is a string or a legacy number. A missing enabled flag means
// enabled.
func (e *OrderEntry) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		*e = OrderEntry{Identifier: bare, Enabled: true}
		return nil
	}

	var w orderEntryJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	entry := OrderEntry{Enabled: w.Enabled == nil || *w.Enabled}

	var n int
	if err := json.Unmarshal(w.Identifier, &n); err == nil {
		entry.LegacyID = n
	} else if err := json.Unmarshal(w.Identifier, &entry.Identifier); err != nil {
		return fmt.Errorf("order identifier must be a number or string: %w", err)
	}
	*e = entry
	return nil
}

// nestedOrderJSON is the per-character order descriptor form.
type nestedOrderJSON struct {
	CharacterID int          `json:"character_id"`
	Order       []OrderEntry `json:"order"`
}

// defaultCharacterID selects the global order in per-character descriptors.
const defaultCharacterID = 100001

// decodeOrder parses prompt_order in either the flat or per-character form.
func decodeOrder(raw json.RawMessage) ([]OrderEntry, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("prompt_order: %w", err)
	}

	var nested []nestedOrderJSON
	for _, item := range items {
		var fields map[string]json.RawMessage
		if json.Unmarshal(item, &fields) != nil {
			continue
		}
		if _, ok := fields["order"]; ok {
			var n nestedOrderJSON
			if err := json.Unmarshal(item, &n); err != nil {
				return nil, fmt.Errorf("prompt_order: %w", err)
			}
			nested = append(nested, n)
		}
	}
	if len(nested) > 0 {
		for _, n := range nested {
			if n.CharacterID == defaultCharacterID {
				return n.Order, nil
			}
		}
		return nested[0].Order, nil
	}

	order := make([]OrderEntry, 0, len(items))
	for _, item := range items {
		var e OrderEntry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, fmt.Errorf("prompt_order: %w", err)
		}
		order = append(order, e)
	}
	return order, nil
}
