package preset

// Default marker templates.
const (
	DefaultDescriptionFormat = "[{{char}}'s description: {{description}}]"
	DefaultPersonalityFormat = "[{{char}}'s personality: {{personality}}]"
	DefaultScenarioFormat    = "[Circumstances and context of the dialogue: {{scenario}}]"
)

// Formats holds the templates used to render character markers.
type Formats struct {
	Description string `json:"description_format,omitempty"`
	Personality string `json:"personality_format,omitempty"`
	Scenario    string `json:"scenario_format,omitempty"`
	WorldInfo   string `json:"wi_format,omitempty"`
}

// WithDefaults fills empty templates.
func (f Formats) WithDefaults() Formats {
	if f.Description == "" {
		f.Description = DefaultDescriptionFormat
	}
	if f.Personality == "" {
		f.Personality = DefaultPersonalityFormat
	}
	if f.Scenario == "" {
		f.Scenario = DefaultScenarioFormat
	}
	return f
}

// Profile is the segment registry and order descriptor used for one
// assembly call.
type Profile struct {
	Segments []Segment
	Order    []OrderEntry
	Formats  Formats
}

// NewProfile builds a profile, dropping segments with an empty or
// duplicate identifier. The first occurrence of an identifier wins.
func NewProfile(segments []Segment, order []OrderEntry, formats Formats) Profile {
	seen := make(map[string]bool, len(segments))
	kept := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Identifier == "" || seen[s.Identifier] {
			continue
		}
		seen[s.Identifier] = true
		kept = append(kept, s)
	}
	return Profile{Segments: kept, Order: order, Formats: formats.WithDefaults()}
}

// Identifiers returns segment identifiers in registry order.
func (p Profile) Identifiers() []string {
	ids := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		ids[i] = s.Identifier
	}
	return ids
}

// Segment looks up a segment by identifier.
func (p Profile) Segment(id string) (Segment, bool) {
	for _, s := range p.Segments {
		if s.Identifier == id {
			return s, true
		}
	}
	return Segment{}, false
}

// Ordered returns the segments that render, in rendering order.
//
// A static segment renders when its own flag is set and its descriptor
// entry, if any, is enabled. Markers always render.
func (p Profile) Ordered() []Segment {
	entryEnabled := make(map[string]bool, len(p.Order))
	for _, e := range p.Order {
		id, ok := e.ID()
		if !ok {
			continue
		}
		if _, dup := entryEnabled[id]; !dup {
			entryEnabled[id] = e.Enabled
		}
	}

	byID := make(map[string]Segment, len(p.Segments))
	for _, s := range p.Segments {
		if _, dup := byID[s.Identifier]; !dup {
			byID[s.Identifier] = s
		}
	}

	ids := ResolveOrder(p.Identifiers(), p.Order)
	out := make([]Segment, 0, len(ids))
	for _, id := range ids {
		s := byID[id]
		if !s.IsEnabled() {
			continue
		}
		if enabled, listed := entryEnabled[id]; listed && !enabled && !s.IsMarker() {
			continue
		}
		out = append(out, s)
	}
	return out
}
