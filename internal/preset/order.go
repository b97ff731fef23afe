package preset

// Well-known segment identifiers.
const (
	IDMain               = "main"
	IDWorldInfoBefore    = "worldInfoBefore"
	IDCharDescription    = "charDescription"
	IDCharPersonality    = "charPersonality"
	IDScenario           = "scenario"
	IDPersonaDescription = "personaDescription"
	IDDialogueExamples   = "dialogueExamples"
	IDChatHistory        = "chatHistory"
	IDWorldInfoAfter     = "worldInfoAfter"
	IDEnhanceDefinitions = "enhanceDefinitions"
	IDNSFW               = "nsfw"
	IDJailbreak          = "jailbreak"
)

// LegacyIDs maps the numeric identifiers found in older preset files to
// string identifiers.
var LegacyIDs = map[int]string{
	100000: IDMain,
	100001: IDWorldInfoBefore,
	100002: IDCharDescription,
	100003: IDCharPersonality,
	100004: IDScenario,
	100005: IDPersonaDescription,
	100006: IDDialogueExamples,
	100007: IDChatHistory,
	100008: IDWorldInfoAfter,
	100009: IDEnhanceDefinitions,
	100010: IDNSFW,
	100011: IDJailbreak,
}

// DefaultOrder is used when a preset carries no order descriptor.
// Registered identifiers not listed here follow in registry order.
var DefaultOrder = []string{
	IDMain,
	IDWorldInfoBefore,
	IDCharDescription,
	IDCharPersonality,
	IDScenario,
	IDPersonaDescription,
	IDDialogueExamples,
	IDChatHistory,
	IDWorldInfoAfter,
}

// OrderEntry is one element of an order descriptor.
// Exactly one of Identifier and LegacyID is set.
type OrderEntry struct {
	Identifier string
	LegacyID   int
	Enabled    bool
}

// ID returns the string identifier, mapping legacy numeric identifiers.
// ok is false for a numeric identifier absent from LegacyIDs.
func (e OrderEntry) ID() (id string, ok bool) {
	if e.Identifier != "" {
		return e.Identifier, true
	}
	id, ok = LegacyIDs[e.LegacyID]
	return id, ok
}

// ResolveOrder computes the rendering order of registered segment identifiers.
//
// With an empty descriptor the result is DefaultOrder restricted to
// registered identifiers, followed by the rest in registry order. Otherwise
// descriptor identifiers are mapped through LegacyIDs, unknown numeric ones
// and unregistered ones are dropped, duplicates collapse to their first
// occurrence and registered identifiers the descriptor omits are appended in
// registry order. Every registered identifier appears exactly once.
func ResolveOrder(registered []string, order []OrderEntry) []string {
	known := make(map[string]bool, len(registered))
	for _, id := range registered {
		known[id] = true
	}

	result := make([]string, 0, len(registered))
	seen := make(map[string]bool, len(registered))
	add := func(id string) {
		if known[id] && !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}

	if len(order) == 0 {
		for _, id := range DefaultOrder {
			add(id)
		}
	} else {
		for _, e := range order {
			if id, ok := e.ID(); ok {
				add(id)
			}
		}
	}
	for _, id := range registered {
		add(id)
	}
	return result
}

// NormalizeOrder rewrites legacy numeric identifiers to strings and drops
// the ones that cannot be mapped.
func NormalizeOrder(order []OrderEntry) []OrderEntry {
	if order == nil {
		return nil
	}
	out := make([]OrderEntry, 0, len(order))
	for _, e := range order {
		id, ok := e.ID()
		if !ok {
			continue
		}
		out = append(out, OrderEntry{Identifier: id, Enabled: e.Enabled})
	}
	return out
}
