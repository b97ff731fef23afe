package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/provider"
)

// DefaultName is the preset that always exists and cannot be removed.
const DefaultName = "Default"

// Preset bundles prompt segments, their order and generation settings.
type Preset struct {
	// Name is the store key. It is not part of the file body.
	Name string

	provider.Sampling
	Formats

	Prompts     []Segment
	PromptOrder []OrderEntry

	// Extra keeps fields this package does not interpret so that
	// import followed by export preserves them.
	Extra map[string]json.RawMessage
}

// presetJSON is the file body of a Preset.
type presetJSON struct {
	provider.Sampling
	Formats

	Prompts     []Segment       `json:"prompts"`
	PromptOrder json.RawMessage `json:"prompt_order"`
}

var knownKeys = []string{
	"temperature", "top_p", "top_k", "frequency_penalty", "presence_penalty",
	"openai_max_tokens", "openai_max_context", "stream_openai",
	"description_format", "personality_format", "scenario_format", "wi_format",
	"prompts", "prompt_order",
}

// Profile returns the assembly profile described by p.
func (p *Preset) Profile() Profile {
	return NewProfile(p.Prompts, p.PromptOrder, p.Formats)
}

// Clone returns a deep copy of p.
func (p *Preset) Clone() *Preset {
	data, err := json.Marshal(p)
	if err != nil {
		cp := *p
		return &cp
	}
	var cp Preset
	if err := json.Unmarshal(data, &cp); err != nil {
		cp = *p
	}
	cp.Name = p.Name
	return &cp
}

// MarshalJSON implements json.Marshaler.
func (p Preset) MarshalJSON() ([]byte, error) {
	order := p.PromptOrder
	if order == nil {
		order = []OrderEntry{}
	}
	rawOrder, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}
	prompts := p.Prompts
	if prompts == nil {
		prompts = []Segment{}
	}
	body, err := json.Marshal(presetJSON{
		Sampling:    p.Sampling,
		Formats:     p.Formats,
		Prompts:     prompts,
		PromptOrder: rawOrder,
	})
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return body, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON implements json.Unmarshaler. Legacy numeric order
// identifiers are mapped to strings and unmappable ones are dropped.
func (p *Preset) UnmarshalJSON(data []byte) error {
	var w presetJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	order, err := decodeOrder(w.PromptOrder)
	if err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) == 0 {
		all = nil
	}

	*p = Preset{
		Name:        p.Name,
		Sampling:    w.Sampling,
		Formats:     w.Formats,
		Prompts:     w.Prompts,
		PromptOrder: NormalizeOrder(order),
		Extra:       all,
	}
	return nil
}

// Decode reads and validates a preset file.
func Decode(r io.Reader) (*Preset, error) {
	var p Preset
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("preset: decoding: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode writes p as indented JSON.
func Encode(w io.Writer, p *Preset) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("preset: encoding: %w", err)
	}
	return nil
}

// Validate checks segment identifiers, roles and injection depths.
func (p *Preset) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(p.Prompts))
	for i, s := range p.Prompts {
		if s.Identifier == "" {
			errs = append(errs, fmt.Errorf("preset: prompts[%d]: identifier is required", i))
			continue
		}
		if seen[s.Identifier] {
			errs = append(errs, fmt.Errorf("preset: prompts[%d]: duplicate identifier %q", i, s.Identifier))
		}
		seen[s.Identifier] = true
		if s.Role != "" && !s.Role.Valid() {
			errs = append(errs, fmt.Errorf("preset: prompt %q: unknown role %q", s.Identifier, s.Role))
		}
		if s.Injection != nil && s.Injection.Depth < 0 {
			errs = append(errs, fmt.Errorf("preset: prompt %q: injection depth must be >= 0", s.Identifier))
		}
	}
	return errors.Join(errs...)
}
