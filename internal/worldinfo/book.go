package worldinfo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrUnknownFormat is returned for world-book files with no recognizable
// entry list.
var ErrUnknownFormat = errors.New("worldinfo: unrecognized world book format")

// rawEntry accepts the field spellings found in exported world books.
type rawEntry struct {
	ID             json.RawMessage `json:"id"`
	UID            json.RawMessage `json:"uid"`
	Title          string          `json:"title"`
	Comment        string          `json:"comment"`
	Keys           json.RawMessage `json:"keys"`
	Key            json.RawMessage `json:"key"`
	Content        *string         `json:"content"`
	Entry          string          `json:"entry"`
	Order          int             `json:"order"`
	InsertionOrder int             `json:"insertion_order"`
	Depth          int             `json:"depth"`
	Position       json.RawMessage `json:"position"`
	Enabled        *bool           `json:"enabled"`
	Disable        bool            `json:"disable"`
	Extensions     struct {
		Depth    int             `json:"depth"`
		Position json.RawMessage `json:"position"`
	} `json:"extensions"`
}

// DecodeBook parses a world-book file. Accepted layouts: a bare entry
// array, {"entries": [...]}, {"entries": {"<uid>": {...}}} and
// {"world_info": [...]}.
func DecodeBook(data []byte) ([]Entry, error) {
	raws, err := entryList(data)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raws))
	for i, r := range raws {
		e, err := r.toEntry(i)
		if err != nil {
			return nil, fmt.Errorf("worldinfo: entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func entryList(data []byte) ([]rawEntry, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []rawEntry
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("worldinfo: decoding: %w", err)
		}
		return list, nil
	}

	var doc struct {
		Entries   json.RawMessage `json:"entries"`
		WorldInfo []rawEntry      `json:"world_info"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("worldinfo: decoding: %w", err)
	}

	entries := bytes.TrimSpace(doc.Entries)
	switch {
	case len(entries) > 0 && entries[0] == '[':
		var list []rawEntry
		if err := json.Unmarshal(entries, &list); err != nil {
			return nil, fmt.Errorf("worldinfo: decoding entries: %w", err)
		}
		return list, nil
	case len(entries) > 0 && entries[0] == '{':
		var byUID map[string]rawEntry
		if err := json.Unmarshal(entries, &byUID); err != nil {
			return nil, fmt.Errorf("worldinfo: decoding entries: %w", err)
		}
		keys := make([]string, 0, len(byUID))
		for k := range byUID {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUID)
		list := make([]rawEntry, 0, len(keys))
		for _, k := range keys {
			r := byUID[k]
			if len(r.UID) == 0 && len(r.ID) == 0 {
				r.UID = json.RawMessage(strconv.Quote(k))
			}
			list = append(list, r)
		}
		return list, nil
	case doc.WorldInfo != nil:
		return doc.WorldInfo, nil
	}
	return nil, ErrUnknownFormat
}

// compareUID orders numeric keys numerically and the rest lexically.
func compareUID(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na - nb
	}
	return strings.Compare(a, b)
}

func (r rawEntry) toEntry(i int) (Entry, error) {
	keys, err := stringList(r.Keys)
	if err != nil {
		return Entry{}, fmt.Errorf("keys: %w", err)
	}
	if len(keys) == 0 {
		if keys, err = stringList(r.Key); err != nil {
			return Entry{}, fmt.Errorf("key: %w", err)
		}
	}

	e := Entry{
		ID:      idString(r.ID),
		Title:   r.Title,
		Keys:    keys,
		Content: r.Entry,
		Enabled: !r.Disable,
		Order:   firstNonZero(r.Order, r.InsertionOrder, DefaultOrder),
		Depth:   firstNonZero(r.Depth, r.Extensions.Depth, DefaultDepth),
	}
	if e.ID == "" {
		e.ID = idString(r.UID)
	}
	if e.ID == "" {
		e.ID = "entry-" + strconv.Itoa(i)
	}
	if r.Content != nil {
		e.Content = *r.Content
	}
	if r.Enabled != nil {
		e.Enabled = *r.Enabled
	}
	if e.Title == "" {
		e.Title = r.Comment
	}
	if e.Title == "" && len(keys) > 0 {
		e.Title = keys[0]
	}

	pos := r.Position
	if len(pos) == 0 {
		pos = r.Extensions.Position
	}
	if e.Position, err = parsePosition(pos); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// firstNonZero returns the first non-zero value.
func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func idString(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// stringList accepts a JSON array of strings or a comma-separated string.
func stringList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.New("must be a string or an array of strings")
	}
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out, nil
}

// parsePosition maps "before"/"after" or 0/1 to a Position. Any other
// number or name is kept as is; such entries trigger but feed neither
// world-info marker.
func parsePosition(raw json.RawMessage) (Position, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return PositionBefore, nil
	}
	var n int
	if json.Unmarshal(raw, &n) == nil {
		switch n {
		case 0:
			return PositionBefore, nil
		case 1:
			return PositionAfter, nil
		}
		return Position(strconv.Itoa(n)), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("position must be a string or number")
	}
	if s == "" {
		return PositionBefore, nil
	}
	return Position(strings.ToLower(s)), nil
}
