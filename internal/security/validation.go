package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Limits applied to request bodies and imported preset files.
const (
	// DefaultMaxPayloadSize leaves room for long chat histories and
	// world books.
	DefaultMaxPayloadSize = 8 << 20
	DefaultMaxJSONDepth   = 32
)

var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// ReadPayload reads all of r, failing with ErrPayloadTooLarge past limit
// bytes. A limit <= 0 means DefaultMaxPayloadSize.
func ReadPayload(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxPayloadSize
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	switch {
	case err != nil:
		return nil, err
	case len(data) > limit:
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, limit)
	}
	return data, nil
}

// ValidateJSONDepth rejects documents nested deeper than limit objects
// or arrays, then documents that are not valid JSON. Empty input passes.
// A limit <= 0 means DefaultMaxJSONDepth.
func ValidateJSONDepth(data []byte, limit int) error {
	if len(data) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if d := maxDepth(data, limit); d > limit {
		return fmt.Errorf("%w: more than %d levels", ErrJSONTooDeep, limit)
	}
	if !json.Valid(data) {
		return ErrInvalidJSON
	}
	return nil
}

// maxDepth returns the deepest bracket nesting in data, ignoring brackets
// inside strings. It stops counting once stop is exceeded.
func maxDepth(data []byte, stop int) int {
	depth, deepest := 0, 0
	inString, escaped := false, false
	for _, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > deepest {
				deepest = depth
				if deepest > stop {
					return deepest
				}
			}
		case '}', ']':
			depth--
		}
	}
	return deepest
}

// ReadJSONPayload reads a request body with ReadPayload and checks it
// with ValidateJSONDepth at the default depth.
func ReadJSONPayload(r io.Reader, maxBytes int) ([]byte, error) {
	data, err := ReadPayload(r, maxBytes)
	if err != nil {
		return nil, err
	}
	if err := ValidateJSONDepth(data, 0); err != nil {
		return nil, err
	}
	return data, nil
}
