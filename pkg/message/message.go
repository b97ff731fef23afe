// Package message defines the role/content unit handed to a chat-completion endpoint.
package message

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

// Role identifies the speaker of a message.
type Role string

// Role constants accepted by chat-completion endpoints.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// OrDefault returns r, or RoleSystem when r is not a known role.
func (r Role) OrDefault() Role {
	if r.Valid() {
		return r
	}
	return RoleSystem
}

// Message is a single entry of a chat-completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System creates a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User creates a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant creates an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Size returns the number of characters in the compact JSON encoding of m.
// HTML characters are not escaped, so the count matches what a JSON client
// written in any other language would produce for the same message.
func Size(m Message) int {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return utf8.RuneCountInString(m.Content)
	}
	// Encode appends a newline.
	return utf8.RuneCount(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
}

// TotalSize sums Size over msgs.
func TotalSize(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += Size(m)
	}
	return total
}
