// Package securitytest holds security fakes shared by other packages'
// tests.
package securitytest

import (
	"slices"
	"sync"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
)

// NewTestRedactor returns a Redactor without patterns. Fixture keys stay
// readable in assertions.
func NewTestRedactor() *security.Redactor {
	return &security.Redactor{}
}

// NewTestAuditLogger returns an AuditLogger that keeps events in memory,
// and a function returning a copy of the events so far.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var rec recorder
	return security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: rec.add}), rec.snapshot
}

type recorder struct {
	mu     sync.Mutex
	events []security.AuditEvent
}

func (r *recorder) add(e security.AuditEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []security.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}
