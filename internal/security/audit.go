package security

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// EventType names what an audit event records.
type EventType string

// Audit event types.
const (
	EventAuthSuccess  EventType = "auth_success"
	EventAuthFailure  EventType = "auth_failure"
	EventRateLimit    EventType = "rate_limit"
	EventConfigReload EventType = "config_reload"
	EventPresetPut    EventType = "preset_put"
	EventPresetDelete EventType = "preset_delete"
	EventPresetRename EventType = "preset_rename"
	EventPresetImport EventType = "preset_import"
)

// AuditEvent is one line of audit.jsonl.
type AuditEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	RequestID  string            `json:"request_id,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	Preset     string            `json:"preset,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures NewAuditLogger. Every field is optional.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line.
	Writer io.Writer
	// Redactor scrubs Detail and Metadata values.
	Redactor *Redactor
	// OnEvent observes each event after redaction.
	OnEvent func(AuditEvent)
	// Now stamps events, time.Now when nil.
	Now func() time.Time
}

// AuditLogger records security relevant events: authentication, rate
// limiting, preset changes and reloads.
type AuditLogger struct {
	cfg AuditLoggerConfig

	mu     sync.Mutex
	failed atomic.Int64
}

// NewAuditLogger returns an AuditLogger for cfg.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuditLogger{cfg: cfg}
}

// Log stamps, redacts and records e. The caller's Metadata map is left
// as it was.
func (l *AuditLogger) Log(e AuditEvent) {
	e.Timestamp = l.cfg.Now()
	if r := l.cfg.Redactor; r != nil {
		e.Detail = r.Redact(e.Detail)
		if e.Metadata != nil {
			clean := make(map[string]string, len(e.Metadata))
			for k, v := range e.Metadata {
				clean[k] = r.Redact(v)
			}
			e.Metadata = clean
		}
	}

	var line []byte
	if l.cfg.Writer != nil {
		var err error
		if line, err = json.Marshal(e); err != nil {
			l.failed.Add(1)
			return
		}
		line = append(line, '\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(e)
	}
	if line != nil {
		if _, err := l.cfg.Writer.Write(line); err != nil {
			l.failed.Add(1)
		}
	}
}

// WriteErrors counts the events that never reached the Writer.
func (l *AuditLogger) WriteErrors() int64 {
	return l.failed.Load()
}
