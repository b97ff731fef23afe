package security

import (
	"context"
	"log/slog"
	"strconv"
	"unicode/utf8"
)

// RedactingHandler scrubs every log record before the wrapped handler sees
// it: the message and string attributes go through a Redactor, string
// attributes under secret-looking keys are replaced outright, and long
// values such as prompt content can be clipped.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
	maxLen   int
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps inner.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor}
}

// WithMaxValueLen returns a copy of h that clips string attribute values to
// n runes. Zero or a negative n disables clipping.
func (h *RedactingHandler) WithMaxValueLen(n int) *RedactingHandler {
	cp := *h
	cp.maxLen = n
	return &cp
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.scrub(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.scrub(a)
	}
	return h.wrap(h.inner.WithAttrs(scrubbed))
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return h.wrap(h.inner.WithGroup(name))
}

func (h *RedactingHandler) wrap(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: h.redactor, maxLen: h.maxLen}
}

func (h *RedactingHandler) scrub(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s != "" && secretKeyPattern.MatchString(a.Key) {
			a.Value = slog.StringValue(RedactPlaceholder)
			return a
		}
		a.Value = slog.StringValue(h.clip(h.redactor.Redact(s)))
	case slog.KindGroup:
		group := a.Value.Group()
		scrubbed := make([]slog.Attr, len(group))
		for i, ga := range group {
			scrubbed[i] = h.scrub(ga)
		}
		a.Value = slog.GroupValue(scrubbed...)
	case slog.KindAny:
		// Errors and other values are logged through their string form.
		s := a.Value.String()
		if r := h.redactor.Redact(s); r != s {
			a.Value = slog.StringValue(r)
		}
	}
	return a
}

// clip shortens s to maxLen runes and notes how many were cut.
func (h *RedactingHandler) clip(s string) string {
	if h.maxLen <= 0 || len(s) <= h.maxLen {
		return s
	}
	n := utf8.RuneCountInString(s)
	if n <= h.maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:h.maxLen]) + "…(+" + strconv.Itoa(n-h.maxLen) + ")"
}
