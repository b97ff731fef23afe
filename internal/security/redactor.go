package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "[redacted]"

// secretKeyPattern matches configuration keys whose values are secrets:
// gateway passwords and tokens, webhook secrets, OTLP auth headers.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|passwd|api_?key|credential|authorization)`)

// Redactor scrubs secrets from log lines, audit events and configuration
// dumps. It knows provider API key shapes, auth header values and the
// literal credentials from tavern's own configuration. Safe for concurrent
// use.
type Redactor struct {
	patterns []*regexp.Regexp

	mu       sync.RWMutex
	literals []string
	replacer *strings.Replacer
}

// NewRedactor returns a Redactor using DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddLiteral registers one more literal secret. Empty strings and
// duplicates are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.literals, secret) {
		return
	}
	r.setLocked(append(slices.Clone(r.literals), secret))
}

// SetLiterals replaces every literal secret, e.g. after a config reload
// rotated the gateway credentials.
func (r *Redactor) SetLiterals(secrets ...string) {
	var literals []string
	for _, s := range secrets {
		if s != "" && !slices.Contains(literals, s) {
			literals = append(literals, s)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLocked(literals)
}

// setLocked installs literals, longest first so that a secret containing
// another one is replaced whole.
func (r *Redactor) setLocked(literals []string) {
	slices.SortStableFunc(literals, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	r.literals = literals
	if len(literals) == 0 {
		r.replacer = nil
		return
	}
	pairs := make([]string, 0, 2*len(literals))
	for _, lit := range literals {
		pairs = append(pairs, lit, RedactPlaceholder)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact returns s with pattern matches and literal secrets replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}

	r.mu.RLock()
	replacer := r.replacer
	r.mu.RUnlock()
	if replacer != nil {
		s = replacer.Replace(s)
	}
	return s
}

// RedactMap scrubs a decoded JSON or YAML document in place. Non-empty
// string values under secret-looking keys are replaced outright; every
// other string goes through Redact. Nested maps and lists are walked.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
	}
	return v
}

// DefaultPatterns returns the secret shapes redacted without configuration:
// completion provider keys, auth header values and URL userinfo.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// OpenAI, Anthropic, OpenRouter and compatible "sk-" keys.
		regexp.MustCompile(`sk-(?:ant-|or-v1-|proj-)?[A-Za-z0-9_\-]{20,}`),
		// Google AI Studio.
		regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
		// GitHub tokens, e.g. in webhook payloads.
		regexp.MustCompile(`(?:ghp_|gho_|ghs_|github_pat_)[A-Za-z0-9_]{20,}`),
		// AWS access key IDs.
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
		// Authorization header values.
		regexp.MustCompile(`(?i)\b(?:bearer|basic)\s+[A-Za-z0-9._~+/\-]{16,}=*`),
		// Passwords in URLs such as an OTLP endpoint.
		regexp.MustCompile(`(?i)(?:[a-z][a-z0-9+.\-]*://)[^/\s:@]+:[^/\s@]+@`),
	}
}
