package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
)

// Config is the gateway.http section of tavern.yaml.
type Config struct {
	// Bind is the listen address, loopback port 8080 unless set.
	Bind string `yaml:"bind"`
	// Auth guards /v1/assemble and the admin routes.
	Auth AuthConfig `yaml:"auth"`
	// Webhooks maps a source name to its signing secret.
	Webhooks  map[string]WebhookSource `yaml:"webhooks"`
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`

	MaxBodyBytes    int           `yaml:"max_body_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (c *Config) defaults() {
	setDefault(&c.Bind, "127.0.0.1:8080")
	setDefault(&c.MaxBodyBytes, security.DefaultMaxPayloadSize)
	setDefault(&c.ReadTimeout, 10*time.Second)
	setDefault(&c.WriteTimeout, 30*time.Second)
	setDefault(&c.ShutdownTimeout, 5*time.Second)
}

// setDefault replaces a zero or negative *v with def.
func setDefault[T string | int | time.Duration](v *T, def T) {
	var zero T
	if *v <= zero {
		*v = def
	}
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("gateway: invalid bind address %q", c.Bind))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("gateway: basic_user and basic_pass must be set together"))
	}
	for source, wh := range c.Webhooks {
		if wh.Secret == "" {
			errs = append(errs, fmt.Errorf("gateway: webhook source %q requires a secret", source))
		}
	}
	return errors.Join(errs...)
}

// AuthConfig holds the gateway credentials. Either scheme is accepted
// when both are set.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether requests must authenticate.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

func (a AuthConfig) secrets() []string {
	return []string{a.BearerToken, a.BasicPass}
}

// WebhookSource configures one /webhooks/{source} endpoint. Payloads must
// carry an X-Signature-256 HMAC of the body under Secret.
type WebhookSource struct {
	Secret string `yaml:"secret"`
}
