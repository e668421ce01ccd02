package core

import (
	"fmt"
	"strings"
	"time"
)

// ProviderCredentialConfig is the static per-provider configuration loaded
// once at startup. Empty values mean the provider is not configured; the
// service fails closed before any network call.
type ProviderCredentialConfig struct {
	ConsumerKey    string `koanf:"consumer_key" mapstructure:"consumer_key"`
	ConsumerSecret string `koanf:"consumer_secret" mapstructure:"consumer_secret"`
	WebhookSecret  string `koanf:"webhook_secret" mapstructure:"webhook_secret"`
}

func (c ProviderCredentialConfig) Configured() bool {
	return strings.TrimSpace(c.ConsumerKey) != "" && strings.TrimSpace(c.ConsumerSecret) != ""
}

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`
	// CallbackBaseURL is the externally reachable prefix callback routes are
	// mounted under, e.g. https://app.example.com/link.
	CallbackBaseURL string `koanf:"callback_base_url" mapstructure:"callback_base_url"`
	// StateSigningKey authenticates encoded correlation state. Required when
	// no server-side handshake store is configured.
	StateSigningKey string `koanf:"state_signing_key" mapstructure:"state_signing_key"`
	// HandshakeTTL bounds how long a begin-to-callback round trip may take.
	HandshakeTTL time.Duration `koanf:"handshake_ttl" mapstructure:"handshake_ttl"`
	// LegTimeout is the per-network-leg timeout for token exchanges.
	LegTimeout time.Duration `koanf:"leg_timeout" mapstructure:"leg_timeout"`

	Providers map[string]ProviderCredentialConfig `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  "linker",
		HandshakeTTL: 15 * time.Minute,
		LegTimeout:   10 * time.Second,
		Providers:    map[string]ProviderCredentialConfig{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.HandshakeTTL < 0 {
		return fmt.Errorf("core: handshake_ttl must not be negative")
	}
	if c.LegTimeout < 0 {
		return fmt.Errorf("core: leg_timeout must not be negative")
	}
	return nil
}

// Provider returns the credential block for a provider id, zero-valued when
// absent so callers can branch on Configured().
func (c Config) Provider(providerID string) ProviderCredentialConfig {
	if len(c.Providers) == 0 {
		return ProviderCredentialConfig{}
	}
	return c.Providers[strings.TrimSpace(strings.ToLower(providerID))]
}
