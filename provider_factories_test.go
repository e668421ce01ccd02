package linker

import (
	"testing"
	"time"

	"github.com/goliatone/go-linker/core"
	"github.com/goliatone/go-linker/providers/garmin"
	"github.com/goliatone/go-linker/providers/strava"
	"github.com/goliatone/go-linker/webhooks"
)

func TestBuiltInProviderFactories(t *testing.T) {
	garminProvider, err := GarminProvider(garmin.Config{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
	})
	if err != nil {
		t.Fatalf("garmin factory: %v", err)
	}
	if garminProvider.ID() != garmin.ProviderID || garminProvider.AuthKind() != core.AuthKindOAuth1 {
		t.Fatalf("unexpected garmin provider identity: %s/%s", garminProvider.ID(), garminProvider.AuthKind())
	}

	stravaProvider, err := StravaProvider(strava.Config{
		ClientID:     "client",
		ClientSecret: "secret",
	})
	if err != nil {
		t.Fatalf("strava factory: %v", err)
	}
	if stravaProvider.ID() != strava.ProviderID || stravaProvider.AuthKind() != core.AuthKindOAuth2 {
		t.Fatalf("unexpected strava provider identity: %s/%s", stravaProvider.ID(), stravaProvider.AuthKind())
	}
}

func TestProviderFactoriesFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["garmin"] = core.ProviderCredentialConfig{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
	}

	if _, err := GarminProviderFromConfig(cfg); err != nil {
		t.Fatalf("garmin from config: %v", err)
	}

	// Strava credentials are absent, so the factory must fail closed.
	if _, err := StravaProviderFromConfig(cfg); err == nil {
		t.Fatalf("expected unconfigured strava factory to fail")
	}
}

func TestStripeWebhookFactories(t *testing.T) {
	verifier, err := StripeWebhookVerifier(5*time.Minute, "whsec_test")
	if err != nil {
		t.Fatalf("stripe verifier factory: %v", err)
	}

	processor := StripeWebhookProcessor(verifier, webhooks.NewMemoryDeliveryLedger(), nil)
	if processor == nil {
		t.Fatalf("expected stripe webhook processor")
	}

	if _, err := StripeWebhookVerifier(5 * time.Minute); err == nil {
		t.Fatalf("expected verifier factory to require a secret")
	}
}

func TestStravaSubscriptionValidatorFactory(t *testing.T) {
	validator := StravaSubscriptionValidator("verify-1")
	if validator == nil || validator.VerifyToken != "verify-1" {
		t.Fatalf("unexpected validator %+v", validator)
	}
}
