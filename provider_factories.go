package linker

import (
	"time"

	"github.com/goliatone/go-linker/core"
	"github.com/goliatone/go-linker/providers/garmin"
	"github.com/goliatone/go-linker/providers/strava"
	"github.com/goliatone/go-linker/providers/stripe"
	"github.com/goliatone/go-linker/webhooks"
)

func GarminProvider(cfg garmin.Config) (core.Provider, error) {
	return garmin.New(cfg)
}

func StravaProvider(cfg strava.Config) (core.Provider, error) {
	return strava.New(cfg)
}

// GarminProviderFromConfig builds the Garmin provider off the static provider
// credential block. Missing credentials fail closed here, before any leg runs.
func GarminProviderFromConfig(cfg core.Config) (core.Provider, error) {
	creds, ok := cfg.Providers[garmin.ProviderID]
	if !ok || !creds.Configured() {
		return nil, core.NotConfiguredError("linker: provider garmin has no consumer credentials")
	}
	return garmin.New(garmin.Config{
		ConsumerKey:    creds.ConsumerKey,
		ConsumerSecret: creds.ConsumerSecret,
		LegTimeout:     cfg.LegTimeout,
	})
}

// StravaProviderFromConfig maps the shared credential block onto the OAuth2
// client pair.
func StravaProviderFromConfig(cfg core.Config) (core.Provider, error) {
	creds, ok := cfg.Providers[strava.ProviderID]
	if !ok || !creds.Configured() {
		return nil, core.NotConfiguredError("linker: provider strava has no client credentials")
	}
	return strava.New(strava.Config{
		ClientID:     creds.ConsumerKey,
		ClientSecret: creds.ConsumerSecret,
		LegTimeout:   cfg.LegTimeout,
	})
}

func StripeWebhookVerifier(tolerance time.Duration, secrets ...string) (webhooks.TimestampedHMACVerifier, error) {
	return stripe.NewWebhookVerifier(tolerance, secrets...)
}

func StripeWebhookProcessor(verifier webhooks.Verifier, ledger webhooks.DeliveryLedger, handler webhooks.Handler) *webhooks.Processor {
	return stripe.NewWebhookProcessor(verifier, ledger, handler)
}

func StravaSubscriptionValidator(verifyToken string) *strava.SubscriptionValidator {
	return &strava.SubscriptionValidator{VerifyToken: verifyToken}
}
