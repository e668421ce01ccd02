// Package stripe verifies Stripe webhook deliveries.
package stripe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-linker/core"
	"github.com/goliatone/go-linker/webhooks"
)

const (
	ProviderID = "stripe"

	// SignatureHeader carries "t=<epoch>,v1=<hex>" elements signed with the
	// endpoint secret.
	SignatureHeader = "Stripe-Signature"
)

// NewWebhookVerifier builds the Stripe-Signature verifier. Pass every
// currently valid endpoint secret so signatures keep verifying across a
// secret rotation; a non-positive tolerance falls back to the package
// default window.
func NewWebhookVerifier(tolerance time.Duration, secrets ...string) (webhooks.TimestampedHMACVerifier, error) {
	if len(secrets) == 0 {
		return webhooks.TimestampedHMACVerifier{}, fmt.Errorf("stripe: at least one endpoint secret is required")
	}
	return webhooks.TimestampedHMACVerifier{
		Header:    SignatureHeader,
		Secrets:   secrets,
		Tolerance: tolerance,
	}, nil
}

// stripeEventID pulls the event id out of the delivery body. Retried
// deliveries reuse the same id, which makes it the dedupe key. An empty
// return makes the processor fall back to the body digest.
func stripeEventID(req core.InboundRequest) string {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return ""
	}
	return strings.TrimSpace(envelope.ID)
}

// NewWebhookProcessor assembles the full inbound pipeline for Stripe events.
// Stripe retries deliveries with the same event id, so the ledger keys on
// that id or, absent one, the body digest.
func NewWebhookProcessor(verifier webhooks.Verifier, ledger webhooks.DeliveryLedger, handler webhooks.Handler) *webhooks.Processor {
	return &webhooks.Processor{
		ProviderID: ProviderID,
		Verifier:   verifier,
		Ledger:     ledger,
		Handler:    handler,
		ExtractID:  stripeEventID,
		RetryPolicy: webhooks.ExponentialRetryPolicy{
			Initial: time.Second,
			Max:     5 * time.Minute,
		},
	}
}
