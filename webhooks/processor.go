package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-linker/core"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

const (
	defaultClaimLease  = 30 * time.Second
	defaultMaxAttempts = 8
)

type DeliveryRecord struct {
	ID            string
	ProviderID    string
	DeliveryID    string
	Status        string
	Attempts      int
	ClaimID       string
	LeaseExpires  time.Time
	LastError     string
	NextAttemptAt time.Time
	ReceivedAt    time.Time
	UpdatedAt     time.Time
}

// DeliveryLedger persists inbound deliveries so that duplicates collapse and
// failed handler runs can be retried. Claim is the dedupe gate: the second
// claim for the same provider/delivery pair reports claimed=false.
type DeliveryLedger interface {
	Claim(ctx context.Context, providerID string, deliveryID string, payload []byte, lease time.Duration) (DeliveryRecord, bool, error)
	Get(ctx context.Context, providerID string, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause string, nextAttemptAt time.Time, maxAttempts int) error
}

// DeliveryIDExtractor derives the idempotency key for a delivery. When the
// provider sends no usable identifier, hashing the body is a safe fallback.
type DeliveryIDExtractor func(req core.InboundRequest) string

func HeaderDeliveryID(header string) DeliveryIDExtractor {
	return func(req core.InboundRequest) string {
		return strings.TrimSpace(headerValue(req.Headers, header))
	}
}

func BodyDigestDeliveryID(req core.InboundRequest) string {
	sum := sha256.Sum256(req.Body)
	return hex.EncodeToString(sum[:])
}

type Handler func(ctx context.Context, req core.InboundRequest) error

// ExponentialRetryPolicy doubles the delay per attempt up to Max.
type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	max := p.Max
	if max <= 0 {
		max = 5 * time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Processor runs the inbound pipeline: verify the signature, claim the
// delivery for dedupe, hand the payload to the handler, then settle the
// ledger entry. Rejected signatures never reach the handler or the ledger,
// and the result carries no detail about why verification failed.
type Processor struct {
	ProviderID  string
	Verifier    Verifier
	Ledger      DeliveryLedger
	Handler     Handler
	ExtractID   DeliveryIDExtractor
	RetryPolicy ExponentialRetryPolicy
	ClaimLease  time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor is not configured")
	}
	if p.Verifier == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: verifier is required")
	}
	if p.Handler == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: handler is required")
	}
	if req.ProviderID == "" {
		req.ProviderID = p.ProviderID
	}

	if err := p.Verifier.Verify(ctx, req); err != nil {
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
		}, err
	}

	if p.Ledger == nil {
		if err := p.Handler(ctx, req); err != nil {
			return core.InboundResult{Accepted: false, StatusCode: http.StatusInternalServerError}, err
		}
		return core.InboundResult{Accepted: true, StatusCode: http.StatusOK}, nil
	}

	deliveryID := ""
	if p.ExtractID != nil {
		deliveryID = p.ExtractID(req)
	}
	if deliveryID == "" {
		deliveryID = BodyDigestDeliveryID(req)
	}

	lease := p.ClaimLease
	if lease <= 0 {
		lease = defaultClaimLease
	}
	record, claimed, err := p.Ledger.Claim(ctx, req.ProviderID, deliveryID, req.Body, lease)
	if err != nil {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusInternalServerError}, err
	}
	if !claimed {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"deduped":     true,
				"delivery_id": deliveryID,
			},
		}, nil
	}

	if err := p.Handler(ctx, req); err != nil {
		now := time.Now().UTC()
		if p.Now != nil {
			now = p.Now().UTC()
		}
		maxAttempts := p.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = defaultMaxAttempts
		}
		nextAttemptAt := now.Add(p.RetryPolicy.NextDelay(record.Attempts))
		if failErr := p.Ledger.Fail(ctx, record.ClaimID, err.Error(), nextAttemptAt, maxAttempts); failErr != nil {
			return core.InboundResult{Accepted: false, StatusCode: http.StatusInternalServerError}, failErr
		}
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusInternalServerError,
			Metadata: map[string]any{
				"delivery_id": deliveryID,
				"attempts":    record.Attempts,
			},
		}, err
	}

	if err := p.Ledger.Complete(ctx, record.ClaimID); err != nil {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusInternalServerError}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"delivery_id": deliveryID,
		},
	}, nil
}
