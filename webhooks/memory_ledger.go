package webhooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDeliveryLedger is an in-process DeliveryLedger for single-node
// deployments and tests. SQL-backed deployments should use the store
// package implementation instead.
type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	records map[string]*DeliveryRecord
	byClaim map[string]string
	now     func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		records: map[string]*DeliveryRecord{},
		byClaim: map[string]string{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryDeliveryLedger) Claim(_ context.Context, providerID string, deliveryID string, _ []byte, lease time.Duration) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: delivery ledger is not initialized")
	}
	if providerID == "" || deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := ledgerKey(providerID, deliveryID)
	record, ok := l.records[key]
	if !ok {
		record = &DeliveryRecord{
			ID:         uuid.NewString(),
			ProviderID: providerID,
			DeliveryID: deliveryID,
			ReceivedAt: now,
		}
		l.records[key] = record
	}

	switch record.Status {
	case DeliveryStatusProcessed, DeliveryStatusDead:
		return *record, false, nil
	case DeliveryStatusProcessing:
		if now.Before(record.LeaseExpires) {
			return *record, false, nil
		}
	case DeliveryStatusRetryReady:
		if now.Before(record.NextAttemptAt) {
			return *record, false, nil
		}
	}

	delete(l.byClaim, record.ClaimID)
	record.Status = DeliveryStatusProcessing
	record.Attempts++
	record.ClaimID = uuid.NewString()
	record.LeaseExpires = now.Add(lease)
	record.UpdatedAt = now
	l.byClaim[record.ClaimID] = key

	return *record, true, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, providerID string, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery ledger is not initialized")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[ledgerKey(providerID, deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery record not found")
	}
	return *record, nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	if l == nil {
		return fmt.Errorf("webhooks: delivery ledger is not initialized")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	record, err := l.claimedLocked(claimID)
	if err != nil {
		return err
	}
	record.Status = DeliveryStatusProcessed
	record.LastError = ""
	record.UpdatedAt = l.now()
	return nil
}

func (l *MemoryDeliveryLedger) Fail(_ context.Context, claimID string, cause string, nextAttemptAt time.Time, maxAttempts int) error {
	if l == nil {
		return fmt.Errorf("webhooks: delivery ledger is not initialized")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	record, err := l.claimedLocked(claimID)
	if err != nil {
		return err
	}
	record.LastError = cause
	record.UpdatedAt = l.now()
	if maxAttempts > 0 && record.Attempts >= maxAttempts {
		record.Status = DeliveryStatusDead
		return nil
	}
	record.Status = DeliveryStatusRetryReady
	record.NextAttemptAt = nextAttemptAt.UTC()
	return nil
}

func (l *MemoryDeliveryLedger) claimedLocked(claimID string) (*DeliveryRecord, error) {
	key, ok := l.byClaim[claimID]
	if !ok {
		return nil, fmt.Errorf("webhooks: claim %q is not active", claimID)
	}
	record := l.records[key]
	if record == nil || record.Status != DeliveryStatusProcessing {
		return nil, fmt.Errorf("webhooks: claim %q is not active", claimID)
	}
	return record, nil
}

func ledgerKey(providerID string, deliveryID string) string {
	return providerID + "\x1f" + deliveryID
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
