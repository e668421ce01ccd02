package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-linker/webhooks"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WebhookDeliveryStore is the SQL DeliveryLedger. The unique
// provider/delivery pair makes concurrent first claims race on the insert;
// the loser falls through to the claim-or-dedupe path.
type WebhookDeliveryStore struct {
	db *bun.DB
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &WebhookDeliveryStore{db: db}, nil
}

func (s *WebhookDeliveryStore) Claim(ctx context.Context, providerID string, deliveryID string, payload []byte, lease time.Duration) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}

	now := time.Now().UTC()
	claimID := uuid.NewString()
	leaseExpires := now.Add(lease)

	row := &webhookDeliveryRecord{
		ID:           uuid.NewString(),
		ProviderID:   providerID,
		DeliveryID:   deliveryID,
		Status:       webhooks.DeliveryStatusProcessing,
		Attempts:     1,
		ClaimID:      claimID,
		LeaseExpires: &leaseExpires,
		Payload:      append([]byte(nil), payload...),
		ReceivedAt:   now,
		UpdatedAt:    now,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return webhooks.DeliveryRecord{}, false, err
		}
		return s.reclaim(ctx, providerID, deliveryID, claimID, now, leaseExpires)
	}
	return webhookDeliveryToDomain(row), true, nil
}

// reclaim moves an existing row back to processing when its retry window or
// claim lease has lapsed; anything else dedupes.
func (s *WebhookDeliveryStore) reclaim(ctx context.Context, providerID string, deliveryID string, claimID string, now time.Time, leaseExpires time.Time) (webhooks.DeliveryRecord, bool, error) {
	result, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessing).
		Set("attempts = attempts + 1").
		Set("claim_id = ?", claimID).
		Set("lease_expires_at = ?", leaseExpires).
		Set("updated_at = ?", now).
		Where("provider_id = ?", providerID).
		Where("delivery_id = ?", deliveryID).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("(status = ? AND next_attempt_at <= ?)", webhooks.DeliveryStatusRetryReady, now).
				WhereOr("(status = ? AND lease_expires_at <= ?)", webhooks.DeliveryStatusProcessing, now)
		}).
		Exec(ctx)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}

	record, getErr := s.Get(ctx, providerID, deliveryID)
	if getErr != nil {
		return webhooks.DeliveryRecord{}, false, getErr
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return record, false, nil
	}
	return record, true, nil
}

func (s *WebhookDeliveryStore) Get(ctx context.Context, providerID string, deliveryID string) (webhooks.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	row := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.delivery_id = ?", strings.TrimSpace(deliveryID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return webhooks.DeliveryRecord{}, fmt.Errorf(
				"sqlstore: webhook delivery not found for provider %q delivery %q",
				providerID, deliveryID,
			)
		}
		return webhooks.DeliveryRecord{}, err
	}
	return webhookDeliveryToDomain(row), nil
}

func (s *WebhookDeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessed).
		Set("last_error = ?", "").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("claim_id = ?", strings.TrimSpace(claimID)).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("sqlstore: claim %q is not active", claimID)
	}
	return nil
}

func (s *WebhookDeliveryStore) Fail(ctx context.Context, claimID string, cause string, nextAttemptAt time.Time, maxAttempts int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	now := time.Now().UTC()

	row := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.claim_id = ?", claimID).
		Where("?TableAlias.status = ?", webhooks.DeliveryStatusProcessing).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlstore: claim %q is not active", claimID)
		}
		return err
	}

	status := webhooks.DeliveryStatusRetryReady
	if maxAttempts > 0 && row.Attempts >= maxAttempts {
		status = webhooks.DeliveryStatusDead
	}

	update := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", status).
		Set("last_error = ?", cause).
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID)
	if status == webhooks.DeliveryStatusRetryReady {
		update = update.Set("next_attempt_at = ?", nextAttemptAt.UTC())
	} else {
		update = update.Set("next_attempt_at = NULL")
	}
	_, err = update.Exec(ctx)
	return err
}

func webhookDeliveryToDomain(row *webhookDeliveryRecord) webhooks.DeliveryRecord {
	if row == nil {
		return webhooks.DeliveryRecord{}
	}
	record := webhooks.DeliveryRecord{
		ID:         row.ID,
		ProviderID: row.ProviderID,
		DeliveryID: row.DeliveryID,
		Status:     row.Status,
		Attempts:   row.Attempts,
		ClaimID:    row.ClaimID,
		LastError:  row.LastError,
		ReceivedAt: row.ReceivedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.LeaseExpires != nil {
		record.LeaseExpires = *row.LeaseExpires
	}
	if row.NextAttemptAt != nil {
		record.NextAttemptAt = *row.NextAttemptAt
	}
	return record
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
