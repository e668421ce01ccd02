package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-linker/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// HandshakeStore keeps authorization-attempt state in SQL so multi-node
// deployments share one handshake namespace. Consume deletes inside a
// transaction, which keeps the one-shot guarantee across nodes.
type HandshakeStore struct {
	db  *bun.DB
	ttl time.Duration
}

func NewHandshakeStore(db *bun.DB, ttl time.Duration) (*HandshakeStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &HandshakeStore{db: db, ttl: ttl}, nil
}

func (s *HandshakeStore) Save(ctx context.Context, record core.HandshakeRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: handshake store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("sqlstore: handshake state is required")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}
	record.State = state

	row := newHandshakeRecord(record)
	row.ID = uuid.NewString()

	// Expired leftovers under the same state value make the insert ambiguous.
	_, _ = s.db.NewDelete().
		Model((*handshakeRecord)(nil)).
		Where("state = ?", state).
		Where("expires_at < ?", now).
		Exec(ctx)

	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (s *HandshakeStore) Peek(ctx context.Context, state string) (core.HandshakeRecord, error) {
	if s == nil || s.db == nil {
		return core.HandshakeRecord{}, fmt.Errorf("sqlstore: handshake store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.HandshakeRecord{}, fmt.Errorf("sqlstore: handshake state is required")
	}

	row := &handshakeRecord{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.state = ?", state).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.HandshakeRecord{}, core.ErrHandshakeStateNotFound
		}
		return core.HandshakeRecord{}, err
	}
	if time.Now().UTC().After(row.ExpiresAt) {
		return core.HandshakeRecord{}, core.ErrHandshakeStateExpired
	}
	return row.toDomain(), nil
}

func (s *HandshakeStore) Consume(ctx context.Context, state string) (core.HandshakeRecord, error) {
	if s == nil || s.db == nil {
		return core.HandshakeRecord{}, fmt.Errorf("sqlstore: handshake store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.HandshakeRecord{}, fmt.Errorf("sqlstore: handshake state is required")
	}

	var consumed core.HandshakeRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := &handshakeRecord{}
		if err := tx.NewSelect().
			Model(row).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrHandshakeStateNotFound
			}
			return err
		}

		result, err := tx.NewDelete().
			Model((*handshakeRecord)(nil)).
			Where("state = ?", state).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return core.ErrHandshakeStateNotFound
		}

		if time.Now().UTC().After(row.ExpiresAt) {
			return core.ErrHandshakeStateExpired
		}
		consumed = row.toDomain()
		return nil
	})
	if err != nil {
		return core.HandshakeRecord{}, err
	}
	return consumed, nil
}

// PruneExpired removes stale handshake rows; intended to run from a
// maintenance job.
func (s *HandshakeStore) PruneExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: handshake store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*handshakeRecord)(nil)).
		Where("expires_at < ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

var _ core.HandshakeStore = (*HandshakeStore)(nil)
