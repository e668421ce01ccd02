package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-linker/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

// SaveNewVersion retires the current active credential and inserts the next
// version inside one transaction, so there is at most one active row per
// link at any time.
func (s *CredentialStore) SaveNewVersion(ctx context.Context, in core.SaveCredentialInput) (core.Credential, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	trimmedLinkID := strings.TrimSpace(in.LinkID)
	if trimmedLinkID == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: link id is required")
	}
	if len(in.EncryptedPayload) == 0 {
		return core.Credential{}, fmt.Errorf("sqlstore: encrypted payload is required")
	}

	status := in.Status
	if strings.TrimSpace(string(status)) == "" {
		status = core.CredentialStatusActive
	}
	in.LinkID = trimmedLinkID
	in.Status = status
	now := time.Now().UTC()

	var created core.Credential
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		nextVersion, versionErr := s.nextVersion(ctx, tx, trimmedLinkID)
		if versionErr != nil {
			return versionErr
		}

		if status == core.CredentialStatusActive {
			_, updateErr := tx.NewUpdate().
				Model((*credentialRecord)(nil)).
				Set("status = ?", string(core.CredentialStatusRetired)).
				Set("revocation_reason = ?", "rotated").
				Set("updated_at = ?", now).
				Where("link_id = ?", trimmedLinkID).
				Where("status = ?", string(core.CredentialStatusActive)).
				Exec(ctx)
			if updateErr != nil {
				return updateErr
			}
		}

		record := newCredentialRecord(in, nextVersion, now)
		inserted, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			return createErr
		}
		created = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.Credential{}, err
	}

	return created, nil
}

func (s *CredentialStore) GetActiveByLink(ctx context.Context, linkID string) (core.Credential, []byte, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("link_id", "=", strings.TrimSpace(linkID)),
		repository.SelectBy("status", "=", string(core.CredentialStatusActive)),
		repository.OrderBy("version DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, nil, err
	}
	if len(records) == 0 {
		return core.Credential{}, nil, core.ErrCredentialNotFound
	}
	payload := append([]byte(nil), records[0].EncryptedPayload...)
	return records[0].toDomain(), payload, nil
}

func (s *CredentialStore) RevokeActive(ctx context.Context, linkID string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	trimmedLinkID := strings.TrimSpace(linkID)
	if trimmedLinkID == "" {
		return fmt.Errorf("sqlstore: link id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "revoked"
	}

	_, err := s.db.NewUpdate().
		Model((*credentialRecord)(nil)).
		Set("status = ?", string(core.CredentialStatusRevoked)).
		Set("revocation_reason = ?", reason).
		Set("updated_at = ?", time.Now().UTC()).
		Where("link_id = ?", trimmedLinkID).
		Where("status = ?", string(core.CredentialStatusActive)).
		Exec(ctx)
	return err
}

func (s *CredentialStore) nextVersion(ctx context.Context, tx bun.Tx, linkID string) (int, error) {
	var maxVersion int
	if err := tx.NewSelect().
		Model((*credentialRecord)(nil)).
		ColumnExpr("COALESCE(MAX(version), 0)").
		Where("?TableAlias.link_id = ?", linkID).
		Scan(ctx, &maxVersion); err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}
