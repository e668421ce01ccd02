// Package sqlstore persists links, credential versions, handshake states and
// webhook deliveries through bun repositories.
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

type LinkStore struct {
	db   *bun.DB
	repo repository.Repository[*linkRecord]
}

func (s *LinkStore) Create(ctx context.Context, in core.CreateLinkInput) (core.Link, error) {
	if s == nil || s.repo == nil {
		return core.Link{}, fmt.Errorf("sqlstore: link store is not configured")
	}
	if err := in.Scope.Validate(); err != nil {
		return core.Link{}, err
	}
	if strings.TrimSpace(in.ProviderID) == "" {
		return core.Link{}, fmt.Errorf("sqlstore: provider id is required")
	}

	status := in.Status
	if strings.TrimSpace(string(status)) == "" {
		status = core.LinkStatusActive
	}

	record := newLinkRecord(core.CreateLinkInput{
		ProviderID:        strings.TrimSpace(in.ProviderID),
		Scope:             in.Scope,
		ExternalAccountID: strings.TrimSpace(in.ExternalAccountID),
		Status:            status,
	}, time.Now().UTC())

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Link{}, err
	}
	return created.toDomain(), nil
}

func (s *LinkStore) Get(ctx context.Context, id string) (core.Link, error) {
	if s == nil || s.repo == nil {
		return core.Link{}, fmt.Errorf("sqlstore: link store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if isNotFound(err) {
			return core.Link{}, core.ErrLinkNotFound
		}
		return core.Link{}, err
	}
	return record.toDomain(), nil
}

func (s *LinkStore) FindByScope(ctx context.Context, providerID string, scope core.ScopeRef) ([]core.Link, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: link store is not configured")
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider_id", "=", strings.TrimSpace(providerID)),
		repository.SelectBy("scope_type", "=", strings.TrimSpace(scope.Type)),
		repository.SelectBy("scope_id", "=", strings.TrimSpace(scope.ID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.Link, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *LinkStore) UpdateStatus(ctx context.Context, id string, status string, reason string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: link store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: link id is required")
	}
	current, err := s.repo.GetByID(ctx, trimmedID)
	if err != nil {
		if isNotFound(err) {
			return core.ErrLinkNotFound
		}
		return err
	}

	link := current.toDomain()
	if err := link.TransitionTo(core.LinkStatus(strings.TrimSpace(status)), reason, time.Now().UTC()); err != nil {
		return err
	}
	current.Status = string(link.Status)
	current.LastError = link.LastError
	current.UpdatedAt = link.UpdatedAt

	_, err = s.repo.Update(ctx, current, repository.UpdateByID(trimmedID))
	return err
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "no rows") || strings.Contains(message, "not found")
}
