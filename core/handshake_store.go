package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultHandshakeTTL        = 15 * time.Minute
	defaultHandshakeMaxEntries = 4096
)

// HandshakeRecord is the server-side half of one authorization attempt. The
// temporary token secret lives here, keyed by the random correlation value,
// so it never has to ride the redirect URL when a store is configured.
type HandshakeRecord struct {
	State          string
	ProviderID     string
	Scope          ScopeRef
	RedirectURI    string
	CallerState    string
	TemporaryToken string
	TokenSecret    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// HandshakeStore persists records for the begin-to-callback window. Peek
// validates without spending the record; Consume is one-shot, a state value
// resolves at most once.
type HandshakeStore interface {
	Save(ctx context.Context, record HandshakeRecord) error
	Peek(ctx context.Context, state string) (HandshakeRecord, error)
	Consume(ctx context.Context, state string) (HandshakeRecord, error)
}

type MemoryHandshakeStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]HandshakeRecord
}

func NewMemoryHandshakeStore(ttl time.Duration) *MemoryHandshakeStore {
	return NewMemoryHandshakeStoreWithLimits(ttl, defaultHandshakeMaxEntries)
}

func NewMemoryHandshakeStoreWithLimits(ttl time.Duration, maxEntries int) *MemoryHandshakeStore {
	if ttl <= 0 {
		ttl = defaultHandshakeTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultHandshakeMaxEntries
	}
	return &MemoryHandshakeStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]HandshakeRecord{},
	}
}

func (s *MemoryHandshakeStore) Save(_ context.Context, record HandshakeRecord) error {
	if s == nil {
		return fmt.Errorf("core: handshake store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("core: handshake state is required")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.entries[state] = record
	s.evictOldestLocked()
	s.mu.Unlock()

	return nil
}

func (s *MemoryHandshakeStore) Peek(_ context.Context, state string) (HandshakeRecord, error) {
	if s == nil {
		return HandshakeRecord{}, fmt.Errorf("core: handshake store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return HandshakeRecord{}, fmt.Errorf("core: handshake state is required")
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	s.mu.Unlock()

	if !ok {
		return HandshakeRecord{}, ErrHandshakeStateNotFound
	}
	if !record.ExpiresAt.IsZero() && time.Now().UTC().After(record.ExpiresAt) {
		return HandshakeRecord{}, ErrHandshakeStateExpired
	}

	return record, nil
}

func (s *MemoryHandshakeStore) Consume(_ context.Context, state string) (HandshakeRecord, error) {
	if s == nil {
		return HandshakeRecord{}, fmt.Errorf("core: handshake store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return HandshakeRecord{}, fmt.Errorf("core: handshake state is required")
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return HandshakeRecord{}, ErrHandshakeStateNotFound
	}
	if !record.ExpiresAt.IsZero() && time.Now().UTC().After(record.ExpiresAt) {
		return HandshakeRecord{}, ErrHandshakeStateExpired
	}

	return record, nil
}

func (s *MemoryHandshakeStore) pruneLocked(now time.Time) {
	for state, record := range s.entries {
		if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
			delete(s.entries, state)
		}
	}
}

func (s *MemoryHandshakeStore) evictOldestLocked() {
	if len(s.entries) <= s.maxEntries {
		return
	}
	states := make([]string, 0, len(s.entries))
	for state := range s.entries {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return s.entries[states[i]].CreatedAt.Before(s.entries[states[j]].CreatedAt)
	})
	for _, state := range states {
		if len(s.entries) <= s.maxEntries {
			return
		}
		delete(s.entries, state)
	}
}

func generateCorrelationValue() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate correlation value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

var _ HandshakeStore = (*MemoryHandshakeStore)(nil)
