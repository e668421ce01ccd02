package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

type testProvider struct {
	id       string
	authKind string

	beginCalls    int
	completeCalls int
	refreshCalls  int

	lastBeginAuthRequest    BeginAuthRequest
	lastCompleteAuthRequest CompleteAuthRequest

	temporary TemporaryCredential
	beginErr  error
}

func (p *testProvider) ID() string { return p.id }

func (p *testProvider) AuthKind() string {
	if p.authKind == "" {
		return AuthKindOAuth2
	}
	return p.authKind
}

func (p *testProvider) BeginAuth(_ context.Context, req BeginAuthRequest) (BeginAuthResponse, error) {
	p.beginCalls++
	p.lastBeginAuthRequest = req
	if p.beginErr != nil {
		return BeginAuthResponse{}, p.beginErr
	}
	return BeginAuthResponse{
		URL:       "https://provider.example/authorize?state=" + req.State,
		State:     req.State,
		Temporary: p.temporary,
	}, nil
}

func (p *testProvider) CompleteAuth(_ context.Context, req CompleteAuthRequest) (CompleteAuthResponse, error) {
	p.completeCalls++
	p.lastCompleteAuthRequest = req
	if p.AuthKind() == AuthKindOAuth1 && strings.TrimSpace(req.TokenSecret) == "" {
		return CompleteAuthResponse{}, ErrTemporarySecretRequired
	}
	expires := time.Now().UTC().Add(time.Hour)
	return CompleteAuthResponse{
		ExternalAccountID: "acct_1",
		Credential: ActiveCredential{
			TokenType:   "bearer",
			AccessToken: "access-token-1",
			Refreshable: true,
			ExpiresAt:   &expires,
		},
	}, nil
}

func (p *testProvider) Refresh(context.Context, ActiveCredential) (RefreshResult, error) {
	p.refreshCalls++
	expires := time.Now().UTC().Add(2 * time.Hour)
	return RefreshResult{Credential: ActiveCredential{
		TokenType:   "bearer",
		AccessToken: "access-token-2",
		Refreshable: true,
		ExpiresAt:   &expires,
	}}, nil
}

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	return []byte("enc:" + base64.StdEncoding.EncodeToString(plaintext)), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

type memoryLinkStore struct {
	mu   sync.Mutex
	next int
	byID map[string]Link
}

func newMemoryLinkStore() *memoryLinkStore {
	return &memoryLinkStore{byID: map[string]Link{}}
}

func (s *memoryLinkStore) Create(_ context.Context, in CreateLinkInput) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	now := time.Now().UTC()
	link := Link{
		ID:                fmt.Sprintf("link_%d", s.next),
		ProviderID:        in.ProviderID,
		ScopeType:         in.Scope.Type,
		ScopeID:           in.Scope.ID,
		ExternalAccountID: in.ExternalAccountID,
		Status:            in.Status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.byID[link.ID] = link
	return link, nil
}

func (s *memoryLinkStore) Get(_ context.Context, id string) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.byID[id]
	if !ok {
		return Link{}, ErrLinkNotFound
	}
	return link, nil
}

func (s *memoryLinkStore) FindByScope(_ context.Context, providerID string, scope ScopeRef) ([]Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []Link{}
	for _, link := range s.byID {
		if link.ProviderID == providerID && link.ScopeType == scope.Type && link.ScopeID == scope.ID {
			matches = append(matches, link)
		}
	}
	return matches, nil
}

func (s *memoryLinkStore) UpdateStatus(_ context.Context, id string, status string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.byID[id]
	if !ok {
		return ErrLinkNotFound
	}
	link.Status = LinkStatus(status)
	link.LastError = reason
	link.UpdatedAt = time.Now().UTC()
	s.byID[id] = link
	return nil
}

type storedCredential struct {
	credential Credential
	payload    []byte
}

type memoryCredentialStore struct {
	mu     sync.Mutex
	next   int
	byLink map[string][]storedCredential
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{byLink: map[string][]storedCredential{}}
}

func (s *memoryCredentialStore) SaveNewVersion(_ context.Context, in SaveCredentialInput) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	versions := s.byLink[in.LinkID]
	for i := range versions {
		if versions[i].credential.Status == CredentialStatusActive {
			versions[i].credential.Status = CredentialStatusRetired
		}
	}
	credential := Credential{
		ID:          fmt.Sprintf("cred_%d", s.next),
		LinkID:      in.LinkID,
		Version:     len(versions) + 1,
		TokenType:   in.TokenType,
		Refreshable: in.Refreshable,
		Status:      in.Status,
		CreatedAt:   time.Now().UTC(),
	}
	if in.ExpiresAt != nil {
		credential.ExpiresAt = *in.ExpiresAt
	}
	s.byLink[in.LinkID] = append(versions, storedCredential{
		credential: credential,
		payload:    append([]byte(nil), in.EncryptedPayload...),
	})
	return credential, nil
}

func (s *memoryCredentialStore) GetActiveByLink(_ context.Context, linkID string) (Credential, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.byLink[linkID]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].credential.Status == CredentialStatusActive {
			return versions[i].credential, append([]byte(nil), versions[i].payload...), nil
		}
	}
	return Credential{}, nil, ErrCredentialNotFound
}

func (s *memoryCredentialStore) RevokeActive(_ context.Context, linkID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.byLink[linkID]
	for i := range versions {
		if versions[i].credential.Status == CredentialStatusActive {
			versions[i].credential.Status = CredentialStatusRevoked
			versions[i].credential.RevocationReason = reason
		}
	}
	return nil
}

func newTestService(t interface{ Fatalf(string, ...any) }, provider Provider, options ...Option) *Service {
	registry := NewProviderRegistry()
	if provider != nil {
		if err := registry.Register(provider); err != nil {
			t.Fatalf("register provider: %v", err)
		}
	}
	base := []Option{
		WithRegistry(registry),
		WithLinkStore(newMemoryLinkStore()),
		WithCredentialStore(newMemoryCredentialStore()),
		WithSecretProvider(testSecretProvider{}),
	}
	svc, err := NewService(
		Config{StateSigningKey: "test-signing-key"},
		append(base, options...)...,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}
