package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidScopeType              = errors.New("core: invalid scope type")
	ErrInvalidLinkStatusTransition   = errors.New("core: invalid link status transition")
	ErrLinkNotFound                  = errors.New("core: link not found")
	ErrCredentialNotFound            = errors.New("core: credential not found")
	ErrHandshakeStateNotFound        = errors.New("core: handshake state not found")
	ErrHandshakeStateExpired         = errors.New("core: handshake state expired")
	ErrTemporarySecretRequired       = errors.New("core: temporary token secret is required")
	ErrWebhookDeliveryAlreadyClaimed = errors.New("core: webhook delivery already claimed")
)

type ScopeType string

const (
	ScopeTypeUser ScopeType = "user"
	ScopeTypeOrg  ScopeType = "org"
)

type ScopeRef struct {
	Type string
	ID   string
}

func (s ScopeRef) Validate() error {
	t := strings.TrimSpace(strings.ToLower(s.Type))
	if t != string(ScopeTypeUser) && t != string(ScopeTypeOrg) {
		return fmt.Errorf("%w: %q", ErrInvalidScopeType, s.Type)
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidScopeType)
	}
	return nil
}

type LinkStatus string

const (
	LinkStatusActive        LinkStatus = "active"
	LinkStatusRevoked       LinkStatus = "revoked"
	LinkStatusErrored       LinkStatus = "errored"
	LinkStatusPendingReauth LinkStatus = "pending_reauth"
)

// Link is one account's connection to an external provider. The access
// material itself lives in a Credential version, never on the link row.
type Link struct {
	ID                string
	ProviderID        string
	ScopeType         string
	ScopeID           string
	ExternalAccountID string
	Status            LinkStatus
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (l *Link) TransitionTo(status LinkStatus, reason string, now time.Time) error {
	if l == nil {
		return nil
	}
	if l.Status == status {
		l.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			l.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !linkTransitionAllowed(l.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidLinkStatusTransition, l.Status, status)
	}
	l.Status = status
	l.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		l.LastError = strings.TrimSpace(reason)
	}
	if status == LinkStatusActive {
		l.LastError = ""
	}
	return nil
}

func linkTransitionAllowed(current, next LinkStatus) bool {
	allowed := map[LinkStatus]map[LinkStatus]struct{}{
		LinkStatusActive: {
			LinkStatusRevoked:       {},
			LinkStatusErrored:       {},
			LinkStatusPendingReauth: {},
		},
		LinkStatusRevoked: {
			LinkStatusActive: {},
		},
		LinkStatusErrored: {
			LinkStatusActive:        {},
			LinkStatusPendingReauth: {},
			LinkStatusRevoked:       {},
		},
		LinkStatusPendingReauth: {
			LinkStatusActive:  {},
			LinkStatusRevoked: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

type CredentialStatus string

const (
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusRetired CredentialStatus = "retired"
	CredentialStatusRevoked CredentialStatus = "revoked"
)

// Credential is a stored, versioned long-lived credential. The token payload
// is held encrypted; decrypted material only exists as an ActiveCredential.
type Credential struct {
	ID               string
	LinkID           string
	Version          int
	TokenType        string
	ExpiresAt        time.Time
	Refreshable      bool
	Status           CredentialStatus
	RevocationReason string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TemporaryCredential is the output of the first 1.0a handshake leg. It lives
// for one authorization attempt: created at begin, consumed at complete.
type TemporaryCredential struct {
	Token       string
	TokenSecret string
	IssuedAt    time.Time
}

// CorrelationState is the value round-tripped through the provider redirect.
// CallerState is opaque application state; TokenSecret is the temporary
// secret from leg one, which callers need to sign leg two.
type CorrelationState struct {
	CallerState string
	TokenSecret string
}
