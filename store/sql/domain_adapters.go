package sqlstore

import (
	"time"

	"github.com/goliatone/go-linker/core"
)

func newLinkRecord(in core.CreateLinkInput, now time.Time) *linkRecord {
	return &linkRecord{
		ProviderID:        in.ProviderID,
		ScopeType:         in.Scope.Type,
		ScopeID:           in.Scope.ID,
		ExternalAccountID: in.ExternalAccountID,
		Status:            string(in.Status),
		LastError:         "",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *linkRecord) toDomain() core.Link {
	if r == nil {
		return core.Link{}
	}
	return core.Link{
		ID:                r.ID,
		ProviderID:        r.ProviderID,
		ScopeType:         r.ScopeType,
		ScopeID:           r.ScopeID,
		ExternalAccountID: r.ExternalAccountID,
		Status:            core.LinkStatus(r.Status),
		LastError:         r.LastError,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func newCredentialRecord(in core.SaveCredentialInput, version int, now time.Time) *credentialRecord {
	record := &credentialRecord{
		LinkID:            in.LinkID,
		Version:           version,
		EncryptedPayload:  append([]byte(nil), in.EncryptedPayload...),
		PayloadFormat:     in.PayloadFormat,
		PayloadVersion:    in.PayloadVersion,
		TokenType:         in.TokenType,
		Refreshable:       in.Refreshable,
		Status:            string(in.Status),
		EncryptionKeyID:   in.EncryptionKeyID,
		EncryptionVersion: in.EncryptionVersion,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.ExpiresAt != nil {
		expiresAt := *in.ExpiresAt
		record.ExpiresAt = &expiresAt
	}
	return record
}

func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	credential := core.Credential{
		ID:               r.ID,
		LinkID:           r.LinkID,
		Version:          r.Version,
		TokenType:        r.TokenType,
		Refreshable:      r.Refreshable,
		Status:           core.CredentialStatus(r.Status),
		RevocationReason: r.RevocationReason,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		credential.ExpiresAt = *r.ExpiresAt
	}
	return credential
}

func newHandshakeRecord(in core.HandshakeRecord) *handshakeRecord {
	return &handshakeRecord{
		State:          in.State,
		ProviderID:     in.ProviderID,
		ScopeType:      in.Scope.Type,
		ScopeID:        in.Scope.ID,
		RedirectURI:    in.RedirectURI,
		CallerState:    in.CallerState,
		TemporaryToken: in.TemporaryToken,
		TokenSecret:    in.TokenSecret,
		CreatedAt:      in.CreatedAt,
		ExpiresAt:      in.ExpiresAt,
	}
}

func (r *handshakeRecord) toDomain() core.HandshakeRecord {
	if r == nil {
		return core.HandshakeRecord{}
	}
	return core.HandshakeRecord{
		State:          r.State,
		ProviderID:     r.ProviderID,
		Scope:          core.ScopeRef{Type: r.ScopeType, ID: r.ScopeID},
		RedirectURI:    r.RedirectURI,
		CallerState:    r.CallerState,
		TemporaryToken: r.TemporaryToken,
		TokenSecret:    r.TokenSecret,
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}
