package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "active_credential_json"
	CredentialPayloadVersionV1    = 1
)

// CredentialCodec turns an ActiveCredential into the byte payload handed to
// the secret provider before storage, and back after decryption.
type CredentialCodec interface {
	Format() string
	Version() int
	Encode(credential ActiveCredential) ([]byte, error)
	Decode(payload []byte) (ActiveCredential, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonCredentialPayload struct {
	LinkID            string         `json:"link_id,omitempty"`
	TokenType         string         `json:"token_type,omitempty"`
	AccessToken       string         `json:"access_token,omitempty"`
	AccessTokenSecret string         `json:"access_token_secret,omitempty"`
	RefreshToken      string         `json:"refresh_token,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	Refreshable       bool           `json:"refreshable"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

func (JSONCredentialCodec) Encode(credential ActiveCredential) ([]byte, error) {
	payload := jsonCredentialPayload{
		LinkID:            strings.TrimSpace(credential.LinkID),
		TokenType:         strings.TrimSpace(credential.TokenType),
		AccessToken:       strings.TrimSpace(credential.AccessToken),
		AccessTokenSecret: credential.AccessTokenSecret,
		RefreshToken:      strings.TrimSpace(credential.RefreshToken),
		ExpiresAt:         cloneTimePointer(credential.ExpiresAt),
		Refreshable:       credential.Refreshable,
		Metadata:          copyAnyMap(credential.Metadata),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (ActiveCredential, error) {
	if len(payload) == 0 {
		return ActiveCredential{}, fmt.Errorf("core: credential payload is empty")
	}
	decoded := jsonCredentialPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ActiveCredential{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	return ActiveCredential{
		LinkID:            strings.TrimSpace(decoded.LinkID),
		TokenType:         strings.TrimSpace(decoded.TokenType),
		AccessToken:       strings.TrimSpace(decoded.AccessToken),
		AccessTokenSecret: decoded.AccessTokenSecret,
		RefreshToken:      strings.TrimSpace(decoded.RefreshToken),
		ExpiresAt:         cloneTimePointer(decoded.ExpiresAt),
		Refreshable:       decoded.Refreshable,
		Metadata:          copyAnyMap(decoded.Metadata),
	}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}
