package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type linkRecord struct {
	bun.BaseModel `bun:"table:linker_links,alias:ll"`

	ID                string     `bun:"id,pk"`
	ProviderID        string     `bun:"provider_id,notnull"`
	ScopeType         string     `bun:"scope_type,notnull"`
	ScopeID           string     `bun:"scope_id,notnull"`
	ExternalAccountID string     `bun:"external_account_id,notnull"`
	Status            string     `bun:"status,notnull"`
	LastError         string     `bun:"last_error"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete"`
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:linker_credentials,alias:lc"`

	ID                string     `bun:"id,pk"`
	LinkID            string     `bun:"link_id,notnull"`
	Version           int        `bun:"version,notnull"`
	EncryptedPayload  []byte     `bun:"encrypted_payload,notnull"`
	PayloadFormat     string     `bun:"payload_format,notnull"`
	PayloadVersion    int        `bun:"payload_version,notnull"`
	TokenType         string     `bun:"token_type,notnull"`
	ExpiresAt         *time.Time `bun:"expires_at,nullzero"`
	Refreshable       bool       `bun:"refreshable,notnull"`
	Status            string     `bun:"status,notnull"`
	EncryptionKeyID   string     `bun:"encryption_key_id,notnull"`
	EncryptionVersion int        `bun:"encryption_version,notnull"`
	RevocationReason  string     `bun:"revocation_reason,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type handshakeRecord struct {
	bun.BaseModel `bun:"table:linker_handshake_states,alias:lhs"`

	ID             string    `bun:"id,pk"`
	State          string    `bun:"state,notnull,unique"`
	ProviderID     string    `bun:"provider_id,notnull"`
	ScopeType      string    `bun:"scope_type,notnull"`
	ScopeID        string    `bun:"scope_id,notnull"`
	RedirectURI    string    `bun:"redirect_uri"`
	CallerState    string    `bun:"caller_state"`
	TemporaryToken string    `bun:"temporary_token"`
	TokenSecret    string    `bun:"token_secret"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt      time.Time `bun:"expires_at,notnull"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:linker_webhook_deliveries,alias:lwd"`

	ID            string     `bun:"id,pk"`
	ProviderID    string     `bun:"provider_id,notnull"`
	DeliveryID    string     `bun:"delivery_id,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	ClaimID       string     `bun:"claim_id"`
	LeaseExpires  *time.Time `bun:"lease_expires_at,nullzero"`
	LastError     string     `bun:"last_error"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	Payload       []byte     `bun:"payload"`
	ReceivedAt    time.Time  `bun:"received_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
