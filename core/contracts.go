package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	AuthKindOAuth1  = "oauth1_three_legged"
	AuthKindOAuth2  = "oauth2_auth_code"
	AuthKindWebhook = "webhook_only"
)

type BeginAuthRequest struct {
	ProviderID  string
	Scope       ScopeRef
	RedirectURI string
	State       string
	Metadata    map[string]any
}

type BeginAuthResponse struct {
	// URL is the provider authorization page the browser is redirected to.
	URL string
	// State is the correlation value carried through the redirect.
	State string
	// Temporary holds the leg-one credential for 1.0a providers; zero for
	// OAuth2 providers. The orchestrator owns keeping TokenSecret off the
	// redirect URL.
	Temporary TemporaryCredential
	Metadata  map[string]any
}

type CompleteAuthRequest struct {
	ProviderID  string
	Scope       ScopeRef
	Token       string
	Verifier    string
	TokenSecret string
	Code        string
	RedirectURI string
	Metadata    map[string]any
}

// ActiveCredential is decrypted long-lived access material. It never crosses
// the browser boundary; callers expose LinkStatusView instead.
type ActiveCredential struct {
	LinkID            string
	TokenType         string
	AccessToken       string
	AccessTokenSecret string
	RefreshToken      string
	ExpiresAt         *time.Time
	Refreshable       bool
	Metadata          map[string]any
}

type CompleteAuthResponse struct {
	ExternalAccountID string
	Credential        ActiveCredential
	Metadata          map[string]any
}

type RefreshResult struct {
	Credential ActiveCredential
	Metadata   map[string]any
}

// LinkStatusView is the only shape that may be returned to a browser-facing
// caller: connected flag and public profile fields, no token material.
type LinkStatusView struct {
	Connected         bool
	ProviderID        string
	ExternalAccountID string
	ExpiresAt         *time.Time
}

// CallbackResult hands the raw provider callback parameters plus the decoded
// correlation state back to the caller. The service does not run leg two
// here; the caller invokes CompleteLink with these values. The temporary
// token secret stays in the handshake store until CompleteLink consumes it,
// so this shape is safe to thread through a redirect.
type CallbackResult struct {
	ProviderID  string
	Token       string
	Verifier    string
	Code        string
	State       string
	CallerState string
	Scope       ScopeRef
	RedirectURI string
}

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Query      map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type Provider interface {
	ID() string
	AuthKind() string

	BeginAuth(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error)
	CompleteAuth(ctx context.Context, req CompleteAuthRequest) (CompleteAuthResponse, error)
	Refresh(ctx context.Context, cred ActiveCredential) (RefreshResult, error)
}

type Registry interface {
	Register(provider Provider) error
	Get(providerID string) (Provider, bool)
	List() []Provider
}

type CreateLinkInput struct {
	ProviderID        string
	Scope             ScopeRef
	ExternalAccountID string
	Status            LinkStatus
}

type SaveCredentialInput struct {
	LinkID            string
	EncryptedPayload  []byte
	PayloadFormat     string
	PayloadVersion    int
	TokenType         string
	ExpiresAt         *time.Time
	Refreshable       bool
	Status            CredentialStatus
	EncryptionKeyID   string
	EncryptionVersion int
}

type LinkStore interface {
	Create(ctx context.Context, in CreateLinkInput) (Link, error)
	Get(ctx context.Context, id string) (Link, error)
	FindByScope(ctx context.Context, providerID string, scope ScopeRef) ([]Link, error)
	UpdateStatus(ctx context.Context, id string, status string, reason string) error
}

type CredentialStore interface {
	SaveNewVersion(ctx context.Context, in SaveCredentialInput) (Credential, error)
	GetActiveByLink(ctx context.Context, linkID string) (Credential, []byte, error)
	RevokeActive(ctx context.Context, linkID string, reason string) error
}

type StoreProvider interface {
	LinkStore() LinkStore
	CredentialStore() CredentialStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Signer applies stored credential material to an outbound provider request.
type Signer interface {
	Sign(ctx context.Context, req *http.Request, cred ActiveCredential) error
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
