package linker

import "github.com/goliatone/go-linker/core"

type Config = core.Config

type ProviderCredentialConfig = core.ProviderCredentialConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Provider = core.Provider
type Registry = core.Registry
type LinkStore = core.LinkStore
type CredentialStore = core.CredentialStore
type HandshakeStore = core.HandshakeStore
type StateCodec = core.StateCodec
type SecretProvider = core.SecretProvider
type Signer = core.Signer

type ScopeRef = core.ScopeRef
type Link = core.Link
type Credential = core.Credential
type ActiveCredential = core.ActiveCredential
type CorrelationState = core.CorrelationState
type LinkStatusView = core.LinkStatusView

type BeginLinkRequest = core.BeginLinkRequest
type BeginLinkResponse = core.BeginLinkResponse
type CallbackRequest = core.CallbackRequest
type CallbackResult = core.CallbackResult
type CompleteLinkRequest = core.CompleteLinkRequest
type LinkCompletion = core.LinkCompletion
type RefreshRequest = core.RefreshRequest
type RefreshResult = core.RefreshResult

type InboundRequest = core.InboundRequest
type InboundResult = core.InboundResult

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithSecretProvider    = core.WithSecretProvider
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithHandshakeStore    = core.WithHandshakeStore
	WithStateCodec        = core.WithStateCodec
	WithSigner            = core.WithSigner
	WithRegistry          = core.WithRegistry
	WithLinkStore         = core.WithLinkStore
	WithCredentialStore   = core.WithCredentialStore
	WithCredentialCodec   = core.WithCredentialCodec
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
