package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service orchestrates the begin/callback/complete handshake for every
// registered provider, keeps temporary secrets server-side, and hands
// persistence the encrypted credential payloads.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	handshakeStore    HandshakeStore
	stateCodec        StateCodec
	signer            Signer
	registry          Registry
	linkStore         LinkStore
	credentialStore   CredentialStore
	credentialCodec   CredentialCodec
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	HandshakeStore    HandshakeStore
	StateCodec        StateCodec
	Signer            Signer
	Registry          Registry
	LinkStore         LinkStore
	CredentialStore   CredentialStore
	CredentialCodec   CredentialCodec
}

// BeginLinkRequest starts an authorization attempt. State is the caller's
// opaque round-trip value; it comes back on HandleCallback untouched.
type BeginLinkRequest struct {
	ProviderID  string
	Scope       ScopeRef
	RedirectURI string
	State       string
	Metadata    map[string]any
}

// BeginLinkResponse is safe to surface to a browser: the authorization URL
// and the correlation state, never the temporary token secret.
type BeginLinkResponse struct {
	URL      string
	State    string
	Metadata map[string]any
}

// CallbackRequest carries the raw provider redirect parameters.
type CallbackRequest struct {
	ProviderID  string
	Token       string
	Verifier    string
	Code        string
	State       string
	RedirectURI string
	Metadata    map[string]any
}

// CompleteLinkRequest runs the final exchange leg. TokenSecret may be left
// empty when a handshake store holds it; the service consumes the stored
// record and fills it in before calling the provider.
type CompleteLinkRequest struct {
	ProviderID  string
	Scope       ScopeRef
	Token       string
	Verifier    string
	TokenSecret string
	Code        string
	State       string
	RedirectURI string
	Metadata    map[string]any
}

type LinkCompletion struct {
	Link       Link
	Credential Credential
	Status     LinkStatusView
}

type RefreshRequest struct {
	ProviderID string
	LinkID     string
	// Credential lets callers supply decrypted material directly; when nil
	// the active credential is loaded from the store.
	Credential *ActiveCredential
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("linker", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("linker"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.signer == nil {
		builder.signer = BearerTokenSigner{}
	}
	if builder.credentialCodec == nil {
		builder.credentialCodec = JSONCredentialCodec{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.handshakeStore == nil {
		builder.handshakeStore = NewMemoryHandshakeStore(finalConfig.HandshakeTTL)
	}
	if builder.stateCodec == nil && strings.TrimSpace(finalConfig.StateSigningKey) != "" {
		codec, codecErr := NewSignedStateCodec(finalConfig.StateSigningKey)
		if codecErr != nil {
			return nil, mapBuildError(builder.errorMapper, codecErr)
		}
		builder.stateCodec = codec
	}

	if (builder.linkStore == nil || builder.credentialStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				if builder.linkStore == nil {
					builder.linkStore = storeProvider.LinkStore()
				}
				if builder.credentialStore == nil {
					builder.credentialStore = storeProvider.CredentialStore()
				}
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			if builder.linkStore == nil {
				builder.linkStore = storeProvider.LinkStore()
			}
			if builder.credentialStore == nil {
				builder.credentialStore = storeProvider.CredentialStore()
			}
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		handshakeStore:    builder.handshakeStore,
		stateCodec:        builder.stateCodec,
		signer:            builder.signer,
		registry:          builder.registry,
		linkStore:         builder.linkStore,
		credentialStore:   builder.credentialStore,
		credentialCodec:   builder.credentialCodec,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		HandshakeStore:    s.handshakeStore,
		StateCodec:        s.stateCodec,
		Signer:            s.signer,
		Registry:          s.registry,
		LinkStore:         s.linkStore,
		CredentialStore:   s.credentialStore,
		CredentialCodec:   s.credentialCodec,
	}
}

// BeginLink runs the first handshake leg and returns the provider redirect.
// The temporary token secret produced by 1.0a providers goes into the
// handshake store keyed by the correlation value; the response never holds it.
func (s *Service) BeginLink(ctx context.Context, req BeginLinkRequest) (response BeginLinkResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.ProviderID,
		"scope_type":  req.Scope.Type,
		"scope_id":    req.Scope.ID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_link", err, fields)
	}()

	if err = req.Scope.Validate(); err != nil {
		err = s.mapError(err)
		return BeginLinkResponse{}, err
	}

	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return BeginLinkResponse{}, err
	}

	state, err := s.encodeOutboundState(req.State)
	if err != nil {
		err = s.mapError(err)
		return BeginLinkResponse{}, err
	}

	authResponse, err := provider.BeginAuth(ctx, BeginAuthRequest{
		ProviderID:  req.ProviderID,
		Scope:       req.Scope,
		RedirectURI: req.RedirectURI,
		State:       state,
		Metadata:    req.Metadata,
	})
	if err != nil {
		err = s.mapError(err)
		return BeginLinkResponse{}, err
	}
	if strings.TrimSpace(authResponse.State) == "" {
		authResponse.State = state
	}

	if s.handshakeStore != nil {
		now := time.Now().UTC()
		saveErr := s.handshakeStore.Save(ctx, HandshakeRecord{
			State:          handshakeKey(authResponse),
			ProviderID:     req.ProviderID,
			Scope:          req.Scope,
			RedirectURI:    req.RedirectURI,
			CallerState:    req.State,
			TemporaryToken: authResponse.Temporary.Token,
			TokenSecret:    authResponse.Temporary.TokenSecret,
			CreatedAt:      now,
			ExpiresAt:      now.Add(s.handshakeTTL()),
		})
		if saveErr != nil {
			err = s.mapError(saveErr)
			return BeginLinkResponse{}, err
		}
	}

	response = BeginLinkResponse{
		URL:      authResponse.URL,
		State:    authResponse.State,
		Metadata: authResponse.Metadata,
	}
	return response, nil
}

// HandleCallback validates the provider redirect without spending the
// handshake record: the required identifiers must be present and the state
// must authenticate. The exchange leg itself belongs to CompleteLink.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) (result CallbackResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.ProviderID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "handle_callback", err, fields)
	}()

	token := strings.TrimSpace(req.Token)
	code := strings.TrimSpace(req.Code)
	verifier := strings.TrimSpace(req.Verifier)
	state := strings.TrimSpace(req.State)

	if token == "" && code == "" {
		err = s.mapError(MissingParametersError("core: callback requires an oauth token or an authorization code"))
		return CallbackResult{}, err
	}
	if token != "" && verifier == "" {
		err = s.mapError(MissingParametersError("core: callback is missing the oauth verifier"))
		return CallbackResult{}, err
	}
	if token == "" && state == "" {
		err = s.mapError(MissingParametersError("core: callback is missing the correlation state"))
		return CallbackResult{}, err
	}

	callerState := ""
	if state != "" && s.stateCodec != nil {
		decoded, decodeErr := s.stateCodec.Decode(state)
		if decodeErr != nil {
			err = s.mapError(decodeErr)
			return CallbackResult{}, err
		}
		callerState = decoded.CallerState
	}

	result = CallbackResult{
		ProviderID:  strings.TrimSpace(req.ProviderID),
		Token:       token,
		Verifier:    verifier,
		Code:        code,
		State:       state,
		CallerState: callerState,
	}

	if s.handshakeStore != nil {
		record, peekErr := s.handshakeStore.Peek(ctx, callbackCorrelationKey(token, state))
		if peekErr != nil {
			err = s.mapError(peekErr)
			return CallbackResult{}, err
		}
		if !providerIDMatches(record.ProviderID, req.ProviderID) {
			err = s.mapError(StateDecodeFailedError("core: correlation state provider mismatch"))
			return CallbackResult{}, err
		}
		result.ProviderID = record.ProviderID
		result.Scope = record.Scope
		result.RedirectURI = record.RedirectURI
		if result.CallerState == "" {
			result.CallerState = record.CallerState
		}
	}

	return result, nil
}

// CompleteLink consumes the handshake record, runs the final exchange leg,
// and persists the encrypted credential against the scoped link. The status
// view it returns is the only shape meant for the browser-facing caller.
func (s *Service) CompleteLink(ctx context.Context, req CompleteLinkRequest) (completion LinkCompletion, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.ProviderID,
		"scope_type":  req.Scope.Type,
		"scope_id":    req.Scope.ID,
	}
	defer func() {
		if completion.Link.ID != "" {
			fields["link_id"] = completion.Link.ID
		}
		s.observeOperation(ctx, startedAt, "complete_link", err, fields)
	}()

	token := strings.TrimSpace(req.Token)
	code := strings.TrimSpace(req.Code)
	state := strings.TrimSpace(req.State)
	tokenSecret := req.TokenSecret

	if token == "" && code == "" {
		err = s.mapError(MissingParametersError("core: complete requires an oauth token or an authorization code"))
		return LinkCompletion{}, err
	}

	scope := req.Scope
	if s.handshakeStore != nil && tokenSecret == "" {
		key := callbackCorrelationKey(token, state)
		if key != "" {
			record, consumeErr := s.handshakeStore.Consume(ctx, key)
			if consumeErr != nil {
				err = s.mapError(consumeErr)
				return LinkCompletion{}, err
			}
			if !providerIDMatches(record.ProviderID, req.ProviderID) {
				err = s.mapError(StateDecodeFailedError("core: correlation state provider mismatch"))
				return LinkCompletion{}, err
			}
			tokenSecret = record.TokenSecret
			if strings.TrimSpace(scope.ID) == "" {
				scope = record.Scope
			}
			if strings.TrimSpace(req.RedirectURI) == "" {
				req.RedirectURI = record.RedirectURI
			}
		}
	}
	if tokenSecret == "" && state != "" && s.stateCodec != nil {
		if decoded, decodeErr := s.stateCodec.Decode(state); decodeErr == nil {
			tokenSecret = decoded.TokenSecret
		}
	}

	if err = scope.Validate(); err != nil {
		err = s.mapError(err)
		return LinkCompletion{}, err
	}

	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return LinkCompletion{}, err
	}

	result, err := provider.CompleteAuth(ctx, CompleteAuthRequest{
		ProviderID:  req.ProviderID,
		Scope:       scope,
		Token:       token,
		Verifier:    strings.TrimSpace(req.Verifier),
		TokenSecret: tokenSecret,
		Code:        code,
		RedirectURI: req.RedirectURI,
		Metadata:    req.Metadata,
	})
	if err != nil {
		err = s.mapError(err)
		return LinkCompletion{}, err
	}

	link := Link{
		ProviderID:        req.ProviderID,
		ScopeType:         scope.Type,
		ScopeID:           scope.ID,
		ExternalAccountID: result.ExternalAccountID,
		Status:            LinkStatusActive,
	}
	if s.linkStore != nil {
		existing, found, findErr := s.findScopedLink(ctx, req.ProviderID, scope)
		if findErr != nil {
			err = s.mapError(findErr)
			return LinkCompletion{}, err
		}
		if found {
			link = existing
			if updateErr := s.linkStore.UpdateStatus(ctx, link.ID, string(LinkStatusActive), ""); updateErr != nil {
				err = s.mapError(updateErr)
				return LinkCompletion{}, err
			}
			link.Status = LinkStatusActive
			link.LastError = ""
			if strings.TrimSpace(result.ExternalAccountID) != "" {
				link.ExternalAccountID = result.ExternalAccountID
			}
		} else {
			link, err = s.linkStore.Create(ctx, CreateLinkInput{
				ProviderID:        req.ProviderID,
				Scope:             scope,
				ExternalAccountID: result.ExternalAccountID,
				Status:            LinkStatusActive,
			})
			if err != nil {
				err = s.mapError(err)
				return LinkCompletion{}, err
			}
		}
	}

	credential := Credential{
		LinkID:      link.ID,
		TokenType:   result.Credential.TokenType,
		Refreshable: result.Credential.Refreshable,
		Status:      CredentialStatusActive,
	}
	if result.Credential.ExpiresAt != nil {
		credential.ExpiresAt = *result.Credential.ExpiresAt
	}
	if s.credentialStore != nil {
		credential, err = s.persistCredential(ctx, link.ID, result.Credential)
		if err != nil {
			err = s.mapError(err)
			return LinkCompletion{}, err
		}
	}

	completion = LinkCompletion{
		Link:       link,
		Credential: credential,
		Status: LinkStatusView{
			Connected:         true,
			ProviderID:        req.ProviderID,
			ExternalAccountID: result.ExternalAccountID,
			ExpiresAt:         result.Credential.ExpiresAt,
		},
	}
	return completion, nil
}

func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (result RefreshResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.ProviderID,
		"link_id":     req.LinkID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh", err, fields)
	}()

	linkID := strings.TrimSpace(req.LinkID)
	if linkID == "" {
		err = s.mapError(fmt.Errorf("core: link id is required"))
		return RefreshResult{}, err
	}

	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return RefreshResult{}, err
	}

	activeCred := ActiveCredential{}
	if req.Credential != nil {
		activeCred = *req.Credential
	} else if s.credentialStore != nil {
		loaded, loadErr := s.loadActiveCredential(ctx, linkID)
		if loadErr != nil {
			err = s.mapError(loadErr)
			return RefreshResult{}, err
		}
		activeCred = loaded
	} else {
		err = s.mapError(fmt.Errorf("core: refresh requires credential input or a credential store"))
		return RefreshResult{}, err
	}

	result, err = provider.Refresh(ctx, activeCred)
	if err != nil {
		err = s.mapError(err)
		if s.linkStore != nil {
			_ = s.linkStore.UpdateStatus(ctx, linkID, string(LinkStatusPendingReauth), "refresh failed")
		}
		return RefreshResult{}, err
	}

	if s.credentialStore != nil && shouldPersistRefreshedCredential(activeCred, result.Credential) {
		if _, saveErr := s.persistCredential(ctx, linkID, result.Credential); saveErr != nil {
			err = s.mapError(saveErr)
			return RefreshResult{}, err
		}
	}
	if s.linkStore != nil {
		if updateErr := s.linkStore.UpdateStatus(ctx, linkID, string(LinkStatusActive), ""); updateErr != nil {
			err = s.mapError(updateErr)
			return RefreshResult{}, err
		}
	}

	return result, nil
}

// Unlink revokes the active credential and marks the link revoked.
func (s *Service) Unlink(ctx context.Context, linkID string, reason string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"link_id": linkID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "unlink", err, fields)
	}()

	if strings.TrimSpace(linkID) == "" {
		err = s.mapError(fmt.Errorf("core: link id is required"))
		return err
	}
	if s.credentialStore != nil {
		if err = s.credentialStore.RevokeActive(ctx, linkID, reason); err != nil {
			err = s.mapError(err)
			return err
		}
	}
	if s.linkStore != nil {
		if err = s.linkStore.UpdateStatus(ctx, linkID, string(LinkStatusRevoked), reason); err != nil {
			err = s.mapError(err)
			return err
		}
	}
	return nil
}

// LinkStatusFor reports the browser-safe link status for a scope. A missing
// link is not an error; it reads as not connected.
func (s *Service) LinkStatusFor(ctx context.Context, providerID string, scope ScopeRef) (LinkStatusView, error) {
	view := LinkStatusView{ProviderID: strings.TrimSpace(providerID)}
	if err := scope.Validate(); err != nil {
		return view, s.mapError(err)
	}
	link, found, err := s.findScopedLink(ctx, providerID, scope)
	if err != nil {
		return view, s.mapError(err)
	}
	if !found || link.Status != LinkStatusActive {
		return view, nil
	}

	view.Connected = true
	view.ExternalAccountID = link.ExternalAccountID
	if s.credentialStore != nil {
		if stored, _, credErr := s.credentialStore.GetActiveByLink(ctx, link.ID); credErr == nil && !stored.ExpiresAt.IsZero() {
			expires := stored.ExpiresAt
			view.ExpiresAt = &expires
		}
	}
	return view, nil
}

func (s *Service) encodeOutboundState(callerState string) (string, error) {
	if s != nil && s.stateCodec != nil {
		return s.stateCodec.Encode(CorrelationState{CallerState: callerState})
	}
	return generateCorrelationValue()
}

func (s *Service) handshakeTTL() time.Duration {
	if s == nil || s.config.HandshakeTTL <= 0 {
		return defaultHandshakeTTL
	}
	return s.config.HandshakeTTL
}

func (s *Service) persistCredential(ctx context.Context, linkID string, active ActiveCredential) (Credential, error) {
	if s == nil || s.credentialStore == nil {
		return Credential{}, fmt.Errorf("core: credential store is not configured")
	}
	codec := s.credentialCodec
	if codec == nil {
		codec = JSONCredentialCodec{}
	}
	active.LinkID = linkID
	payload, err := codec.Encode(active)
	if err != nil {
		return Credential{}, err
	}
	if s.secretProvider != nil {
		payload, err = s.secretProvider.Encrypt(ctx, payload)
		if err != nil {
			return Credential{}, err
		}
	}
	return s.credentialStore.SaveNewVersion(ctx, SaveCredentialInput{
		LinkID:           linkID,
		EncryptedPayload: payload,
		PayloadFormat:    codec.Format(),
		PayloadVersion:   codec.Version(),
		TokenType:        active.TokenType,
		ExpiresAt:        active.ExpiresAt,
		Refreshable:      active.Refreshable,
		Status:           CredentialStatusActive,
	})
}

func (s *Service) loadActiveCredential(ctx context.Context, linkID string) (ActiveCredential, error) {
	if s == nil || s.credentialStore == nil {
		return ActiveCredential{}, fmt.Errorf("core: credential store is not configured")
	}
	stored, payload, err := s.credentialStore.GetActiveByLink(ctx, linkID)
	if err != nil {
		return ActiveCredential{}, err
	}
	if s.secretProvider != nil {
		payload, err = s.secretProvider.Decrypt(ctx, payload)
		if err != nil {
			return ActiveCredential{}, err
		}
	}
	codec := s.credentialCodec
	if codec == nil {
		codec = JSONCredentialCodec{}
	}
	active, err := codec.Decode(payload)
	if err != nil {
		return ActiveCredential{}, err
	}
	active.LinkID = linkID
	if strings.TrimSpace(active.TokenType) == "" {
		active.TokenType = stored.TokenType
	}
	if active.ExpiresAt == nil && !stored.ExpiresAt.IsZero() {
		expires := stored.ExpiresAt
		active.ExpiresAt = &expires
	}
	if !active.Refreshable {
		active.Refreshable = stored.Refreshable
	}
	return active, nil
}

func (s *Service) findScopedLink(ctx context.Context, providerID string, scope ScopeRef) (Link, bool, error) {
	if s == nil || s.linkStore == nil {
		return Link{}, false, nil
	}
	links, err := s.linkStore.FindByScope(ctx, providerID, scope)
	if err != nil {
		return Link{}, false, err
	}
	if len(links) == 0 {
		return Link{}, false, nil
	}
	for _, link := range links {
		if link.Status == LinkStatusActive {
			return link, true, nil
		}
	}
	for _, link := range links {
		if link.Status == LinkStatusPendingReauth {
			return link, true, nil
		}
	}
	return links[0], true, nil
}

func (s *Service) resolveProvider(providerID string) (Provider, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: registry unavailable"))
	}
	providerID = strings.TrimSpace(providerID)
	provider, ok := s.registry.Get(providerID)
	if ok {
		return provider, nil
	}
	wrapped := s.errorFactory(
		fmt.Sprintf("provider %q is not registered", providerID),
		goerrors.CategoryNotFound,
	).WithTextCode(ServiceErrorProviderNotFound)
	return nil, wrapped.WithMetadata(map[string]any{"provider_id": providerID})
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// handshakeKey is the value the provider will echo back on the callback:
// the temporary token for 1.0a providers, the state parameter otherwise.
func handshakeKey(response BeginAuthResponse) string {
	if token := strings.TrimSpace(response.Temporary.Token); token != "" {
		return token
	}
	return strings.TrimSpace(response.State)
}

func callbackCorrelationKey(token, state string) string {
	if token != "" {
		return token
	}
	return state
}

func providerIDMatches(recorded, requested string) bool {
	recorded = strings.TrimSpace(recorded)
	requested = strings.TrimSpace(requested)
	if recorded == "" || requested == "" {
		return true
	}
	return strings.EqualFold(recorded, requested)
}

func shouldPersistRefreshedCredential(current ActiveCredential, refreshed ActiveCredential) bool {
	if !strings.EqualFold(strings.TrimSpace(current.TokenType), strings.TrimSpace(refreshed.TokenType)) {
		return true
	}
	currentToken := strings.TrimSpace(current.AccessToken)
	refreshedToken := strings.TrimSpace(refreshed.AccessToken)
	if refreshedToken != "" && currentToken != refreshedToken {
		return true
	}
	if strings.TrimSpace(refreshed.RefreshToken) != "" &&
		strings.TrimSpace(current.RefreshToken) != strings.TrimSpace(refreshed.RefreshToken) {
		return true
	}
	if current.AccessTokenSecret != refreshed.AccessTokenSecret {
		return true
	}
	if current.Refreshable != refreshed.Refreshable {
		return true
	}
	if !sameTimePointer(current.ExpiresAt, refreshed.ExpiresAt) {
		return true
	}
	return false
}

func sameTimePointer(left, right *time.Time) bool {
	if left == nil && right == nil {
		return true
	}
	if left == nil || right == nil {
		return false
	}
	return left.UTC().Equal(right.UTC())
}
