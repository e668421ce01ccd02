package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-linker/core"
	"github.com/goliatone/go-linker/oauth1"
)

type OAuth1Config struct {
	ID     string
	Client oauth1.Config
}

// OAuth1Provider adapts the three-legged client to the provider contract.
// BeginAuth runs leg one and hands the temporary credential back to the
// orchestrator, which owns keeping the secret off the redirect URL.
type OAuth1Provider struct {
	cfg    OAuth1Config
	client *oauth1.Client
}

func NewOAuth1Provider(cfg OAuth1Config) (*OAuth1Provider, error) {
	cfg.ID = strings.TrimSpace(strings.ToLower(cfg.ID))
	if cfg.ID == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	client, err := oauth1.NewClient(cfg.Client)
	if err != nil {
		return nil, fmt.Errorf("providers: build oauth1 client for %q: %w", cfg.ID, err)
	}
	return &OAuth1Provider{cfg: cfg, client: client}, nil
}

func (p *OAuth1Provider) ID() string {
	if p == nil {
		return ""
	}
	return p.cfg.ID
}

func (*OAuth1Provider) AuthKind() string {
	return core.AuthKindOAuth1
}

func (p *OAuth1Provider) BeginAuth(ctx context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if p == nil || p.client == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: oauth1 provider is nil")
	}

	callback, err := callbackWithState(req.RedirectURI, req.State)
	if err != nil {
		return core.BeginAuthResponse{}, err
	}

	temporary, err := p.client.RequestTemporaryCredential(ctx, callback)
	if err != nil {
		return core.BeginAuthResponse{}, err
	}

	extra := url.Values{}
	if callback != "" {
		extra.Set("oauth_callback", callback)
	}
	authorizeURL, err := p.client.AuthorizeURL(temporary.Token, extra)
	if err != nil {
		return core.BeginAuthResponse{}, err
	}

	metadata := cloneMetadata(req.Metadata)
	metadata["provider_id"] = p.cfg.ID

	return core.BeginAuthResponse{
		URL:       authorizeURL,
		State:     req.State,
		Temporary: temporary,
		Metadata:  metadata,
	}, nil
}

func (p *OAuth1Provider) CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error) {
	if p == nil || p.client == nil {
		return core.CompleteAuthResponse{}, fmt.Errorf("providers: oauth1 provider is nil")
	}

	credential, err := p.client.ExchangeAccessCredential(ctx, req.Token, req.Verifier, req.TokenSecret)
	if err != nil {
		return core.CompleteAuthResponse{}, err
	}

	return core.CompleteAuthResponse{
		ExternalAccountID: credential.ExternalUserID,
		Credential: core.ActiveCredential{
			TokenType:         "oauth1",
			AccessToken:       credential.Token,
			AccessTokenSecret: credential.TokenSecret,
			Refreshable:       false,
			Metadata:          map[string]any{"provider_id": p.cfg.ID},
		},
		Metadata: map[string]any{"provider_id": p.cfg.ID},
	}, nil
}

// Refresh is not part of the 1.0a protocol; access credentials live until
// the user revokes them on the provider side.
func (p *OAuth1Provider) Refresh(context.Context, core.ActiveCredential) (core.RefreshResult, error) {
	id := ""
	if p != nil {
		id = p.cfg.ID
	}
	return core.RefreshResult{}, fmt.Errorf("providers: provider %q does not support refresh", id)
}

// Signer returns the outbound request signer for stored 1.0a credentials.
func (p *OAuth1Provider) Signer() core.Signer {
	if p == nil {
		return nil
	}
	return &oauth1RequestSigner{
		consumerKey:    p.cfg.Client.ConsumerKey,
		consumerSecret: p.cfg.Client.ConsumerSecret,
		now:            p.cfg.Client.Now,
		nonce:          p.cfg.Client.Nonce,
	}
}

type oauth1RequestSigner struct {
	consumerKey    string
	consumerSecret string
	now            func() time.Time
	nonce          func() (string, error)
}

func (s *oauth1RequestSigner) Sign(_ context.Context, req *http.Request, cred core.ActiveCredential) error {
	if s == nil || req == nil {
		return fmt.Errorf("providers: oauth1 signer requires a request")
	}
	accessToken := strings.TrimSpace(cred.AccessToken)
	if accessToken == "" {
		return fmt.Errorf("providers: access token is required for oauth1 signing")
	}
	if cred.AccessTokenSecret == "" {
		return fmt.Errorf("providers: access token secret is required for oauth1 signing")
	}

	now := s.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	nonceFn := s.nonce
	if nonceFn == nil {
		nonceFn = oauth1.Nonce
	}
	nonce, err := nonceFn()
	if err != nil {
		return err
	}

	params := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": oauth1.SignatureMethodHMACSHA1,
		"oauth_timestamp":        strconv.FormatInt(now().Unix(), 10),
		"oauth_token":            accessToken,
		"oauth_version":          oauth1.Version,
	}

	// The base string covers query parameters alongside the protocol ones.
	signed := make(map[string]string, len(params))
	for key, value := range params {
		signed[key] = value
	}
	for key, values := range req.URL.Query() {
		if len(values) > 0 {
			signed[key] = values[0]
		}
	}

	baseURL := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	params["oauth_signature"] = oauth1.Sign(req.Method, baseURL, signed, s.consumerSecret, cred.AccessTokenSecret)
	req.Header.Set("Authorization", oauth1.AuthorizationHeader(params))
	return nil
}

func callbackWithState(redirectURI string, state string) (string, error) {
	redirectURI = strings.TrimSpace(redirectURI)
	if redirectURI == "" {
		return "", nil
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return redirectURI, nil
	}
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("providers: parse redirect uri: %w", err)
	}
	query := parsed.Query()
	query.Set("state", state)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

var _ core.Provider = (*OAuth1Provider)(nil)
var _ core.ProviderSigner = (*OAuth1Provider)(nil)
