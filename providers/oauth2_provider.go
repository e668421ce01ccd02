// Package providers holds the protocol-generic provider implementations and
// the shared helpers the per-provider packages build on.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-linker/core"
)

const (
	defaultLegTimeout         = 10 * time.Second
	defaultTokenTTL           = time.Hour
	maxTokenResponseBodyBytes = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type OAuth2Config struct {
	ID           string
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// ExternalAccountField is a dotted path into the token response naming
	// the external account id, e.g. "athlete.id".
	ExternalAccountField string
	TokenTTL             time.Duration
	LegTimeout           time.Duration
	Now                  func() time.Time
	HTTPClient           HTTPDoer
}

// OAuth2Provider implements the authorization-code exchange. The token legs
// post credentials as a JSON body; no request-level HMAC is involved, the
// transport carries the trust.
type OAuth2Provider struct {
	cfg        OAuth2Config
	httpClient HTTPDoer
}

func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	cfg.ID = strings.TrimSpace(strings.ToLower(cfg.ID))
	if cfg.ID == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, fmt.Errorf("providers: auth url is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for provider %q", cfg.ID)
	}

	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = defaultLegTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.LegTimeout}
	}

	return &OAuth2Provider{cfg: cfg, httpClient: httpClient}, nil
}

func (p *OAuth2Provider) ID() string {
	if p == nil {
		return ""
	}
	return p.cfg.ID
}

func (*OAuth2Provider) AuthKind() string {
	return core.AuthKindOAuth2
}

func (p *OAuth2Provider) configured() bool {
	return p != nil && p.cfg.ClientID != "" && p.cfg.ClientSecret != ""
}

func (p *OAuth2Provider) BeginAuth(_ context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if p == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	if !p.configured() {
		return core.BeginAuthResponse{}, core.NotConfiguredError(
			fmt.Sprintf("providers: client credentials are not configured for provider %q", p.cfg.ID),
		)
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return core.BeginAuthResponse{}, core.MissingParametersError("providers: correlation state is required")
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", p.cfg.ClientID)
	if redirectURI := strings.TrimSpace(req.RedirectURI); redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	if len(p.cfg.Scopes) > 0 {
		values.Set("scope", strings.Join(p.cfg.Scopes, ","))
	}
	values.Set("state", state)

	authURL := p.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}

	metadata := cloneMetadata(req.Metadata)
	metadata["provider_id"] = p.cfg.ID

	return core.BeginAuthResponse{
		URL:      authURL,
		State:    state,
		Metadata: metadata,
	}, nil
}

func (p *OAuth2Provider) CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error) {
	if p == nil {
		return core.CompleteAuthResponse{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	if !p.configured() {
		return core.CompleteAuthResponse{}, core.NotConfiguredError(
			fmt.Sprintf("providers: client credentials are not configured for provider %q", p.cfg.ID),
		)
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.CompleteAuthResponse{}, core.MissingParametersError("providers: authorization code is required")
	}

	payload, err := p.postTokenRequest(ctx, map[string]any{
		"client_id":     p.cfg.ClientID,
		"client_secret": p.cfg.ClientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
	})
	if err != nil {
		return core.CompleteAuthResponse{}, err
	}

	externalAccountID := extractDottedField(payload, p.cfg.ExternalAccountField)
	refreshToken := readAnyString(payload["refresh_token"])
	credential := core.ActiveCredential{
		TokenType:    normalizeTokenType(readAnyString(payload["token_type"])),
		AccessToken:  readAnyString(payload["access_token"]),
		RefreshToken: refreshToken,
		ExpiresAt:    p.resolveExpiresAt(payload),
		Refreshable:  refreshToken != "",
		Metadata:     map[string]any{"provider_id": p.cfg.ID},
	}

	return core.CompleteAuthResponse{
		ExternalAccountID: externalAccountID,
		Credential:        credential,
		Metadata:          map[string]any{"provider_id": p.cfg.ID},
	}, nil
}

func (p *OAuth2Provider) Refresh(ctx context.Context, cred core.ActiveCredential) (core.RefreshResult, error) {
	if p == nil {
		return core.RefreshResult{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	if !p.configured() {
		return core.RefreshResult{}, core.NotConfiguredError(
			fmt.Sprintf("providers: client credentials are not configured for provider %q", p.cfg.ID),
		)
	}
	refreshToken := strings.TrimSpace(cred.RefreshToken)
	if refreshToken == "" {
		return core.RefreshResult{}, fmt.Errorf("providers: refresh token is required")
	}

	payload, err := p.postTokenRequest(ctx, map[string]any{
		"client_id":     p.cfg.ClientID,
		"client_secret": p.cfg.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
	if err != nil {
		return core.RefreshResult{}, err
	}

	refreshed := cred
	refreshed.TokenType = normalizeTokenType(readAnyString(payload["token_type"]))
	refreshed.AccessToken = readAnyString(payload["access_token"])
	if next := readAnyString(payload["refresh_token"]); next != "" {
		refreshed.RefreshToken = next
	}
	refreshed.ExpiresAt = p.resolveExpiresAt(payload)
	refreshed.Refreshable = strings.TrimSpace(refreshed.RefreshToken) != ""
	refreshed.Metadata = cloneMetadata(refreshed.Metadata)
	refreshed.Metadata["provider_id"] = p.cfg.ID

	return core.RefreshResult{
		Credential: refreshed,
		Metadata:   map[string]any{"provider_id": p.cfg.ID},
	}, nil
}

func (p *OAuth2Provider) postTokenRequest(ctx context.Context, body map[string]any) (map[string]any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("providers: encode token request: %w", err)
	}

	requestCtx := ctx
	cancel := func() {}
	if p.cfg.LegTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, p.cfg.LegTimeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, p.cfg.TokenURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("providers: build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.ProviderUnreachableError(
			fmt.Sprintf("providers: token request to provider %q failed: %v", p.cfg.ID, err),
		)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes))
	if err != nil {
		return nil, core.ProviderUnreachableError(
			fmt.Sprintf("providers: read token response from provider %q: %v", p.cfg.ID, err),
		)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, core.ProviderRejectedError(
			fmt.Sprintf("providers: provider %q rejected the token exchange", p.cfg.ID),
			response.StatusCode,
			string(raw),
		)
	}

	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, core.ProviderRejectedError(
			fmt.Sprintf("providers: provider %q token response is not valid JSON", p.cfg.ID),
			response.StatusCode,
			string(raw),
		)
	}
	if errCode := readAnyString(payload["error"]); errCode != "" {
		return nil, core.ProviderRejectedError(
			fmt.Sprintf("providers: provider %q token endpoint returned %s", p.cfg.ID, errCode),
			response.StatusCode,
			string(raw),
		)
	}
	if readAnyString(payload["access_token"]) == "" {
		return nil, core.ProviderRejectedError(
			fmt.Sprintf("providers: provider %q token response is missing access_token", p.cfg.ID),
			response.StatusCode,
			string(raw),
		)
	}
	return payload, nil
}

// resolveExpiresAt honors an absolute expires_at epoch when present, then a
// relative expires_in, then the configured TTL.
func (p *OAuth2Provider) resolveExpiresAt(payload map[string]any) *time.Time {
	if epoch := readAnyInt64(payload["expires_at"]); epoch > 0 {
		expires := time.Unix(epoch, 0).UTC()
		return &expires
	}
	ttl := p.cfg.TokenTTL
	if expiresIn := readAnyInt64(payload["expires_in"]); expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	if ttl <= 0 {
		return nil
	}
	expires := p.cfg.Now().UTC().Add(ttl)
	return &expires
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

// extractDottedField walks a dotted path like "athlete.id" through nested
// JSON objects and renders the leaf as a string.
func extractDottedField(payload map[string]any, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || len(payload) == 0 {
		return ""
	}
	var current any = payload
	for _, part := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = asMap[part]
		if !ok {
			return ""
		}
	}
	return readAnyString(current)
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return int64(parsed)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

func cloneMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

var _ core.Provider = (*OAuth2Provider)(nil)
