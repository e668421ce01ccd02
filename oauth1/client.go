package oauth1

import (
	"context"
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
	defaultLegTimeout      = 10 * time.Second
	maxProviderBodyBytes   = 1 << 20
	callbackOutOfBandValue = "oob"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config wires one provider's 1.0a endpoints and consumer credentials.
type Config struct {
	ConsumerKey     string
	ConsumerSecret  string
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
	// UserIDField names the access-token response field holding the external
	// account identifier; provider-specific.
	UserIDField string
	LegTimeout  time.Duration

	HTTPClient HTTPDoer
	Now        func() time.Time
	Nonce      func() (string, error)
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.ConsumerKey) != "" && strings.TrimSpace(c.ConsumerSecret) != ""
}

// AccessCredential is the long-lived result of the exchange leg. Raw keeps
// every response field so callers can pull provider-specific values.
type AccessCredential struct {
	Token          string
	TokenSecret    string
	ExternalUserID string
	Raw            url.Values
}

// Client performs the two signed network legs of the handshake.
type Client struct {
	config     Config
	httpClient HTTPDoer
	now        func() time.Time
	nonce      func() (string, error)
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RequestTokenURL) == "" {
		return nil, fmt.Errorf("oauth1: request token url is required")
	}
	if strings.TrimSpace(cfg.AccessTokenURL) == "" {
		return nil, fmt.Errorf("oauth1: access token url is required")
	}
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = defaultLegTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.LegTimeout}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	nonce := cfg.Nonce
	if nonce == nil {
		nonce = Nonce
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		now:        now,
		nonce:      nonce,
	}, nil
}

// RequestTemporaryCredential runs leg one: a signed POST to the request-token
// endpoint carrying the callback URL. Fails closed before any network call
// when the consumer credentials are absent.
func (c *Client) RequestTemporaryCredential(ctx context.Context, callbackURL string) (core.TemporaryCredential, error) {
	if c == nil {
		return core.TemporaryCredential{}, fmt.Errorf("oauth1: client is nil")
	}
	if !c.config.Configured() {
		return core.TemporaryCredential{}, core.NotConfiguredError("oauth1: consumer key and secret are not configured")
	}

	callback := strings.TrimSpace(callbackURL)
	if callback == "" {
		callback = callbackOutOfBandValue
	}

	params, err := c.protocolParams()
	if err != nil {
		return core.TemporaryCredential{}, err
	}
	params["oauth_callback"] = callback

	values, err := c.signedPost(ctx, c.config.RequestTokenURL, params, "")
	if err != nil {
		return core.TemporaryCredential{}, err
	}

	token := strings.TrimSpace(values.Get("oauth_token"))
	secret := strings.TrimSpace(values.Get("oauth_token_secret"))
	if token == "" || secret == "" {
		return core.TemporaryCredential{}, core.ProviderRejectedError(
			"oauth1: request token response is missing oauth_token or oauth_token_secret",
			http.StatusOK,
			values.Encode(),
		)
	}

	return core.TemporaryCredential{
		Token:       token,
		TokenSecret: secret,
		IssuedAt:    c.now(),
	}, nil
}

// AuthorizeURL is the provider page the browser is sent to after leg one.
func (c *Client) AuthorizeURL(temporaryToken string, extra url.Values) (string, error) {
	if c == nil || strings.TrimSpace(c.config.AuthorizeURL) == "" {
		return "", fmt.Errorf("oauth1: authorize url is not configured")
	}
	parsed, err := url.Parse(c.config.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("oauth1: parse authorize url: %w", err)
	}
	query := parsed.Query()
	query.Set("oauth_token", strings.TrimSpace(temporaryToken))
	for key, values := range extra {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// ExchangeAccessCredential runs leg two. The temporary token secret is a
// mandatory signing input: an empty secret means the handshake state was
// lost, and signing with an empty secret would silently produce a signature
// the provider rejects, so this fails closed instead.
func (c *Client) ExchangeAccessCredential(ctx context.Context, token string, verifier string, tokenSecret string) (AccessCredential, error) {
	if c == nil {
		return AccessCredential{}, fmt.Errorf("oauth1: client is nil")
	}
	if !c.config.Configured() {
		return AccessCredential{}, core.NotConfiguredError("oauth1: consumer key and secret are not configured")
	}
	token = strings.TrimSpace(token)
	verifier = strings.TrimSpace(verifier)
	if token == "" {
		return AccessCredential{}, core.MissingParametersError("oauth1: temporary token is required")
	}
	if verifier == "" {
		return AccessCredential{}, core.MissingParametersError("oauth1: verifier is required")
	}
	if strings.TrimSpace(tokenSecret) == "" {
		return AccessCredential{}, core.ErrTemporarySecretRequired
	}

	params, err := c.protocolParams()
	if err != nil {
		return AccessCredential{}, err
	}
	params["oauth_token"] = token
	params["oauth_verifier"] = verifier

	values, err := c.signedPost(ctx, c.config.AccessTokenURL, params, tokenSecret)
	if err != nil {
		return AccessCredential{}, err
	}

	accessToken := strings.TrimSpace(values.Get("oauth_token"))
	accessSecret := strings.TrimSpace(values.Get("oauth_token_secret"))
	if accessToken == "" || accessSecret == "" {
		return AccessCredential{}, core.ProviderRejectedError(
			"oauth1: access token response is missing oauth_token or oauth_token_secret",
			http.StatusOK,
			values.Encode(),
		)
	}

	credential := AccessCredential{
		Token:       accessToken,
		TokenSecret: accessSecret,
		Raw:         values,
	}
	if field := strings.TrimSpace(c.config.UserIDField); field != "" {
		credential.ExternalUserID = strings.TrimSpace(values.Get(field))
	}
	return credential, nil
}

func (c *Client) protocolParams() (map[string]string, error) {
	nonce, err := c.nonce()
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"oauth_consumer_key":     c.config.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": SignatureMethodHMACSHA1,
		"oauth_timestamp":        strconv.FormatInt(c.now().Unix(), 10),
		"oauth_version":          Version,
	}, nil
}

func (c *Client) signedPost(ctx context.Context, endpoint string, params map[string]string, tokenSecret string) (url.Values, error) {
	signature := Sign(http.MethodPost, endpoint, params, c.config.ConsumerSecret, tokenSecret)

	headerParams := make(map[string]string, len(params)+1)
	for key, value := range params {
		headerParams[key] = value
	}
	headerParams["oauth_signature"] = signature

	legCtx := ctx
	if c.config.LegTimeout > 0 {
		var cancel context.CancelFunc
		legCtx, cancel = context.WithTimeout(ctx, c.config.LegTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(legCtx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("oauth1: build request: %w", err)
	}
	req.Header.Set("Authorization", AuthorizationHeader(headerParams))
	req.Header.Set("Accept", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.ProviderUnreachableError(fmt.Sprintf("oauth1: post %s: %v", endpoint, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBodyBytes))
	if err != nil {
		return nil, core.ProviderUnreachableError(fmt.Sprintf("oauth1: read response from %s: %v", endpoint, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.ProviderRejectedError(
			fmt.Sprintf("oauth1: provider rejected the %s leg", legName(endpoint, c.config)),
			resp.StatusCode,
			string(body),
		)
	}

	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, core.ProviderRejectedError(
			"oauth1: provider response is not form-encoded",
			resp.StatusCode,
			string(body),
		)
	}
	return values, nil
}

func legName(endpoint string, cfg Config) string {
	if endpoint == cfg.AccessTokenURL {
		return "access token"
	}
	return "request token"
}
