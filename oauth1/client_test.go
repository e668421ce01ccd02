package oauth1

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-linker/core"
)

func fixedClock() time.Time {
	return time.Unix(1000, 0).UTC()
}

func staticNonce() (string, error) {
	return "n1", nil
}

func testConfig(serverURL string) Config {
	return Config{
		ConsumerKey:     "ck",
		ConsumerSecret:  "shh",
		RequestTokenURL: serverURL + "/oauth/request_token",
		AuthorizeURL:    serverURL + "/oauth/confirm",
		AccessTokenURL:  serverURL + "/oauth/access_token",
		UserIDField:     "encoded_user_id",
		Now:             fixedClock,
		Nonce:           staticNonce,
	}
}

func TestRequestTemporaryCredential(t *testing.T) {
	var gotAuth string
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=tmp-token&oauth_token_secret=tmp-secret"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	temporary, err := client.RequestTemporaryCredential(context.Background(), "https://app.example/callback")
	if err != nil {
		t.Fatalf("request temporary credential: %v", err)
	}
	if temporary.Token != "tmp-token" || temporary.TokenSecret != "tmp-secret" {
		t.Fatalf("unexpected credential: %+v", temporary)
	}
	if !temporary.IssuedAt.Equal(fixedClock()) {
		t.Fatalf("expected injected clock, got %v", temporary.IssuedAt)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if !strings.HasPrefix(gotAuth, "OAuth ") {
		t.Fatalf("expected OAuth authorization header, got %q", gotAuth)
	}
	for _, fragment := range []string{
		`oauth_consumer_key="ck"`,
		`oauth_nonce="n1"`,
		`oauth_signature_method="HMAC-SHA1"`,
		`oauth_timestamp="1000"`,
		`oauth_callback="https%3A%2F%2Fapp.example%2Fcallback"`,
		"oauth_signature=",
	} {
		if !strings.Contains(gotAuth, fragment) {
			t.Fatalf("authorization header missing %q: %q", fragment, gotAuth)
		}
	}
	if strings.Contains(gotAuth, "shh") {
		t.Fatalf("consumer secret leaked into authorization header")
	}
}

func TestRequestTemporaryCredentialNotConfiguredMakesNoCall(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.ConsumerKey = ""
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.RequestTemporaryCredential(context.Background(), "")
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != core.ServiceErrorNotConfigured {
		t.Fatalf("expected not configured error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no network call, got %d", calls)
	}
}

func TestRequestTemporaryCredentialProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid signature"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.RequestTemporaryCredential(context.Background(), "")
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != core.ServiceErrorProviderRejected {
		t.Fatalf("expected provider rejected error, got %v", err)
	}
	if richErr.Metadata["provider_status"] != http.StatusUnauthorized {
		t.Fatalf("expected provider status metadata, got %v", richErr.Metadata)
	}
	if strings.Contains(richErr.Message, "shh") {
		t.Fatalf("consumer secret leaked into error message")
	}
}

func TestRequestTemporaryCredentialUnreachableProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.RequestTemporaryCredential(context.Background(), "")
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != core.ServiceErrorProviderUnreachable {
		t.Fatalf("expected provider unreachable error, got %v", err)
	}
}

func TestExchangeAccessCredential(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("oauth_token=access-token&oauth_token_secret=access-secret&encoded_user_id=user-77"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	credential, err := client.ExchangeAccessCredential(context.Background(), "tmp-token", "verifier-1", "tmp-secret")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if credential.Token != "access-token" || credential.TokenSecret != "access-secret" {
		t.Fatalf("unexpected credential: %+v", credential)
	}
	if credential.ExternalUserID != "user-77" {
		t.Fatalf("expected external user id, got %q", credential.ExternalUserID)
	}
	if !strings.Contains(gotAuth, `oauth_token="tmp-token"`) {
		t.Fatalf("expected temporary token in header: %q", gotAuth)
	}
	if !strings.Contains(gotAuth, `oauth_verifier="verifier-1"`) {
		t.Fatalf("expected verifier in header: %q", gotAuth)
	}
	if strings.Contains(gotAuth, "tmp-secret") {
		t.Fatalf("token secret leaked into authorization header")
	}
}

func TestExchangeAccessCredentialFailsClosedWithoutTokenSecret(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.ExchangeAccessCredential(context.Background(), "tmp-token", "verifier-1", "")
	if !errors.Is(err, core.ErrTemporarySecretRequired) {
		t.Fatalf("expected temporary secret required, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no network call, got %d", calls)
	}
}

func TestExchangeAccessCredentialValidatesInputs(t *testing.T) {
	client, err := NewClient(testConfig("https://unused.example"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.ExchangeAccessCredential(context.Background(), "", "verifier", "secret"); err == nil {
		t.Fatalf("expected missing token error")
	}
	if _, err := client.ExchangeAccessCredential(context.Background(), "tmp-token", "", "secret"); err == nil {
		t.Fatalf("expected missing verifier error")
	}
}

func TestAuthorizeURL(t *testing.T) {
	client, err := NewClient(testConfig("https://provider.example"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	authorizeURL, err := client.AuthorizeURL("tmp-token", url.Values{"oauth_callback": {"https://app.example/cb?state=abc"}})
	if err != nil {
		t.Fatalf("authorize url: %v", err)
	}
	parsed, err := url.Parse(authorizeURL)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	if parsed.Query().Get("oauth_token") != "tmp-token" {
		t.Fatalf("expected oauth_token in authorize url: %q", authorizeURL)
	}
	if parsed.Query().Get("oauth_callback") != "https://app.example/cb?state=abc" {
		t.Fatalf("expected callback in authorize url: %q", authorizeURL)
	}
}

func TestNewClientRequiresEndpoints(t *testing.T) {
	if _, err := NewClient(Config{AccessTokenURL: "https://x"}); err == nil {
		t.Fatalf("expected missing request token url error")
	}
	if _, err := NewClient(Config{RequestTokenURL: "https://x"}); err == nil {
		t.Fatalf("expected missing access token url error")
	}
}
