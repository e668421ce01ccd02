// Package garmin wires the Garmin Connect OAuth 1.0a endpoints into the
// generic three-legged provider.
package garmin

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-linker/oauth1"
	"github.com/goliatone/go-linker/providers"
)

const (
	ProviderID = "garmin"

	RequestTokenURL = "https://connectapi.garmin.com/oauth-service/oauth/request_token"
	AuthorizeURL    = "https://connect.garmin.com/oauthConfirm"
	AccessTokenURL  = "https://connectapi.garmin.com/oauth-service/oauth/access_token"
)

type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	LegTimeout     time.Duration
	HTTPClient     oauth1.HTTPDoer
}

// New builds the Garmin provider. Only the consumer pair is caller-supplied;
// the endpoints are fixed.
func New(cfg Config) (*providers.OAuth1Provider, error) {
	if strings.TrimSpace(cfg.ConsumerKey) == "" || strings.TrimSpace(cfg.ConsumerSecret) == "" {
		return nil, fmt.Errorf("garmin: consumer key and consumer secret are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return providers.NewOAuth1Provider(providers.OAuth1Config{
		ID: ProviderID,
		Client: oauth1.Config{
			ConsumerKey:     strings.TrimSpace(cfg.ConsumerKey),
			ConsumerSecret:  strings.TrimSpace(cfg.ConsumerSecret),
			RequestTokenURL: RequestTokenURL,
			AuthorizeURL:    AuthorizeURL,
			AccessTokenURL:  AccessTokenURL,
			LegTimeout:      cfg.LegTimeout,
			HTTPClient:      httpClient,
		},
	})
}
