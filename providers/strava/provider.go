// Package strava wires the Strava OAuth2 endpoints into the generic
// authorization-code provider and handles webhook subscription validation.
package strava

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-linker/providers"
)

const (
	ProviderID = "strava"

	AuthURL  = "https://www.strava.com/oauth/authorize"
	TokenURL = "https://www.strava.com/oauth/token"

	// Strava reports the account owner inline in the token response.
	externalAccountField = "athlete.id"
)

// DefaultScopes covers profile reads plus private activity access.
var DefaultScopes = []string{"read", "activity:read_all"}

type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	LegTimeout   time.Duration
	HTTPClient   providers.HTTPDoer
}

func New(cfg Config) (*providers.OAuth2Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("strava: client id and client secret are required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = append([]string{}, DefaultScopes...)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return providers.NewOAuth2Provider(providers.OAuth2Config{
		ID:                   ProviderID,
		AuthURL:              AuthURL,
		TokenURL:             TokenURL,
		ClientID:             strings.TrimSpace(cfg.ClientID),
		ClientSecret:         strings.TrimSpace(cfg.ClientSecret),
		Scopes:               scopes,
		ExternalAccountField: externalAccountField,
		LegTimeout:           cfg.LegTimeout,
		HTTPClient:           httpClient,
	})
}
