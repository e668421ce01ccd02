package strava

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/goliatone/go-linker/core"
)

// SubscriptionValidator answers the one-time GET Strava issues when a push
// subscription is created: it checks the verify token and echoes the
// challenge. Event POSTs are unsigned; dedupe happens downstream on the
// event identifier.
type SubscriptionValidator struct {
	VerifyToken string
}

// Validate checks the hub parameters and returns the challenge to echo back
// as {"hub.challenge": "..."}.
func (v SubscriptionValidator) Validate(_ context.Context, query map[string]string) (string, error) {
	token := strings.TrimSpace(v.VerifyToken)
	if token == "" {
		return "", core.NotConfiguredError("strava: webhook verify token is not configured")
	}

	if mode := queryValue(query, "hub.mode"); mode != "subscribe" {
		return "", core.MissingParametersError("strava: hub.mode must be subscribe")
	}
	challenge := queryValue(query, "hub.challenge")
	if challenge == "" {
		return "", core.MissingParametersError("strava: hub.challenge is required")
	}
	presented := queryValue(query, "hub.verify_token")
	if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
		return "", core.SignatureInvalidError("strava: webhook verify token mismatch")
	}
	return challenge, nil
}

func queryValue(query map[string]string, key string) string {
	if len(query) == 0 {
		return ""
	}
	return strings.TrimSpace(query[key])
}
