package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-linker/core"
)

// DefaultTolerance bounds how old a signed timestamp may be before the
// delivery is treated as a replay.
const DefaultTolerance = 5 * time.Minute

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// HeaderHMACVerifier checks a single-value HMAC-SHA256 signature header
// computed over the raw body.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return core.SignatureInvalidError(fmt.Sprintf("webhooks: %s signature header is required", strings.TrimSpace(v.Header)))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return core.SignatureInvalidError("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return core.SignatureInvalidError("webhooks: signature value is not decodable")
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return core.SignatureInvalidError("webhooks: signature verification failed")
	}
	return nil
}

// HeaderTokenVerifier compares a static verification token carried in a
// header, in constant time.
type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("webhooks: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if actual == "" {
		return core.SignatureInvalidError(fmt.Sprintf("webhooks: %s verification header is required", strings.TrimSpace(v.Header)))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return core.SignatureInvalidError("webhooks: verification token mismatch")
	}
	return nil
}

// TimestampedHMACVerifier checks the "t=<epoch>,v1=<hex>[,v1=<hex>...]"
// signature scheme: HMAC-SHA256 over "<timestamp>.<raw body>", compared in
// constant time against every provided v1 value so secret rotation keeps
// working, plus a freshness window for replay protection.
type TimestampedHMACVerifier struct {
	Header    string
	Secrets   []string
	Scheme    string // signature element key, defaults to v1
	Tolerance time.Duration
	Now       func() time.Time
}

func (v TimestampedHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return core.SignatureInvalidError(fmt.Sprintf("webhooks: %s signature header is required", strings.TrimSpace(v.Header)))
	}
	secrets := trimNonEmpty(v.Secrets)
	if len(secrets) == 0 {
		return fmt.Errorf("webhooks: at least one signing secret is required")
	}

	timestamp, signatures, err := parseTimestampedHeader(header, v.scheme())
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	signedAt := time.Unix(timestamp, 0).UTC()
	age := now.Sub(signedAt)
	if age < 0 {
		age = -age
	}
	if age > tolerance {
		return core.SignatureInvalidError("webhooks: signature timestamp is outside the tolerance window")
	}

	signedPayload := strconv.FormatInt(timestamp, 10) + "." + string(req.Body)
	for _, secret := range secrets {
		mac := hmac.New(sha256.New, []byte(secret))
		_, _ = mac.Write([]byte(signedPayload))
		expected := mac.Sum(nil)
		for _, signature := range signatures {
			decoded, decodeErr := hex.DecodeString(signature)
			if decodeErr != nil {
				continue
			}
			if subtle.ConstantTimeCompare(decoded, expected) == 1 {
				return nil
			}
		}
	}
	return core.SignatureInvalidError("webhooks: signature verification failed")
}

func (v TimestampedHMACVerifier) scheme() string {
	if scheme := strings.TrimSpace(v.Scheme); scheme != "" {
		return scheme
	}
	return "v1"
}

func parseTimestampedHeader(header string, scheme string) (int64, []string, error) {
	var timestamp int64
	timestampSeen := false
	signatures := []string{}

	for _, element := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(element), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, core.SignatureInvalidError("webhooks: signature timestamp is not numeric")
			}
			timestamp = parsed
			timestampSeen = true
		case scheme:
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}

	if !timestampSeen {
		return 0, nil, core.SignatureInvalidError("webhooks: signature header is missing the timestamp element")
	}
	if len(signatures) == 0 {
		return 0, nil, core.SignatureInvalidError("webhooks: signature header carries no signature elements")
	}
	return timestamp, signatures, nil
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
