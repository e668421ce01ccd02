// Package oauth1 implements the three-legged HMAC-SHA1 signing protocol:
// strict percent-encoding, signature base string construction, and the
// Authorization header format. The signing functions are pure; network legs
// live in the client.
package oauth1

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

const (
	SignatureMethodHMACSHA1 = "HMAC-SHA1"
	Version                 = "1.0"
)

// PercentEncode applies the strict RFC 3986 rules the protocol requires:
// only ALPHA, DIGIT, "-", ".", "_" and "~" pass through, everything else is
// %XX with uppercase hex, per byte of the UTF-8 encoding. net/url is close
// but not byte-exact (space and "+" handling differ), so this is hand-rolled.
func PercentEncode(value string) string {
	var out strings.Builder
	out.Grow(len(value))
	for _, b := range []byte(value) {
		if isUnreserved(b) {
			out.WriteByte(b)
			continue
		}
		out.WriteString(fmt.Sprintf("%%%02X", b))
	}
	return out.String()
}

func isUnreserved(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	}
	return false
}

// SignatureBase builds the canonical string METHOD&enc(url)&enc(params).
// Parameters sort lexicographically by encoded key, then by encoded value
// for ties, joined as key=value pairs with "&" and encoded once more as a
// whole. The base URL must carry no query string or fragment.
func SignatureBase(method string, baseURL string, params map[string]string) string {
	type pair struct {
		key   string
		value string
	}
	pairs := make([]pair, 0, len(params))
	for key, value := range params {
		pairs = append(pairs, pair{key: PercentEncode(key), value: PercentEncode(value)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	encoded := make([]string, 0, len(pairs))
	for _, p := range pairs {
		encoded = append(encoded, p.key+"="+p.value)
	}
	paramString := strings.Join(encoded, "&")

	return strings.ToUpper(strings.TrimSpace(method)) +
		"&" + PercentEncode(baseURL) +
		"&" + PercentEncode(paramString)
}

// SigningKey is enc(consumerSecret)&enc(tokenSecret). The token secret slot
// is legitimately empty only for the first leg; the exchange leg validates
// its presence before calling here.
func SigningKey(consumerSecret string, tokenSecret string) string {
	return PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
}

// Sign computes the base64 HMAC-SHA1 signature over the signature base
// string. Deterministic: identical inputs always produce an identical
// signature.
func Sign(method string, baseURL string, params map[string]string, consumerSecret string, tokenSecret string) string {
	mac := hmac.New(sha1.New, []byte(SigningKey(consumerSecret, tokenSecret)))
	_, _ = mac.Write([]byte(SignatureBase(method, baseURL, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Nonce returns a fresh random nonce. Reusing a nonce within the provider's
// replay window invalidates the handshake, so every leg calls this anew.
func Nonce() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("oauth1: generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// AuthorizationHeader renders the OAuth header value: comma-separated
// key="encoded-value" pairs in sorted key order, prefixed with "OAuth ".
func AuthorizationHeader(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, PercentEncode(key)+`="`+PercentEncode(params[key])+`"`)
	}
	return "OAuth " + strings.Join(pairs, ", ")
}
