package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
)

// SignParams computes the request signature the Flow API expects: drop any
// "s" key, sort the remaining keys lexicographically, concatenate each key
// immediately followed by its value with no separator, then HMAC-SHA256 the
// result with the shared secret. Returns lowercase hex.
func SignParams(params map[string]string, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: signing secret is not configured", failure.ErrConfiguration)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "s" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha256.New, []byte(secret))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(params[k]))
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyParams recomputes the signature over params and compares it with the
// provided one in constant time.
func VerifyParams(params map[string]string, signature, secret string) (bool, error) {
	expected, err := SignParams(params, secret)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// ConstantTimeEquals compares two tokens without leaking length-prefix timing.
func ConstantTimeEquals(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
