package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignHMAC returns lowercase hex of HMAC-SHA256 over the exact payload bytes
// that will be transmitted. Events are signed once, at emission time, so
// every retry carries the identical signature.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("%x", mac.Sum(nil))
}

// VerifyHMAC checks an HMAC-SHA256 signature over the raw body using the
// shared secret, in constant time.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, b)
}

// CanonicalJSON serializes a payload deterministically. encoding/json sorts
// map keys, so sign and verify always agree on the byte stream.
func CanonicalJSON(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}
