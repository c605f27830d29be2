// Package webhook implements outbound event delivery: payload signing,
// subscription matching with payload filters, the retry policy and the
// partitioned dispatcher that performs the actual HTTP calls.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 digest of "timestamp.body" under
// the given secret.  The timestamp is the decimal Unix-seconds string
// carried in the X-Timestamp header; body is the serialized JSON
// payload exactly as transmitted.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received digest against the expected one
// for the given secret, timestamp and body.  An optional "sha256="
// prefix on the received value is stripped.  Comparison is constant
// time and fails closed on malformed hex or length mismatch.
func VerifySignature(secret, timestamp string, body []byte, received string) bool {
	received = strings.TrimPrefix(strings.TrimSpace(received), "sha256=")
	got, err := hex.DecodeString(received)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
