package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// verifySignature checks an HMAC-SHA256 signature over the raw request body
// against a preshared secret. The signature header is expected to be a hex
// digest, matching the convention most payment gateways use (e.g. Stripe's
// v1 scheme, minus the timestamp component this core does not require).
func verifySignature(secret, rawBody []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
