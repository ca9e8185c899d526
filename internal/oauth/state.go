package oauth

import (
	"crypto/rand"
	"encoding/base64"
)

// stateBytes is the entropy of an issued state value.
const stateBytes = 32

// RandomString returns a base64url-encoded random string built from length
// random bytes.
func RandomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
