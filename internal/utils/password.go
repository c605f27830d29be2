package utils

import "golang.org/x/crypto/bcrypt"

// HashAPIKey returns bcrypt hash using the given cost.  Used by the
// provisioning tooling; the service itself only verifies.
func HashAPIKey(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyAPIKey safely compares a bcrypt hash and a plain API key.
func VerifyAPIKey(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
