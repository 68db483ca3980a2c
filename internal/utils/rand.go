package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenHex returns n random bytes encoded as a hex string.
func TokenHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// MaskSecret keeps the first four characters of a secret for log output.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + "*****"
}
