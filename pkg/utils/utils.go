package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateRandomString returns a hex-encoded random string built from n bytes
// of crypto/rand entropy. The returned string is 2*n characters long.
func GenerateRandomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
