package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashVisitor derives a stable visitor identifier from the client address
// and user agent for requests that carry no visitor cookie.
func HashVisitor(ip, userAgent string) string {
	hash := sha256.Sum256([]byte(ip + userAgent))
	return hex.EncodeToString(hash[:])
}
