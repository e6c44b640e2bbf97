package secure

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateMailboxToken generates a random bearer token for the HTTP
// mailbox transport; the caller decides how to hand it to clients.
// Format: "fty_" + 64 hex chars (256 bits of entropy).
func GenerateMailboxToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return "fty_" + hex.EncodeToString(b)
}
