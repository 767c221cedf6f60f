// Package xid generates the server-side idempotency keys assigned to sale
// requests that arrive without a client key.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a prefixed key unique enough to never collide with a client
// supplied one. The nanosecond timestamp alone is the fallback if the random
// source fails.
func New(prefix string) string {
	entropy := make([]byte, 8)
	if _, err := rand.Read(entropy); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(entropy))
}
