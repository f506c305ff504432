package core

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/parley-chat/parley/internal/store"
)

// fingerprintWindow is how many trailing messages participate in the cache
// key. Two requests whose last messages match byte-for-byte map to the same
// fingerprint regardless of older history.
const fingerprintWindow = 3

// Fingerprint hashes the (role, content) pairs of the trailing messages of the
// full conversation history into a deterministic cache key.
func Fingerprint(messages []store.Message) string {
	if len(messages) > fingerprintWindow {
		messages = messages[len(messages)-fingerprintWindow:]
	}

	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{':'})
		h.Write([]byte(msg.Content))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
