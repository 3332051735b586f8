package regwatch

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EventIdentity derives the deterministic row id for a regulation fact from
// its lower-cased country, state, and title. This is a heuristic identity,
// not a guaranteed unique key: two distinct regulations sharing the same
// jurisdiction and title collapse onto one row. No stronger fact signal
// (such as a citation number) is available from the inputs.
func EventIdentity(country string, state *string, title string) string {
	st := ""
	if state != nil {
		st = *state
	}
	canonical := strings.ToLower(strings.TrimSpace(country)) + "|" +
		strings.ToLower(strings.TrimSpace(st)) + "|" +
		strings.ToLower(strings.TrimSpace(title))
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ContentHash hashes arbitrary text for within-pass deduplication.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
