package hypothesis

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NormalizeClaim canonicalizes claim text for hashing and comparison:
// lowercase, trimmed, with internal whitespace runs collapsed to a single
// space. Returns "" for whitespace-only input.
func NormalizeClaim(claim string) string {
	fields := strings.Fields(strings.ToLower(claim))
	return strings.Join(fields, " ")
}

// ClaimHash returns the canonical identity hash for a normalized claim,
// rendered as a fixed-width hex string.
func ClaimHash(normalized string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}
