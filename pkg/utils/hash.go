package utils

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// HashQuery produces a stable cache key for a user query. Queries are
// trimmed and lowercased first so trivially different phrasings share
// a cache entry.
func HashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hash[:16])
}
