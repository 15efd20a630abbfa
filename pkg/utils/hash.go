package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// HashString returns the hex MD5 digest of the input. Used for cache keys
// and document ids; collisions are not a security concern here.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// NormalizeQuestion canonicalizes question text before hashing so that
// trivially different phrasings of the same question share a cache key.
func NormalizeQuestion(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}
