package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", HashString("hello"))
	assert.Len(t, HashString(""), 32)
	assert.NotEqual(t, HashString("a"), HashString("b"))
}

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "how do i reset my password?", NormalizeQuestion("  How do I RESET my password?  \n"))
	assert.Equal(t, "", NormalizeQuestion("   "))

	// Interior whitespace is preserved; only case and edges normalize.
	assert.Equal(t, "a  b", NormalizeQuestion("A  B"))
}
