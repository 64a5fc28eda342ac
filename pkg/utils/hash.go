package utils

import (
	"crypto/sha256"
	"fmt"
)

// HashContent returns a hex digest used for storage keys and cache keys.
func HashContent(input []byte) string {
	hash := sha256.Sum256(input)
	return fmt.Sprintf("%x", hash[:16])
}

func HashString(input string) string {
	return HashContent([]byte(input))
}
