package idempotency

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	uuidKeyPattern   = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	prefixKeyPattern = regexp.MustCompile(`^[a-z0-9]+:[0-9a-fA-F]{16,}$`)
)

// MaxKeyLength bounds caller-supplied keys
const MaxKeyLength = 255

// ValidateKey accepts an 8-4-4-4-12 hex UUID or a prefix:hash key
// (lowercase alphanumeric prefix, colon, at least 16 hex characters).
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return &KeyError{Key: key, Message: "idempotency key is required"}
	}
	if len(key) > MaxKeyLength {
		return &KeyError{Key: key, Message: "idempotency key is too long"}
	}
	if uuidKeyPattern.MatchString(key) {
		if _, err := uuid.Parse(key); err != nil {
			return &KeyError{Key: key, Message: "idempotency key is not a valid UUID", Cause: err}
		}
		return nil
	}
	if prefixKeyPattern.MatchString(key) {
		return nil
	}
	return &KeyError{Key: key, Message: "idempotency key must be a UUID or prefix:hash"}
}

// DeriveKey builds a prefix:hash key from a content hash
func DeriveKey(prefix, hash string) string {
	return strings.ToLower(prefix) + ":" + hash
}
