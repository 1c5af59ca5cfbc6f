package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Algorithm names the signature scheme recorded on receipts
const Algorithm = "HMAC-SHA256"

// MinSecretLength is the shortest accepted signing secret in bytes
const MinSecretLength = 32

// HashBytes returns the lowercase hex SHA-256 digest of data
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashCanonical canonicalizes v and returns the hex SHA-256 of the result
func HashCanonical(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(canonical), nil
}

// Signer produces and checks HMAC-SHA256 signatures over hashes
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer. The secret must be at least MinSecretLength bytes.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, &Error{Message: "signing secret must be at least 32 bytes"}
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Signer{secret: key}, nil
}

// Sign returns the hex HMAC-SHA256 of hash
func (s *Signer) Sign(hash string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(hash))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the HMAC of hash, in constant time
func (s *Signer) Verify(hash, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(hash))
	return hmac.Equal(got, mac.Sum(nil))
}

// EqualHashes compares two hex digests in constant time
func EqualHashes(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
