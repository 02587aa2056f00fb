package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/upb/yapi/internal/salt"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptyPassword    = errors.New("password is empty")
	ErrPasswordMismatch = errors.New("password does not match")
	ErrSaltMismatch     = errors.New("password hash was produced under a different salt")
)

// dummyHash keeps verification timing uniform when there is no stored hash to compare
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// PasswordHasher hashes and verifies passwords against the process salt
type PasswordHasher struct {
	salt *salt.Salt
	cost int
}

// NewPasswordHasher creates a hasher bound to s. A cost of 0 uses bcrypt.DefaultCost.
func NewPasswordHasher(s *salt.Salt, cost int) *PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{salt: s, cost: cost}
}

// SaltVersion returns the version recorded alongside new hashes
func (h *PasswordHasher) SaltVersion() string {
	return h.salt.Version()
}

// Hash returns the bcrypt hash of the peppered password and the salt version used
func (h *PasswordHasher) Hash(password string) (string, string, error) {
	if strings.TrimSpace(password) == "" {
		return "", "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword(h.pepper(password), h.cost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), h.salt.Version(), nil
}

// Verify checks password against a stored hash and the salt version it was made under
func (h *PasswordHasher) Verify(hash, saltVersion, password string) error {
	if password == "" || hash == "" {
		h.DummyCompare(password)
		return ErrPasswordMismatch
	}
	if saltVersion != h.salt.Version() {
		h.DummyCompare(password)
		return ErrSaltMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), h.pepper(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// DummyCompare burns a bcrypt comparison so unknown identifiers cost the same as wrong passwords
func (h *PasswordHasher) DummyCompare(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), h.pepper(password))
}

// pepper keys the password with the salt; base64 keeps it under bcrypt's 72 byte limit
func (h *PasswordHasher) pepper(password string) []byte {
	mac := hmac.New(sha256.New, h.salt.Key())
	mac.Write([]byte(password))
	sum := mac.Sum(nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum)
	return out
}
