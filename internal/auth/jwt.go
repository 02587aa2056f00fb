package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/yapi/internal/salt"
	"github.com/upb/yapi/models"
)

var (
	ErrMalformedToken   = errors.New("token is absent or malformed")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrTokenExpired     = errors.New("token has expired")
)

// Claims is the signed body of an issued token
type Claims struct {
	Payload models.TokenPayload `json:"payload"`
	jwt.RegisteredClaims
}

// TokenID returns the JWT ID as a UUID
func (c *Claims) TokenID() (uuid.UUID, error) {
	return uuid.Parse(c.ID)
}

// UserID returns the token subject as a UUID
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// NewClaims builds claims for payload valid from issuedAt for ttl.
// Times are truncated to whole seconds to match the JWT NumericDate encoding.
func NewClaims(tokenID uuid.UUID, payload models.TokenPayload, issuedAt time.Time, ttl time.Duration) *Claims {
	issuedAt = issuedAt.UTC().Truncate(time.Second)
	return &Claims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Subject:   payload.ID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
}

// TokenCodec signs and verifies HS256 tokens with the salt-derived key
type TokenCodec struct {
	key []byte
	now func() time.Time
}

// NewTokenCodec creates a codec keyed by s
func NewTokenCodec(s *salt.Salt) *TokenCodec {
	return &TokenCodec{key: s.Key(), now: time.Now}
}

// WithClock returns a copy of the codec reading time from now
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	return &TokenCodec{key: c.key, now: now}
}

// Sign produces the compact serialization of claims
func (c *TokenCodec) Sign(claims *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns its claims. It checks structure, signature and
// expiry only; storage validity is checked by the caller.
func (c *TokenCodec) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformedToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if _, err := claims.TokenID(); err != nil {
		return nil, fmt.Errorf("%w: invalid token id", ErrMalformedToken)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: invalid subject", ErrMalformedToken)
	}
	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

// HashToken returns the hex SHA-256 digest under which a signed token is stored
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
