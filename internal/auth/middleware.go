package auth

import (
	"net/http"
	"strings"
)

// TokenFromHeader returns the token carried in the named request header.
// A "Bearer " prefix is accepted and stripped.
func TokenFromHeader(r *http.Request, header string) string {
	return BearerToken(r.Header.Get(header))
}

// BearerToken strips an optional case-insensitive "Bearer" scheme from value
func BearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return value
}
