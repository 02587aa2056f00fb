package handlers

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/middleware"
	"github.com/upb/yapi/services"
	"github.com/upb/yapi/utils"
	"go.uber.org/zap"
)

// AuthService defines the token operations behind the auth endpoints
type AuthService interface {
	// Authenticate verifies credentials and issues a fresh token
	Authenticate(ctx context.Context, identifier, password string) (*services.IssuedToken, error)

	// Verify checks a raw token against its signature and the token store
	Verify(ctx context.Context, raw string) (*auth.Claims, error)

	// Logout invalidates every token of a user
	Logout(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Credentials are the login parameters after alias resolution
type Credentials struct {
	Identifier string
	Password   string
}

// TokenResponse is the result of a successful authentication
type TokenResponse struct {
	Token string `json:"token"`
}

// LogoutResponse reports how many tokens a logout invalidated
type LogoutResponse struct {
	Invalidated int64 `json:"invalidated"`
}

// AuthHandler handles authentication, validation and logout
type AuthHandler struct {
	tokens AuthService
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(tokens AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		tokens: tokens,
		logger: logger,
	}
}

// HandleAuthenticate handles GET and POST /api/auth
func (h *AuthHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	creds, err := ParseCredentials(r)
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	issued, err := h.tokens.Authenticate(r.Context(), creds.Identifier, creds.Password)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, TokenResponse{Token: issued.Token})
}

// HandleValidate handles ANY /api/auth/validate. The token is read from the
// Authorization header, raw or with a Bearer scheme. An absent token is
// reported as malformed.
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	raw := auth.TokenFromHeader(r, "Authorization")
	if raw == "" {
		HandleServiceError(w, r, services.ErrMalformedToken, h.logger)
		return
	}

	claims, err := h.tokens.Verify(r.Context(), raw)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, claims)
}

// HandleLogout handles POST /api/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		HandleServiceError(w, r, services.ErrMissingToken, h.logger)
		return
	}

	n, err := h.tokens.Logout(r.Context(), identity.UserID)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, LogoutResponse{Invalidated: n})
}

// ParseCredentials reads login parameters from the query string on GET and
// from a JSON or form body otherwise. "email" wins over "user", which wins
// over "username"; "pass" wins over "password". The identifier is trimmed,
// the password is passed through unchanged.
func ParseCredentials(r *http.Request) (Credentials, error) {
	params, err := credentialParams(r)
	if err != nil {
		return Credentials{}, err
	}

	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := params[k]; ok {
				return v
			}
		}
		return ""
	}

	creds := Credentials{Identifier: strings.TrimSpace(pick("email", "user", "username"))}
	if creds.Identifier != "" {
		creds.Password = pick("pass", "password")
	}
	return creds, nil
}

func credentialParams(r *http.Request) (map[string]string, error) {
	params := make(map[string]string)

	if r.Method == http.MethodGet {
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		return params, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]interface{}
		dec := json.NewDecoder(io.LimitReader(r.Body, utils.MaxBodyBytes))
		if err := dec.Decode(&body); err != nil && err != io.EOF {
			return nil, utils.FieldError("body", "request body must be valid JSON")
		}
		for k, v := range body {
			if s, ok := v.(string); ok {
				params[k] = s
			}
		}
		return params, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, utils.FieldError("body", "request body could not be parsed")
	}
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params, nil
}
