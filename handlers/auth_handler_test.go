package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/services"
	"go.uber.org/zap"
)

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		expected    Credentials
		expectErr   bool
	}{
		{
			name:     "query string on GET",
			method:   http.MethodGet,
			target:   "/api/auth?username=alice&password=s3cret",
			expected: Credentials{Identifier: "alice", Password: "s3cret"},
		},
		{
			name:     "email wins over user and username",
			method:   http.MethodGet,
			target:   "/api/auth?username=a&user=b&email=c%40example.com&pass=p",
			expected: Credentials{Identifier: "c@example.com", Password: "p"},
		},
		{
			name:     "pass wins over password",
			method:   http.MethodGet,
			target:   "/api/auth?user=bob&password=long&pass=short",
			expected: Credentials{Identifier: "bob", Password: "short"},
		},
		{
			name:     "password ignored without identifier",
			method:   http.MethodGet,
			target:   "/api/auth?password=orphan",
			expected: Credentials{},
		},
		{
			name:        "JSON body",
			method:      http.MethodPost,
			target:      "/api/auth",
			contentType: "application/json; charset=utf-8",
			body:        `{"email":"  alice@example.com ","password":" pw "}`,
			expected:    Credentials{Identifier: "alice@example.com", Password: " pw "},
		},
		{
			name:        "empty JSON body",
			method:      http.MethodPost,
			target:      "/api/auth",
			contentType: "application/json",
			expected:    Credentials{},
		},
		{
			name:        "malformed JSON body",
			method:      http.MethodPost,
			target:      "/api/auth",
			contentType: "application/json",
			body:        `{"email":`,
			expectErr:   true,
		},
		{
			name:        "form body",
			method:      http.MethodPost,
			target:      "/api/auth",
			contentType: "application/x-www-form-urlencoded",
			body:        url.Values{"user": {"carol"}, "pass": {"pw"}}.Encode(),
			expected:    Credentials{Identifier: "carol", Password: "pw"},
		},
		{
			name:        "query ignored on POST",
			method:      http.MethodPost,
			target:      "/api/auth?username=alice&password=pw",
			contentType: "application/x-www-form-urlencoded",
			expected:    Credentials{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			creds, err := ParseCredentials(req)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, creds)
		})
	}
}

func TestHandleAuthenticate(t *testing.T) {
	logger := zap.NewNop()

	t.Run("returns the issued token", func(t *testing.T) {
		tokens := new(MockAuthService)
		handler := NewAuthHandler(tokens, logger)

		tokens.On("Authenticate", mock.Anything, "alice", "pw").
			Return(&services.IssuedToken{Token: "signed.jwt.value", TokenID: uuid.New()}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/auth?username=alice&password=pw", nil)
		w := httptest.NewRecorder()
		handler.HandleAuthenticate(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Code   int           `json:"code"`
			Result TokenResponse `json:"result"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, http.StatusOK, body.Code)
		assert.Equal(t, "signed.jwt.value", body.Result.Token)
		tokens.AssertExpectations(t)
	})

	t.Run("unknown identifier is 401", func(t *testing.T) {
		tokens := new(MockAuthService)
		handler := NewAuthHandler(tokens, logger)

		tokens.On("Authenticate", mock.Anything, "", "").Return(nil, services.ErrInvalidIdentifier)

		req := httptest.NewRequest(http.MethodPost, "/api/auth", nil)
		w := httptest.NewRecorder()
		handler.HandleAuthenticate(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "InvalidIdentifier", decodeError(t, w).Result.Code)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		tokens := new(MockAuthService)
		handler := NewAuthHandler(tokens, logger)

		tokens.On("Authenticate", mock.Anything, "alice", "nope").Return(nil, services.ErrInvalidPassword)

		req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(`{"username":"alice","pass":"nope"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler.HandleAuthenticate(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "InvalidPassword", decodeError(t, w).Result.Code)
	})
}

func TestHandleValidate(t *testing.T) {
	logger := zap.NewNop()
	userID := uuid.New()

	t.Run("bearer token is verified", func(t *testing.T) {
		tokens := new(MockAuthService)
		handler := NewAuthHandler(tokens, logger)

		claims := &auth.Claims{Payload: models.TokenPayload{ID: userID, Username: "alice"}}
		tokens.On("Verify", mock.Anything, "abc.def.ghi").Return(claims, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/validate", nil)
		req.Header.Set("Authorization", "Bearer abc.def.ghi")
		w := httptest.NewRecorder()
		handler.HandleValidate(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Result struct {
				Payload models.TokenPayload `json:"payload"`
			} `json:"result"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, userID, body.Result.Payload.ID)
		assert.Equal(t, "alice", body.Result.Payload.Username)
	})

	t.Run("revoked token is 401", func(t *testing.T) {
		tokens := new(MockAuthService)
		handler := NewAuthHandler(tokens, logger)

		tokens.On("Verify", mock.Anything, "abc.def.ghi").Return(nil, services.ErrTokenRevoked)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/validate", nil)
		req.Header.Set("Authorization", "abc.def.ghi")
		w := httptest.NewRecorder()
		handler.HandleValidate(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "TokenRevoked", decodeError(t, w).Result.Code)
	})

	t.Run("absent token is malformed", func(t *testing.T) {
		tokens := new(MockAuthService)
		handler := NewAuthHandler(tokens, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/validate", nil)
		w := httptest.NewRecorder()
		handler.HandleValidate(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "MalformedToken", decodeError(t, w).Result.Code)
		tokens.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})
}

func TestHandleLogout(t *testing.T) {
	logger := zap.NewNop()

	t.Run("invalidates the caller tokens", func(t *testing.T) {
		tokens := new(MockAuthService)
		handler := NewAuthHandler(tokens, logger)
		user := models.NewUser("alice", "alice@example.com", uuid.New())

		tokens.On("Logout", mock.Anything, user.ID).Return(int64(1), nil)

		req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/logout", nil), user)
		w := httptest.NewRecorder()
		handler.HandleLogout(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Result LogoutResponse `json:"result"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, int64(1), body.Result.Invalidated)
		tokens.AssertExpectations(t)
	})

	t.Run("401 without identity", func(t *testing.T) {
		tokens := new(MockAuthService)
		handler := NewAuthHandler(tokens, logger)

		w := httptest.NewRecorder()
		handler.HandleLogout(w, httptest.NewRequest(http.MethodPost, "/api/logout", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "MissingToken", decodeError(t, w).Result.Code)
		tokens.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
	})
}
