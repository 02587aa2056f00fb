package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/yapi/services/bootstrap"
	"go.uber.org/zap"
)

func TestHandleBootstrap(t *testing.T) {
	logger := zap.NewNop()

	t.Run("seeds an empty installation", func(t *testing.T) {
		seeder := new(MockInitializer)
		handler := NewBootstrapHandler(seeder, logger)
		seeder.On("Initialize", mock.Anything).Return(&bootstrap.Result{Permissions: 12, Roles: 5, Groups: 3, Admin: true}, nil)

		w := httptest.NewRecorder()
		handler.HandleBootstrap(w, httptest.NewRequest(http.MethodPost, "/api/bootstrap", nil))

		require.Equal(t, http.StatusCreated, w.Code)
		var body struct {
			Result bootstrap.Result `json:"result"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, 5, body.Result.Roles)
		assert.True(t, body.Result.Admin)
	})

	t.Run("refuses a seeded installation", func(t *testing.T) {
		seeder := new(MockInitializer)
		handler := NewBootstrapHandler(seeder, logger)
		seeder.On("Initialize", mock.Anything).Return(nil, bootstrap.ErrAlreadyInitialized)

		w := httptest.NewRecorder()
		handler.HandleBootstrap(w, httptest.NewRequest(http.MethodPost, "/api/bootstrap", nil))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Conflict", decodeError(t, w).Result.Code)
	})
}
