package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/yapi/config"
	"github.com/upb/yapi/repositories/sqldb"
	"go.uber.org/zap"
)

func testProject() config.ProjectConfig {
	return config.ProjectConfig{
		Name:    "YAPI",
		Address: "localhost",
		Author:  "UPB",
		Version: "1.0.0",
		License: "MIT",
	}
}

func TestHandleIndex(t *testing.T) {
	handler := NewHealthHandler(nil, testProject(), zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Code   int               `json:"code"`
		Result map[string]string `json:"result"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "c|_|", body.Result["cup_of_tea"])
	assert.Equal(t, "YAPI @ localhost", body.Result["project"])
}

func TestHandleHealthcheck(t *testing.T) {
	handler := NewHealthHandler(nil, testProject(), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/healthcheck", nil)
	req.Header.Set("User-Agent", "curl/8.5.0")
	w := httptest.NewRecorder()
	handler.HandleHealthcheck(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Result HealthResponse    `json:"result"`
		Client map[string]string `json:"client"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Hello, World!", body.Result.Message)
	assert.Equal(t, "1.0.0", body.Result.Info.Version)
	assert.Equal(t, "curl/8.5.0", body.Client["http_user_agent"])
	assert.Equal(t, http.MethodPost, body.Client["request_method"])
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	t.Run("healthy when database is available", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		handler := NewHealthHandler(sqldb.Wrap(db, config.DriverSQLite, logger), testProject(), logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/api/healthcheck/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Result ReadinessResponse `json:"result"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Result.Status)
		assert.Equal(t, "healthy", body.Result.Checks["database"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unhealthy when ping fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(assert.AnError)

		handler := NewHealthHandler(sqldb.Wrap(db, config.DriverSQLite, logger), testProject(), logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/api/healthcheck/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"unhealthy"`)
	})

	t.Run("reports component stats", func(t *testing.T) {
		handler := NewHealthHandler(nil, testProject(), logger).
			Report("permission_cache", func() interface{} { return map[string]int{"size": 3} })

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/api/healthcheck/ready", nil))

		var body struct {
			Result ReadinessResponse `json:"result"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Contains(t, body.Result.Details, "permission_cache")
		assert.Equal(t, map[string]interface{}{"size": float64(3)}, body.Result.Details["permission_cache"])
	})

	t.Run("unhealthy without a database", func(t *testing.T) {
		handler := NewHealthHandler(nil, testProject(), logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/api/healthcheck/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
