package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/notify"
	"groupchat/internal/testutil"
)

type readyResponse struct {
	Status string                       `json:"status"`
	Checks map[string]HealthCheckResult `json:"checks"`
}

func TestHealth_ReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	Health(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	testutil.AssertHeader(t, w, "Content-Type", "application/json")
	testutil.AssertJSONContains(t, w, "status", "ok")
}

func TestReady_MemoryModeWithoutPush(t *testing.T) {
	w := httptest.NewRecorder()

	Ready(nil, nil)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[readyResponse](t, w)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, checkDisabled, resp.Checks["database"].Status)
	assert.Equal(t, checkDisabled, resp.Checks["rabbitmq"].Status)
}

func TestReady_DatabaseUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	w := httptest.NewRecorder()
	Ready(db, nil)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[readyResponse](t, w)
	assert.Equal(t, checkUp, resp.Checks["database"].Status)
	assert.Contains(t, resp.Checks["database"].Metadata, "connections_open")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReady_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	w := httptest.NewRecorder()
	Ready(db, nil)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusServiceUnavailable)
	resp := testutil.DecodeJSON[readyResponse](t, w)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, checkDown, resp.Checks["database"].Status)
	assert.Equal(t, "connection refused", resp.Checks["database"].Error)
}

func TestReady_ClosedPushConnection(t *testing.T) {
	w := httptest.NewRecorder()

	Ready(nil, &notify.RabbitMQ{})(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusServiceUnavailable)
	resp := testutil.DecodeJSON[readyResponse](t, w)
	assert.Equal(t, checkDown, resp.Checks["rabbitmq"].Status)
}

func TestHealthCheckResult_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(HealthCheckResult{Status: "up"})
	testutil.AssertNoError(t, err)

	jsonStr := string(data)
	testutil.AssertNotContains(t, jsonStr, "latency_ms")
	testutil.AssertNotContains(t, jsonStr, "error")
	testutil.AssertNotContains(t, jsonStr, "metadata")
}
