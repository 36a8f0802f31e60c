package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localbiz-chat/internal/testutil"
)

type readinessResponse struct {
	Status string                       `json:"status"`
	Checks map[string]HealthCheckResult `json:"checks"`
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealth_ReturnsOK(t *testing.T) {
	w := httptest.NewRecorder()

	Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	testutil.AssertJSONContains(t, w, "status", "ok")
}

func TestReady_AllUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	handler := Ready(map[string]Check{
		"database": DatabaseCheck(db),
		"rabbitmq": PingCheck(stubPinger{}),
		"redis":    RedisCheck(client),
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[readinessResponse](t, w)
	assert.Equal(t, "ready", resp.Status)
	require.Len(t, resp.Checks, 3)
	assert.Equal(t, "up", resp.Checks["database"].Status)
	assert.Contains(t, resp.Checks["database"].Metadata, "connections_open")
	assert.Equal(t, "up", resp.Checks["redis"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReady_OneDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	handler := Ready(map[string]Check{
		"database": DatabaseCheck(db),
		"rabbitmq": PingCheck(stubPinger{}),
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusServiceUnavailable)
	resp := testutil.DecodeJSON[readinessResponse](t, w)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "down", resp.Checks["database"].Status)
	assert.Equal(t, "connection refused", resp.Checks["database"].Error)
	assert.Equal(t, "up", resp.Checks["rabbitmq"].Status)
}

func TestReady_NoChecks(t *testing.T) {
	w := httptest.NewRecorder()

	Ready(nil)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
}

func TestPingCheck_Down(t *testing.T) {
	result := PingCheck(stubPinger{err: errors.New("rabbitmq connection closed")})(context.Background())

	assert.Equal(t, "down", result.Status)
	assert.Equal(t, "rabbitmq connection closed", result.Error)
}

func TestRedisCheck_Down(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	result := RedisCheck(client)(context.Background())

	assert.Equal(t, "down", result.Status)
	assert.NotEmpty(t, result.Error)
}
