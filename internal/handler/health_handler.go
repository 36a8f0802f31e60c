package handler

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 5 * time.Second

const (
	checkUp   = "up"
	checkDown = "down"
)

// Health is the liveness probe. It never touches dependencies.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult is the outcome of one dependency probe.
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Check probes one dependency.
type Check func(ctx context.Context) HealthCheckResult

// Pinger is a dependency that can report its own liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type readiness struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// Ready is the readiness probe: 200 once every named check is up, 503
// otherwise. Checks run concurrently under one deadline.
func Ready(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		resp := readiness{
			Status:    "ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    make(map[string]HealthCheckResult, len(checks)),
		}

		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		for name, check := range checks {
			g.Go(func() error {
				result := check(ctx)
				mu.Lock()
				resp.Checks[name] = result
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		status := http.StatusOK
		for _, result := range resp.Checks {
			if result.Status != checkUp {
				status = http.StatusServiceUnavailable
				resp.Status = "not_ready"
				break
			}
		}
		writeJSON(w, status, resp)
	}
}

// probe times fn and turns its error into a result.
func probe(ctx context.Context, fn func(context.Context) error) HealthCheckResult {
	start := time.Now()
	err := fn(ctx)
	result := HealthCheckResult{Status: checkUp, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Status = checkDown
		result.Error = err.Error()
	}
	return result
}

// DatabaseCheck pings the conversation store and reports pool usage.
func DatabaseCheck(db *sql.DB) Check {
	return func(ctx context.Context) HealthCheckResult {
		result := probe(ctx, db.PingContext)
		if result.Status != checkUp {
			return result
		}
		stats := db.Stats()
		result.Metadata = map[string]any{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		}
		return result
	}
}

// PingCheck adapts a Pinger such as the RabbitMQ connection.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) HealthCheckResult {
		return probe(ctx, p.Ping)
	}
}

// RedisCheck verifies the registry and backplane connection.
func RedisCheck(client redis.UniversalClient) Check {
	return func(ctx context.Context) HealthCheckResult {
		return probe(ctx, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
}
