package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"groupchat/internal/notify"
)

const (
	checkUp       = "up"
	checkDown     = "down"
	checkDisabled = "disabled"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Ready checks the configured dependencies in parallel. A nil db (memory
// storage) or nil push connection is reported as disabled and does not fail
// readiness.
func Ready(db *sql.DB, push *notify.RabbitMQ) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dbResult := make(chan HealthCheckResult, 1)
		rmqResult := make(chan HealthCheckResult, 1)

		go func() {
			dbResult <- checkDatabase(ctx, db)
		}()

		go func() {
			rmqResult <- checkRabbitMQ(push)
		}()

		dbCheck := <-dbResult
		rmqCheck := <-rmqResult

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"database": dbCheck,
				"rabbitmq": rmqCheck,
			},
		}

		status := http.StatusOK
		response["status"] = "ready"
		if dbCheck.Status == checkDown || rmqCheck.Status == checkDown {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
		}

		writeJSON(w, status, response)
	}
}

func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	if db == nil {
		return HealthCheckResult{Status: checkDisabled}
	}

	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    checkDown,
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	stats := db.Stats()
	return HealthCheckResult{
		Status:    checkUp,
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]any{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

func checkRabbitMQ(push *notify.RabbitMQ) HealthCheckResult {
	if push == nil {
		return HealthCheckResult{Status: checkDisabled}
	}
	if push.IsClosed() {
		return HealthCheckResult{
			Status: checkDown,
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: checkUp}
}
