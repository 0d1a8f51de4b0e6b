// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

// Probes checks the dependencies the service cannot run without.
type Probes struct {
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Timeout time.Duration
}

// Live reports process liveness.
func (Probes) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on database and Redis pings.
func (p Probes) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), p.timeout())
	defer cancel()

	status := map[string]string{"db": "ok", "redis": "ok"}
	healthy := true
	if p.DB == nil {
		status["db"] = "not configured"
		healthy = false
	} else if err := p.DB.Ping(ctx); err != nil {
		status["db"] = err.Error()
		healthy = false
	}
	if p.Redis == nil {
		status["redis"] = "not configured"
		healthy = false
	} else if err := p.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
		healthy = false
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (p Probes) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return p.Timeout
}
