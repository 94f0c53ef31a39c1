package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// Pinger is the part of the pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

// Check is an additional dependency checked alongside the database, such as
// the Redis relay.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func poolStats(pool Pinger) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

func pingCheck(ctx context.Context, ping func(context.Context) error) checkResult {
	if err := ping(ctx); err != nil {
		return checkResult{Status: "unhealthy", Error: err.Error()}
	}
	return checkResult{Status: "healthy"}
}

// HealthHandler reports datastore reachability plus any extra checks. It
// answers 503 when one of them fails; the sweeper and the request handlers
// keep running and fail per call in the meantime.
func HealthHandler(pool Pinger, extra ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		checks := map[string]checkResult{"postgres": pingCheck(ctx, pool.Ping)}
		for _, ch := range extra {
			checks[ch.Name] = pingCheck(ctx, ch.Ping)
		}

		status, code := "healthy", http.StatusOK
		for _, r := range checks {
			if r.Status != "healthy" {
				status, code = "unhealthy", http.StatusServiceUnavailable
				break
			}
		}
		return c.JSON(code, map[string]interface{}{
			"status": status,
			"checks": checks,
			"pool":   poolStats(pool),
		})
	}
}
