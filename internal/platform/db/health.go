package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the pool section of the health response.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func poolStats(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// HealthResponse is the body of /health/db.
type HealthResponse struct {
	Status       string            `json:"status"`
	Pool         *PoolStats        `json:"pool,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

// HealthHandler pings the database and every extra probe. Any failure turns
// the response into 503.
func HealthHandler(pool *pgxpool.Pool, probes map[string]Probe) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		all := make(map[string]Probe, len(probes)+1)
		for name, p := range probes {
			all[name] = p
		}
		resp := HealthResponse{Status: "healthy", Dependencies: make(map[string]string, len(all)+1)}
		if pool != nil {
			all["postgres"] = pool.Ping
			stats := poolStats(pool)
			resp.Pool = &stats
		}

		for name, probe := range all {
			if err := probe(ctx); err != nil {
				resp.Status = "unhealthy"
				resp.Dependencies[name] = err.Error()
				continue
			}
			resp.Dependencies[name] = "ok"
		}

		if resp.Status != "healthy" {
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}
