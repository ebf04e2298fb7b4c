package dbpool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minitasks/tasktracker/internal/platform/config"
)

// New opens a pgx pool tuned from cfg. Out-of-range connection bounds are
// clamped rather than rejected.
func New(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	minConns, maxConns := Bounds(cfg.MinConns, cfg.MaxConns)
	poolCfg.MinConns = int32(minConns)
	poolCfg.MaxConns = int32(maxConns)
	// Zero durations keep pgx's defaults.
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheck > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheck
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	return pool, nil
}

func Bounds(minConns, maxConns int) (int, int) {
	const defaultMin, defaultMax = 2, 20
	if minConns < 0 {
		minConns = defaultMin
	}
	if maxConns <= 0 {
		maxConns = defaultMax
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	return minConns, maxConns
}
