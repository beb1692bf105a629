package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Pool bounds the connections kept by the repository mirror.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

var DefaultPool = Pool{MaxOpen: 10, MaxIdle: 5, MaxLifetime: 30 * time.Minute}

// Open opens a registered driver and pings it. The handle is closed again
// when the ping fails.
func Open(ctx context.Context, driver, dsn string, pool Pool) (*sql.DB, error) {
	handle, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	handle.SetMaxOpenConns(pool.MaxOpen)
	handle.SetMaxIdleConns(pool.MaxIdle)
	handle.SetConnMaxLifetime(pool.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := handle.PingContext(pingCtx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return handle, nil
}
