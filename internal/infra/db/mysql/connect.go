package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/checkflow/internal/infra/db"
)

// Connect parses dsn and forces the settings the JSON document column
// relies on: parsed DATETIME values in UTC and utf8mb4.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["charset"] = "utf8mb4"
	return db.Open(ctx, "mysql", cfg.FormatDSN(), db.DefaultPool)
}
