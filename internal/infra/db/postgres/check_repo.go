package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/checkflow/internal/domain/checks"
	"github.com/bryanwahyu/checkflow/internal/infra/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS paper_checks (
  id             TEXT PRIMARY KEY,
  status         TEXT NOT NULL,
  check_number   TEXT NOT NULL,
  amount         NUMERIC(18,2) NOT NULL,
  payee_name     TEXT NOT NULL,
  account_number TEXT NOT NULL,
  anomaly_count  INTEGER NOT NULL DEFAULT 0,
  created_at     TIMESTAMPTZ NOT NULL,
  updated_at     TIMESTAMPTZ NOT NULL,
  document       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_paper_checks_status ON paper_checks (status);
CREATE INDEX IF NOT EXISTS idx_paper_checks_updated ON paper_checks (updated_at);`

// CheckRepository mirrors check records into PostgreSQL.
type CheckRepository struct{ db *sql.DB }

func NewCheckRepository(db *sql.DB) *CheckRepository { return &CheckRepository{db: db} }

func (r *CheckRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Save insert/update check record
func (r *CheckRepository) Save(ctx context.Context, c *checks.Check) error {
	const q = `
INSERT INTO paper_checks
(id, status, check_number, amount, payee_name, account_number,
 anomaly_count, created_at, updated_at, document)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 check_number = EXCLUDED.check_number,
 amount = EXCLUDED.amount,
 payee_name = EXCLUDED.payee_name,
 account_number = EXCLUDED.account_number,
 anomaly_count = EXCLUDED.anomaly_count,
 updated_at = EXCLUDED.updated_at,
 document = EXCLUDED.document;`

	row, err := db.Encode(c)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q,
		row.ID, row.Status, row.CheckNumber, row.Amount, row.PayeeName, row.AccountNumber,
		row.AnomalyCount, row.CreatedAt, row.UpdatedAt, string(row.Document),
	); err != nil {
		return fmt.Errorf("save check %s: %w", c.ID, err)
	}
	return nil
}

func (r *CheckRepository) Delete(ctx context.Context, id checks.CheckID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM paper_checks WHERE id = $1`, string(id))
	return err
}

// LoadAll returns every mirrored record, oldest update first.
func (r *CheckRepository) LoadAll(ctx context.Context) ([]*checks.Check, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document FROM paper_checks ORDER BY updated_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*checks.Check
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		c, err := db.Decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
