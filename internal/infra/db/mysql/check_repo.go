package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/checkflow/internal/domain/checks"
	"github.com/bryanwahyu/checkflow/internal/infra/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS paper_checks (
  id             VARCHAR(64)   NOT NULL PRIMARY KEY,
  status         VARCHAR(32)   NOT NULL,
  check_number   VARCHAR(32)   NOT NULL,
  amount         DECIMAL(18,2) NOT NULL,
  payee_name     VARCHAR(255)  NOT NULL,
  account_number VARCHAR(32)   NOT NULL,
  anomaly_count  INT           NOT NULL DEFAULT 0,
  created_at     DATETIME(6)   NOT NULL,
  updated_at     DATETIME(6)   NOT NULL,
  document       JSON          NOT NULL,
  KEY idx_paper_checks_status (status),
  KEY idx_paper_checks_updated (updated_at)
)`

// CheckRepository mirrors check records into MySQL.
type CheckRepository struct {
	db *sql.DB
}

func NewCheckRepository(db *sql.DB) *CheckRepository {
	return &CheckRepository{db: db}
}

// Migrate creates the table when it does not exist yet.
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
VALUES (?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 check_number=VALUES(check_number), amount=VALUES(amount),
 payee_name=VALUES(payee_name), account_number=VALUES(account_number),
 anomaly_count=VALUES(anomaly_count),
 updated_at=VALUES(updated_at), document=VALUES(document);
`
	row, err := db.Encode(c)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		row.ID, row.Status, row.CheckNumber, row.Amount, row.PayeeName, row.AccountNumber,
		row.AnomalyCount, row.CreatedAt, row.UpdatedAt, string(row.Document),
	)
	if err != nil {
		return fmt.Errorf("save check %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes a record; deleting an unknown id is not an error.
func (r *CheckRepository) Delete(ctx context.Context, id checks.CheckID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM paper_checks WHERE id=?`, string(id))
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
