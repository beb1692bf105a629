package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/checkflow/internal/domain/checks"
)

// Row is the persisted shape of a check: a few indexed columns next to
// the full JSON document.
type Row struct {
	ID            string
	Status        string
	CheckNumber   string
	Amount        string
	PayeeName     string
	AccountNumber string
	AnomalyCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Document      []byte
}

// Encode flattens c into a Row.
func Encode(c *checks.Check) (Row, error) {
	doc, err := json.Marshal(c)
	if err != nil {
		return Row{}, fmt.Errorf("encode check %s: %w", c.ID, err)
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	return Row{
		ID:            string(c.ID),
		Status:        stringOrDash(string(c.Status)),
		CheckNumber:   stringOrDash(c.CheckNumber),
		Amount:        c.Amount.StringFixed(2),
		PayeeName:     stringOrDash(c.Payee.Name),
		AccountNumber: stringOrDash(c.BankDetails.AccountNumber),
		AnomalyCount:  len(c.Anomalies),
		CreatedAt:     created,
		UpdatedAt:     updated,
		Document:      doc,
	}, nil
}

// Decode restores a check from its JSON document.
func Decode(doc []byte) (*checks.Check, error) {
	var c checks.Check
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("decode check document: %w", err)
	}
	if c.Anomalies == nil {
		c.Anomalies = []checks.Anomaly{}
	}
	return &c, nil
}

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
