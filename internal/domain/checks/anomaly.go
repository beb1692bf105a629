package checks

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// AnomalyType enum
type AnomalyType string

const (
	AnomalySecurity  AnomalyType = "security"
	AnomalyAmount    AnomalyType = "amount"
	AnomalyDate      AnomalyType = "date"
	AnomalySignature AnomalyType = "signature"
	AnomalyFormat    AnomalyType = "format"
	AnomalyOther     AnomalyType = "other"
)

// Severity enum
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Anomaly is recorded data, never an error.
type Anomaly struct {
	Type     AnomalyType `json:"type"`
	Message  string      `json:"message"`
	Severity Severity    `json:"severity"`
}

var (
	reCheckNumber = regexp.MustCompile(`^\d{6,10}$`)
	reThreeDigits = regexp.MustCompile(`^\d{3}$`)
	reAccount     = regexp.MustCompile(`^\d{16}$`)
	reRIBKey      = regexp.MustCompile(`^\d{2}$`)
)

// fieldRule is one format check run by Validate.
type fieldRule struct {
	value    func(*Check) string
	re       *regexp.Regexp
	severity Severity
	message  string
}

var formatRules = []fieldRule{
	{func(c *Check) string { return c.CheckNumber }, reCheckNumber, SeverityHigh, "check number must be 6 to 10 digits"},
	{func(c *Check) string { return c.BankDetails.BankCode }, reThreeDigits, SeverityMedium, "bank code must be 3 digits"},
	{func(c *Check) string { return c.BankDetails.BranchCode }, reThreeDigits, SeverityMedium, "branch code must be 3 digits"},
	{func(c *Check) string { return c.BankDetails.AccountNumber }, reAccount, SeverityMedium, "account number must be 16 digits"},
	{func(c *Check) string { return c.BankDetails.RIBKey }, reRIBKey, SeverityLow, "RIB key must be 2 digits"},
}

// Validate runs every format and amount check against c and returns the
// violations in a fixed order. It has no side effects.
func Validate(c *Check) []Anomaly {
	var out []Anomaly

	if a, ok := checkFormat(c, formatRules[0]); ok {
		out = append(out, a)
	}
	out = append(out, ValidateAmount(c.Amount)...)
	for _, r := range formatRules[1:] {
		if a, ok := checkFormat(c, r); ok {
			out = append(out, a)
		}
	}
	return out
}

func checkFormat(c *Check, r fieldRule) (Anomaly, bool) {
	v := r.value(c)
	if r.re.MatchString(v) {
		return Anomaly{}, false
	}
	return Anomaly{
		Type:     AnomalyFormat,
		Message:  fmt.Sprintf("%s (got %q)", r.message, v),
		Severity: r.severity,
	}, true
}

// ValidateAmount checks positivity and two-decimal precision.
func ValidateAmount(amount decimal.Decimal) []Anomaly {
	var out []Anomaly
	if !amount.IsPositive() {
		out = append(out, Anomaly{
			Type:     AnomalyAmount,
			Message:  fmt.Sprintf("amount must be greater than zero (got %s)", amount.String()),
			Severity: SeverityHigh,
		})
	}
	if !amount.Equal(amount.Round(2)) {
		out = append(out, Anomaly{
			Type:     AnomalyAmount,
			Message:  fmt.Sprintf("amount has more than 2 decimals (got %s)", amount.String()),
			Severity: SeverityMedium,
		})
	}
	return out
}

// DefaultedField builds the anomaly recorded when a field fell back to its placeholder.
func DefaultedField(field string) Anomaly {
	return Anomaly{
		Type:     AnomalyOther,
		Message:  fmt.Sprintf("%s could not be extracted, placeholder used", field),
		Severity: SeverityLow,
	}
}

// DominantAnomaly returns the most severe anomaly, the first one wins on ties.
func DominantAnomaly(list []Anomaly) (Anomaly, bool) {
	if len(list) == 0 {
		return Anomaly{}, false
	}
	best := list[0]
	for _, a := range list[1:] {
		if a.Severity.Rank() > best.Severity.Rank() {
			best = a
		}
	}
	return best, true
}
