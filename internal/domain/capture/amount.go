package capture

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var reDeviceAmount = regexp.MustCompile(`\d+[.,]\d{2}`)

// ParseDeviceAmount takes the first "digits[.,]dd" run of s, e.g. "123,45EUR".
func ParseDeviceAmount(s string) (decimal.Decimal, bool) {
	m := reDeviceAmount.FindString(s)
	if m == "" {
		return decimal.Zero, false
	}
	return parseAmount(m)
}

func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
