package capture

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/checkflow/internal/domain/checks"
)

// Placeholders substituted for fields neither tier resolved.
const (
	PlaceholderCheckNumber   = "000000000"
	PlaceholderAmountInWords = "Zéro"
	PlaceholderPayee         = "Unknown"
	PlaceholderBankCode      = "000"
	PlaceholderBranchCode    = "000"
	PlaceholderAccount       = "0000000000000000"
	PlaceholderRIBKey        = "00"
	DefaultCurrency          = "EUR"
)

// Source records which tier produced a field.
type Source string

const (
	SourceDevice      Source = "device"
	SourceOCR         Source = "ocr"
	SourcePlaceholder Source = "placeholder"
)

// Fields is the outcome of extraction for one event. Amount is nil until
// resolved so that a device-reported zero still counts as resolved.
type Fields struct {
	CheckNumber   string
	Amount        *decimal.Decimal
	AmountInWords string
	PayeeName     string
	PayeeID       string
	IssuerName    string
	IssuerAddress string
	IssuerPhone   string
	BankCode      string
	BranchCode    string
	AccountNumber string
	RoutingNumber string
	RIBKey        string
	Date          *time.Time
	Memo          string
	Currency      string

	Sources map[string]Source
}

// Field names used in Sources and in placeholder anomalies.
const (
	FieldCheckNumber   = "checkNumber"
	FieldAmount        = "amount"
	FieldAmountInWords = "amountInWords"
	FieldPayee         = "payeeName"
	FieldBankCode      = "bankCode"
	FieldBranchCode    = "branchCode"
	FieldAccountNumber = "accountNumber"
	FieldRIBKey        = "ribKey"
	FieldDate          = "date"
)

func (f *Fields) mark(field string, src Source) {
	if f.Sources == nil {
		f.Sources = make(map[string]Source)
	}
	f.Sources[field] = src
}

// FromDevice fills the fields the scanner reported itself.
func FromDevice(e Event) Fields {
	var f Fields
	if e.ChequeNumber != "" {
		f.CheckNumber = e.ChequeNumber
		f.mark(FieldCheckNumber, SourceDevice)
	}
	if e.Amount != "" {
		if d, ok := ParseDeviceAmount(e.Amount); ok {
			f.Amount = &d
			f.mark(FieldAmount, SourceDevice)
		}
	}
	if e.CMC7 != "" {
		if rl, ok := DecodeCMC7(e.CMC7); ok {
			f.BankCode = rl.BankCode
			f.BranchCode = rl.BranchCode
			f.AccountNumber = rl.AccountNumber
			f.RIBKey = rl.Key
			f.RoutingNumber = rl.Digits
			for _, k := range []string{FieldBankCode, FieldBranchCode, FieldAccountNumber, FieldRIBKey} {
				f.mark(k, SourceDevice)
			}
		}
	}
	if e.Date != "" {
		if t, ok := parseDeviceDate(e.Date); ok {
			f.Date = &t
			f.mark(FieldDate, SourceDevice)
		}
	}
	if v := strings.TrimSpace(e.PayeeName); v != "" {
		f.PayeeName = v
		f.mark(FieldPayee, SourceDevice)
	}
	f.PayeeID = e.PayeeID
	f.IssuerName = e.IssuerName
	f.IssuerAddress = e.IssuerAddress
	f.IssuerPhone = e.IssuerPhone
	f.Memo = e.Memo
	return f
}

func parseDeviceDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Missing lists the OCR-resolvable fields that are still unset.
func (f *Fields) Missing() []string {
	var out []string
	if f.CheckNumber == "" {
		out = append(out, FieldCheckNumber)
	}
	if f.Amount == nil {
		out = append(out, FieldAmount)
	}
	if f.AmountInWords == "" {
		out = append(out, FieldAmountInWords)
	}
	if f.PayeeName == "" {
		out = append(out, FieldPayee)
	}
	if f.BankCode == "" {
		out = append(out, FieldBankCode)
	}
	if f.BranchCode == "" {
		out = append(out, FieldBranchCode)
	}
	if f.AccountNumber == "" {
		out = append(out, FieldAccountNumber)
	}
	if f.RIBKey == "" {
		out = append(out, FieldRIBKey)
	}
	return out
}

var ocrRules = map[string]Rules{
	FieldCheckNumber:   CheckNumberRules,
	FieldAmount:        AmountRules,
	FieldAmountInWords: AmountInWordsRules,
	FieldPayee:         PayeeRules,
	FieldBankCode:      BankCodeRules,
	FieldBranchCode:    BranchCodeRules,
	FieldAccountNumber: AccountNumberRules,
	FieldRIBKey:        RIBKeyRules,
}

// FromText runs each field's rule cascade over OCR text, only for fields
// that are still unset.
func (f *Fields) FromText(text string) {
	for _, field := range f.Missing() {
		v, _, ok := ocrRules[field].Match(text)
		if !ok {
			continue
		}
		switch field {
		case FieldCheckNumber:
			f.CheckNumber = v
		case FieldAmount:
			d, ok := parseAmount(v)
			if !ok {
				continue
			}
			f.Amount = &d
		case FieldAmountInWords:
			f.AmountInWords = v
		case FieldPayee:
			f.PayeeName = v
		case FieldBankCode:
			f.BankCode = v
		case FieldBranchCode:
			f.BranchCode = v
		case FieldAccountNumber:
			f.AccountNumber = v
		case FieldRIBKey:
			f.RIBKey = v
		}
		f.mark(field, SourceOCR)
	}
}

// ApplyPlaceholders substitutes every unresolved field and returns the
// names of the fields that were substituted, in a fixed order.
func (f *Fields) ApplyPlaceholders(now time.Time) []string {
	defaulted := f.Missing()
	for _, field := range defaulted {
		switch field {
		case FieldCheckNumber:
			f.CheckNumber = PlaceholderCheckNumber
		case FieldAmount:
			zero := decimal.Zero
			f.Amount = &zero
		case FieldAmountInWords:
			f.AmountInWords = PlaceholderAmountInWords
		case FieldPayee:
			f.PayeeName = PlaceholderPayee
		case FieldBankCode:
			f.BankCode = PlaceholderBankCode
		case FieldBranchCode:
			f.BranchCode = PlaceholderBranchCode
		case FieldAccountNumber:
			f.AccountNumber = PlaceholderAccount
		case FieldRIBKey:
			f.RIBKey = PlaceholderRIBKey
		}
		f.mark(field, SourcePlaceholder)
	}
	if f.Date == nil {
		t := now
		f.Date = &t
	}
	if f.Currency == "" {
		f.Currency = DefaultCurrency
	}
	return defaulted
}

// Apply copies the resolved fields onto c.
func (f *Fields) Apply(c *checks.Check) {
	c.CheckNumber = f.CheckNumber
	if f.Amount != nil {
		c.Amount = *f.Amount
	}
	c.AmountInWords = f.AmountInWords
	c.Payee = checks.Payee{Name: f.PayeeName, Identifier: f.PayeeID}
	c.Issuer = checks.Issuer{Name: f.IssuerName, Address: f.IssuerAddress, Phone: f.IssuerPhone}
	c.BankDetails = checks.BankDetails{
		BankCode:      f.BankCode,
		BranchCode:    f.BranchCode,
		AccountNumber: f.AccountNumber,
		RoutingNumber: f.RoutingNumber,
		RIBKey:        f.RIBKey,
	}
	if f.Date != nil {
		c.Date = *f.Date
	}
	c.Memo = f.Memo
	c.Currency = f.Currency
}
