package checks

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPageSize is used when a query carries no page size.
const DefaultPageSize = 10

// Operator enum
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
)

type Filter struct {
	Field string   `json:"field"`
	Op    Operator `json:"operator"`
	Value string   `json:"value"`
}

// Filters holds at most one filter per field.
type Filters []Filter

// Set returns a copy of f where nf replaces any filter on the same field.
func (f Filters) Set(nf Filter) Filters {
	out := f.Remove(nf.Field)
	return append(out, nf)
}

// Remove returns a copy of f without the filter on field.
func (f Filters) Remove(field string) Filters {
	out := make(Filters, 0, len(f))
	for _, x := range f {
		if x.Field != field {
			out = append(out, x)
		}
	}
	return out
}

func (f Filters) Get(field string) (Filter, bool) {
	for _, x := range f {
		if x.Field == field {
			return x, true
		}
	}
	return Filter{}, false
}

// SortOrder enum
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type Sort struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// DefaultSort lists the newest records first.
var DefaultSort = Sort{Field: "createdAt", Order: SortDesc}

// Query is the full description of one page of a partition.
type Query struct {
	Scope    Partition `json:"scope"`
	Search   string    `json:"search,omitempty"`
	Filters  Filters   `json:"filters"`
	Sort     Sort      `json:"sort"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindTime
)

type fieldDef struct {
	kind fieldKind
	str  func(*Check) string
	num  func(*Check) decimal.Decimal
	at   func(*Check) time.Time
}

func strField(fn func(*Check) string) fieldDef { return fieldDef{kind: kindString, str: fn} }
func numField(fn func(*Check) decimal.Decimal) fieldDef {
	return fieldDef{kind: kindNumber, num: fn}
}
func timeField(fn func(*Check) time.Time) fieldDef { return fieldDef{kind: kindTime, at: fn} }

var fields = map[string]fieldDef{
	"id":            strField(func(c *Check) string { return string(c.ID) }),
	"status":        strField(func(c *Check) string { return string(c.Status) }),
	"checkNumber":   strField(func(c *Check) string { return c.CheckNumber }),
	"amountInWords": strField(func(c *Check) string { return c.AmountInWords }),
	"payeeName":     strField(func(c *Check) string { return c.Payee.Name }),
	"issuerName":    strField(func(c *Check) string { return c.Issuer.Name }),
	"currency":      strField(func(c *Check) string { return c.Currency }),
	"memo":          strField(func(c *Check) string { return c.Memo }),
	"bankCode":      strField(func(c *Check) string { return c.BankDetails.BankCode }),
	"branchCode":    strField(func(c *Check) string { return c.BankDetails.BranchCode }),
	"accountNumber": strField(func(c *Check) string { return c.BankDetails.AccountNumber }),
	"ribKey":        strField(func(c *Check) string { return c.BankDetails.RIBKey }),
	"bankName":      strField(func(c *Check) string { return c.BankDetails.BankName }),
	"amount":        numField(func(c *Check) decimal.Decimal { return c.Amount }),
	"anomalyCount": numField(func(c *Check) decimal.Decimal {
		return decimal.NewFromInt(int64(len(c.Anomalies)))
	}),
	"date":      timeField(func(c *Check) time.Time { return c.Date }),
	"createdAt": timeField(func(c *Check) time.Time { return c.CreatedAt }),
	"updatedAt": timeField(func(c *Check) time.Time { return c.UpdatedAt }),
}

// KnownField reports whether name can be filtered or sorted on.
func KnownField(name string) bool {
	_, ok := fields[name]
	return ok
}

// FieldNames lists the filterable fields in alphabetical order.
func FieldNames() []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidateFilter checks that f names a known field, a supported operator
// and a value the field can be compared against.
func ValidateFilter(f Filter) error {
	def, ok := fields[f.Field]
	if !ok {
		return fmt.Errorf("unknown filter field %q", f.Field)
	}
	switch f.Op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
	case OpContains:
		if def.kind != kindString {
			return fmt.Errorf("operator contains is only supported on text fields, not %q", f.Field)
		}
	default:
		return fmt.Errorf("unknown filter operator %q", f.Op)
	}
	switch def.kind {
	case kindNumber:
		if _, err := decimal.NewFromString(f.Value); err != nil {
			return fmt.Errorf("filter %s: %q is not a number", f.Field, f.Value)
		}
	case kindTime:
		if _, err := parseTime(f.Value); err != nil {
			return fmt.Errorf("filter %s: %w", f.Field, err)
		}
	}
	return nil
}

// ValidateSort checks the sort field and order; an empty field keeps placement order.
func ValidateSort(s Sort) error {
	if s.Field != "" && !KnownField(s.Field) {
		return fmt.Errorf("unknown sort field %q", s.Field)
	}
	if s.Order != SortAsc && s.Order != SortDesc {
		return fmt.Errorf("unknown sort order %q", s.Order)
	}
	return nil
}

// Validate checks every filter and the sort of q.
func (q Query) Validate() error {
	if q.Scope != "" && !q.Scope.Valid() {
		return fmt.Errorf("unknown scope %q", q.Scope)
	}
	for _, f := range q.Filters {
		if err := ValidateFilter(f); err != nil {
			return err
		}
	}
	return ValidateSort(q.Sort)
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%q is not a RFC 3339 time or a YYYY-MM-DD date", v)
}

// Apply runs search, filters, sort and pagination over records, in that
// order. records must already be restricted to the query scope and are
// not modified. Total is counted before the page is sliced; a page past
// the end is empty.
func Apply(records []*Check, q Query) PaginatedResult {
	matched := make([]*Check, 0, len(records))
	search := strings.ToLower(strings.TrimSpace(q.Search))
	for _, c := range records {
		if search != "" && !matchesSearch(c, search) {
			continue
		}
		if !matchesFilters(c, q.Filters) {
			continue
		}
		matched = append(matched, c)
	}

	sortChecks(matched, q.Sort)

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(matched)

	// ceil(total/size) without overflow
	pages := total / size
	if total%size != 0 {
		pages++
	}

	data := []*Check{}
	if page-1 < pages {
		start := (page - 1) * size
		data = matched[start : start+min(size, total-start)]
	}

	return PaginatedResult{
		Data:       data,
		Page:       page,
		PageSize:   size,
		Total:      int64(total),
		TotalPages: pages,
	}
}

func matchesSearch(c *Check, term string) bool {
	for _, v := range []string{c.CheckNumber, c.Payee.Name, c.Issuer.Name, c.BankDetails.AccountNumber} {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

func matchesFilters(c *Check, filters Filters) bool {
	for _, f := range filters {
		if !matchFilter(c, f) {
			return false
		}
	}
	return true
}

func matchFilter(c *Check, f Filter) bool {
	def, ok := fields[f.Field]
	if !ok {
		return false
	}
	switch def.kind {
	case kindString:
		v := def.str(c)
		if f.Op == OpContains {
			return strings.Contains(strings.ToLower(v), strings.ToLower(f.Value))
		}
		return compare(strings.Compare(v, f.Value), f.Op)
	case kindNumber:
		want, err := decimal.NewFromString(f.Value)
		if err != nil {
			return false
		}
		return compare(def.num(c).Cmp(want), f.Op)
	case kindTime:
		want, err := parseTime(f.Value)
		if err != nil {
			return false
		}
		return compare(def.at(c).Compare(want), f.Op)
	}
	return false
}

func compare(cmp int, op Operator) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNeq:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func sortChecks(list []*Check, s Sort) {
	def, ok := fields[s.Field]
	if !ok {
		return
	}
	cmp := func(a, b *Check) int {
		switch def.kind {
		case kindNumber:
			return def.num(a).Cmp(def.num(b))
		case kindTime:
			return def.at(a).Compare(def.at(b))
		default:
			return strings.Compare(def.str(a), def.str(b))
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if s.Order == SortDesc {
			return cmp(list[i], list[j]) > 0
		}
		return cmp(list[i], list[j]) < 0
	})
}

// ParseOperator accepts operator names as sent by clients.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpContains:
		return op, nil
	}
	return "", fmt.Errorf("unknown filter operator %q", s)
}

// ParseFilter parses the "field:op:value" form used in query strings.
// The value may itself contain colons.
func ParseFilter(raw string) (Filter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return Filter{}, fmt.Errorf("filter %q: want field:operator:value", raw)
	}
	op, err := ParseOperator(parts[1])
	if err != nil {
		return Filter{}, err
	}
	f := Filter{Field: parts[0], Op: op, Value: parts[2]}
	if err := ValidateFilter(f); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// ParsePage parses a 1-based page number, falling back to 1.
func ParsePage(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
