package checks

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChecks(n int) []*Check {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*Check, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &Check{
			ID:          CheckID(fmt.Sprintf("id-%02d", i)),
			CheckNumber: fmt.Sprintf("10000%02d", i),
			Amount:      decimal.NewFromInt(int64(i * 10)),
			Payee:       Payee{Name: fmt.Sprintf("Payee %d", i%3)},
			Issuer:      Issuer{Name: "Issuer"},
			BankDetails: BankDetails{AccountNumber: fmt.Sprintf("%016d", i)},
			Status:      StatusPending,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}
	return out
}

func TestApplyPagination(t *testing.T) {
	records := seedChecks(23)
	q := Query{Sort: DefaultSort, PageSize: 10}

	for page, wantLen := range map[int]int{1: 10, 2: 10, 3: 3, 4: 0} {
		q.Page = page
		res := Apply(records, q)
		assert.Len(t, res.Data, wantLen, "page %d", page)
		assert.Equal(t, int64(23), res.Total, "page %d", page)
		assert.Equal(t, 3, res.TotalPages)
		assert.Equal(t, page, res.Page)
	}

	q.Page = 0
	res := Apply(records, q)
	assert.Equal(t, 1, res.Page)
	assert.Len(t, res.Data, 10)
}

func TestApplyHugePageAndSize(t *testing.T) {
	records := seedChecks(23)

	res := Apply(records, Query{Page: math.MaxInt, PageSize: 10})
	assert.Empty(t, res.Data)
	assert.Equal(t, math.MaxInt, res.Page)
	assert.Equal(t, 3, res.TotalPages)

	res = Apply(records, Query{Page: 1, PageSize: math.MaxInt})
	assert.Len(t, res.Data, 23)
	assert.Equal(t, 1, res.TotalPages)

	res = Apply(records, Query{Page: math.MaxInt, PageSize: math.MaxInt})
	assert.Empty(t, res.Data)
	assert.Equal(t, int64(23), res.Total)

	res = Apply(nil, Query{Page: math.MaxInt})
	assert.Empty(t, res.Data)
	assert.Equal(t, 0, res.TotalPages)
}

func TestApplyDefaultsPageSize(t *testing.T) {
	res := Apply(seedChecks(12), Query{Page: 2})
	assert.Equal(t, DefaultPageSize, res.PageSize)
	assert.Len(t, res.Data, 2)
}

func TestApplySearch(t *testing.T) {
	records := seedChecks(10)
	records[4].Payee.Name = "Marie CURIE"

	res := Apply(records, Query{Search: "curie"})
	require.Len(t, res.Data, 1)
	assert.Equal(t, CheckID("id-04"), res.Data[0].ID)

	res = Apply(records, Query{Search: "0000000000000007"})
	require.Len(t, res.Data, 1)
	assert.Equal(t, CheckID("id-07"), res.Data[0].ID)

	res = Apply(records, Query{Search: "1000003"})
	require.Len(t, res.Data, 1)

	res = Apply(records, Query{Search: "nobody"})
	assert.Empty(t, res.Data)
	assert.Equal(t, int64(0), res.Total)
}

func TestApplyFilters(t *testing.T) {
	records := seedChecks(10)
	records[2].Status = StatusNeedsReview

	res := Apply(records, Query{Filters: Filters{{Field: "amount", Op: OpGte, Value: "50"}}})
	assert.Equal(t, int64(5), res.Total)

	res = Apply(records, Query{Filters: Filters{
		{Field: "amount", Op: OpGte, Value: "50"},
		{Field: "payeeName", Op: OpContains, Value: "PAYEE 2"},
	}})
	assert.Equal(t, int64(2), res.Total)

	res = Apply(records, Query{Filters: Filters{{Field: "status", Op: OpNeq, Value: "pending"}}})
	require.Len(t, res.Data, 1)
	assert.Equal(t, CheckID("id-02"), res.Data[0].ID)

	res = Apply(records, Query{Filters: Filters{{Field: "createdAt", Op: OpLt, Value: "2024-01-01T03:00:00Z"}}})
	assert.Equal(t, int64(3), res.Total)
}

func TestApplySort(t *testing.T) {
	records := seedChecks(5)

	res := Apply(records, Query{Sort: Sort{Field: "amount", Order: SortDesc}})
	require.Len(t, res.Data, 5)
	assert.Equal(t, CheckID("id-04"), res.Data[0].ID)
	assert.Equal(t, CheckID("id-00"), res.Data[4].ID)

	res = Apply(records, Query{Sort: Sort{Field: "createdAt", Order: SortAsc}})
	assert.Equal(t, CheckID("id-00"), res.Data[0].ID)

	// payee names cycle 0,1,2 so ties keep input order
	res = Apply(records, Query{Sort: Sort{Field: "payeeName", Order: SortAsc}})
	ids := make([]CheckID, 0, len(res.Data))
	for _, c := range res.Data {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []CheckID{"id-00", "id-03", "id-01", "id-04", "id-02"}, ids)

	assert.Equal(t, CheckID("id-00"), records[0].ID, "input must not be reordered")
}

func TestFiltersSetReplacesSameField(t *testing.T) {
	var f Filters
	f = f.Set(Filter{Field: "status", Op: OpEq, Value: "validated"})
	f = f.Set(Filter{Field: "amount", Op: OpGt, Value: "10"})
	f = f.Set(Filter{Field: "status", Op: OpEq, Value: "rejected"})

	require.Len(t, f, 2)
	got, ok := f.Get("status")
	require.True(t, ok)
	assert.Equal(t, "rejected", got.Value)

	f = f.Remove("status")
	_, ok = f.Get("status")
	assert.False(t, ok)
	assert.Len(t, f, 1)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("createdAt:gte:2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", f.Value)
	assert.Equal(t, OpGte, f.Op)

	_, err = ParseFilter("amount:contains:12")
	assert.Error(t, err)
	_, err = ParseFilter("amount:gt:abc")
	assert.Error(t, err)
	_, err = ParseFilter("unknown:eq:1")
	assert.Error(t, err)
	_, err = ParseFilter("status-eq")
	assert.Error(t, err)
}
