package httpserver

import (
	"net/http"
	"strconv"

	appchecks "github.com/bryanwahyu/checkflow/internal/application/checks"
	domain "github.com/bryanwahyu/checkflow/internal/domain/checks"
	"github.com/bryanwahyu/checkflow/internal/middleware"
)

// checkView is a record plus its most severe anomaly, for list badges.
type checkView struct {
	*domain.Check
	DominantAnomaly *domain.Anomaly `json:"dominantAnomaly,omitempty"`
}

func newCheckView(c *domain.Check) checkView {
	v := checkView{Check: c}
	if a, ok := domain.DominantAnomaly(c.Anomalies); ok {
		v.DominantAnomaly = &a
	}
	return v
}

type pageView struct {
	Data       []checkView `json:"data"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	Total      int64       `json:"totalItems"`
	TotalPages int         `json:"totalPages"`
}

func newPageView(p domain.PaginatedResult) pageView {
	data := make([]checkView, 0, len(p.Data))
	for _, c := range p.Data {
		data = append(data, newCheckView(c))
	}
	return pageView{Data: data, Page: p.Page, PageSize: p.PageSize, Total: p.Total, TotalPages: p.TotalPages}
}

type viewStateView struct {
	Query domain.Query `json:"query"`
	Page  pageView     `json:"page"`
}

func newViewStateView(st appchecks.ViewState) viewStateView {
	q := st.Query
	if q.Filters == nil {
		q.Filters = domain.Filters{}
	}
	return viewStateView{Query: q, Page: newPageView(st.Page)}
}

type statsView struct {
	appchecks.Stats
	Recent []checkView `json:"recent"`
}

func newStatsView(st appchecks.Stats) statsView {
	recent := make([]checkView, 0, len(st.Recent))
	for _, c := range st.Recent {
		recent = append(recent, newCheckView(c))
	}
	return statsView{Stats: st, Recent: recent}
}

type listParams struct {
	Scope string `validate:"omitempty,partition"`
	Sort  string `validate:"omitempty,checkfield"`
	Order string `validate:"omitempty,oneof=asc desc"`
	Limit int    `validate:"gte=0,lte=100"`
}

// parseListQuery reads the one-off query of GET /v1/checks.
func parseListQuery(req *http.Request) (domain.Query, error) {
	v := req.URL.Query()
	p := listParams{
		Scope: v.Get("scope"),
		Sort:  v.Get("sort"),
		Order: v.Get("order"),
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Query{}, badRequest(err)
		}
		p.Limit = n
	}
	if err := middleware.Validate(p); err != nil {
		return domain.Query{}, err
	}

	q := domain.Query{
		Scope:    domain.Partition(p.Scope),
		Search:   middleware.SanitizeString(v.Get("search")),
		Page:     domain.ParsePage(v.Get("page")),
		PageSize: p.Limit,
	}
	for _, raw := range v["filter"] {
		f, err := domain.ParseFilter(raw)
		if err != nil {
			return domain.Query{}, badRequest(err)
		}
		q.Filters = q.Filters.Set(f)
	}
	if p.Sort != "" || p.Order != "" {
		q.Sort = domain.Sort{Field: p.Sort, Order: domain.SortOrder(p.Order)}
		if q.Sort.Order == "" {
			q.Sort.Order = domain.SortAsc
		}
		if q.Sort.Field == "" {
			q.Sort.Field = domain.DefaultSort.Field
		}
	}
	return q, nil
}
