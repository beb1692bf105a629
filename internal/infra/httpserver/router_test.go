package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"

	"github.com/bryanwahyu/checkflow/internal/application"
	appchecks "github.com/bryanwahyu/checkflow/internal/application/checks"
	"github.com/bryanwahyu/checkflow/internal/application/intake"
	domain "github.com/bryanwahyu/checkflow/internal/domain/checks"
	"github.com/bryanwahyu/checkflow/internal/infra/memory"
	"github.com/bryanwahyu/checkflow/internal/metrics"
)

type RouterSuite struct {
	suite.Suite
	svc     *appchecks.Service
	handler http.Handler
	clock   *application.FixedClock
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger, _ := test.NewNullLogger()
	s.clock = &application.FixedClock{T: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svc, err := appchecks.New(memory.NewStore(),
		appchecks.WithErrorSlot(memory.NewErrorSlot()),
		appchecks.WithClock(s.clock),
		appchecks.WithLogger(logger),
		appchecks.WithMetrics(m),
	)
	s.Require().NoError(err)
	s.svc = svc

	x := intake.NewExtractor(intake.WithExtractorClock(s.clock), intake.WithExtractorLogger(logger), intake.WithExtractorMetrics(m))
	w, err := intake.NewWorker(x, svc, 1, logger, m)
	s.Require().NoError(err)

	s.handler = NewRouter(Deps{
		Checks:    svc,
		Intake:    w,
		Log:       logger,
		Metrics:   m,
		Gatherer:  reg,
		Operators: map[string]string{"k-alice": "alice"},
	})
}

func (s *RouterSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer k-alice")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func captureBody(checkNumber string) string {
	img := base64.StdEncoding.EncodeToString([]byte("scanner image bytes"))
	return fmt.Sprintf(`{"image1":%q,"image2":"!!!","chequeNumber":%q,"amount":"10,00","cmc7":"CMC7-00700100000000000000001"}`, img, checkNumber)
}

func (s *RouterSuite) capture(checkNumber string) string {
	s.clock.T = s.clock.T.Add(time.Minute)
	rec := s.do(http.MethodPost, "/v1/captures", captureBody(checkNumber))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Images []any  `json:"images"`
	}
	s.decode(rec, &out)
	s.Equal("pending", out.Status)
	s.Len(out.Images, 1)
	return out.ID
}

type listResponse struct {
	Data []struct {
		ID              string          `json:"id"`
		CheckNumber     string          `json:"checkNumber"`
		DominantAnomaly *domain.Anomaly `json:"dominantAnomaly"`
	} `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

func (s *RouterSuite) TestAuthAndProbes() {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/checks", nil))
	s.Equal(http.StatusUnauthorized, rec.Code)

	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		rec = httptest.NewRecorder()
		s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		s.Equal(http.StatusOK, rec.Code, path)
	}
}

func (s *RouterSuite) TestCaptureAndList() {
	id := s.capture("1234567")
	s.capture("7654321")

	rec := s.do(http.MethodGet, "/v1/checks?search=76543", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var list listResponse
	s.decode(rec, &list)
	s.Equal(int64(1), list.Total)
	s.Equal("7654321", list.Data[0].CheckNumber)
	s.Require().NotNil(list.Data[0].DominantAnomaly)
	s.Equal(domain.SeverityMedium, list.Data[0].DominantAnomaly.Severity)

	rec = s.do(http.MethodGet, "/v1/checks/"+id, "")
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/v1/checks/missing", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestCaptureWithoutImages() {
	rec := s.do(http.MethodPost, "/v1/captures", `{"image1":"***","chequeNumber":"1234567"}`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodPost, "/v1/captures", `{"image1":`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodGet, "/v1/errors/last", "")
	var last map[string]string
	s.decode(rec, &last)
	s.Contains(last["error"], "malformed")

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/v1/errors/last", "").Code)
	rec = s.do(http.MethodGet, "/v1/errors/last", "")
	s.decode(rec, &last)
	s.Empty(last["error"])

	rec = s.do(http.MethodGet, "/v1/checks", "")
	var list listResponse
	s.decode(rec, &list)
	s.Zero(list.Total)
}

func (s *RouterSuite) TestStatusChanges() {
	id := s.capture("1234567")

	rec := s.do(http.MethodPatch, "/v1/checks/"+id+"/status", `{"status":"validated","notes":"looks fine"}`)
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	c, err := s.svc.Get(context.Background(), domain.CheckID(id))
	s.Require().NoError(err)
	s.Equal(domain.StatusValidated, c.Status)
	s.Require().NotNil(c.VerificationDetails)
	s.Equal("alice", c.VerificationDetails.VerifiedBy)
	s.Equal("looks fine", c.VerificationDetails.Notes)

	rec = s.do(http.MethodPatch, "/v1/checks/"+id+"/status", `{"status":"pending"}`)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPatch, "/v1/checks/"+id+"/status", `{"status":"archived"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "checkstatus")

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/v1/checks/"+id, "").Code)
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/v1/checks/"+id, "").Code)
}

func (s *RouterSuite) TestValidateAll() {
	for i := 0; i < 3; i++ {
		s.capture(fmt.Sprintf("%07d", 1000000+i))
	}

	rec := s.do(http.MethodPost, "/v1/checks/validate-all", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var out struct {
		Validated int               `json:"validated"`
		Errors    map[string]string `json:"errors"`
	}
	s.decode(rec, &out)
	s.Equal(3, out.Validated)
	s.Empty(out.Errors)

	rec = s.do(http.MethodPost, "/v1/checks/validate-all", "")
	s.decode(rec, &out)
	s.Zero(out.Validated)

	rec = s.do(http.MethodGet, "/v1/checks?scope=validated&limit=2&page=2", "")
	var list listResponse
	s.decode(rec, &list)
	s.Equal(int64(3), list.Total)
	s.Equal(2, list.TotalPages)
	s.Len(list.Data, 1)
}

func (s *RouterSuite) TestListRejectsBadQueries() {
	for _, q := range []string{
		"filter=colour:eq:red",
		"filter=amount:contains:1",
		"filter=amount",
		"scope=archive",
		"sort=colour",
		"order=up",
		"limit=abc",
		"limit=1000",
	} {
		rec := s.do(http.MethodGet, "/v1/checks?"+q, "")
		s.Equal(http.StatusBadRequest, rec.Code, q)
	}
}

func (s *RouterSuite) TestViewEndpoints() {
	for i := 0; i < 12; i++ {
		s.capture(fmt.Sprintf("%07d", 2000000+i))
	}

	type viewResponse struct {
		Query domain.Query `json:"query"`
		Page  listResponse `json:"page"`
	}
	var view viewResponse

	s.decode(s.do(http.MethodPut, "/v1/view/page", `{"page":2}`), &view)
	s.Equal(2, view.Query.Page)
	s.Len(view.Page.Data, 2)

	rec := s.do(http.MethodPut, "/v1/view/filters", `{"field":"checkNumber","operator":"contains","value":"200001"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &view)
	s.Equal(1, view.Query.Page)
	s.Equal(int64(2), view.Page.Total)

	s.decode(s.do(http.MethodPut, "/v1/view/filters", `{"field":"checkNumber","operator":"eq","value":"2000011"}`), &view)
	s.Len(view.Query.Filters, 1)
	s.Equal(int64(1), view.Page.Total)

	s.decode(s.do(http.MethodDelete, "/v1/view/filters/checkNumber", ""), &view)
	s.Empty(view.Query.Filters)
	s.Equal(int64(12), view.Page.Total)

	s.decode(s.do(http.MethodPut, "/v1/view/sort", `{"field":"checkNumber","order":"asc"}`), &view)
	s.Equal("2000000", view.Page.Data[0].CheckNumber)

	s.decode(s.do(http.MethodPut, "/v1/view/search", `{"search":"2000005"}`), &view)
	s.Equal(int64(1), view.Page.Total)

	s.decode(s.do(http.MethodPut, "/v1/view/scope", `{"scope":"rejected"}`), &view)
	s.Equal(domain.PartitionRejected, view.Query.Scope)
	s.Zero(view.Page.Total)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/v1/view/page", `{"page":0}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/v1/view/scope", `{"scope":"archive"}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/v1/view/filters", `{"field":"amount","operator":"gt","value":"ten"}`).Code)

	s.decode(s.do(http.MethodDelete, "/v1/view/filters", ""), &view)
	s.Empty(view.Query.Filters)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/v1/view", "").Code)
}

func (s *RouterSuite) TestStatsAndScan() {
	s.capture("1234567")

	rec := s.do(http.MethodGet, "/v1/stats?recent=3", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var st struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"byStatus"`
		Recent   []any          `json:"recent"`
	}
	s.decode(rec, &st)
	s.Equal(1, st.Total)
	s.Equal(1, st.ByStatus["pending"])
	s.Len(st.Recent, 1)

	rec = s.do(http.MethodPost, "/v1/scanner/scan", "")
	s.Equal(http.StatusAccepted, rec.Code)
	var scan map[string]any
	s.decode(rec, &scan)
	s.Equal(false, scan["sent"])
}
