package checks

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/checkflow/internal/domain/checks"
)

// ViewState is the active query together with its last computed page.
type ViewState struct {
	Query domain.Query           `json:"query"`
	Page  domain.PaginatedResult `json:"page"`
}

// View returns the active view as of the last mutation.
func (s *Service) View() ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := s.view
	q.Filters = append(domain.Filters(nil), s.view.Filters...)
	return ViewState{Query: q, Page: s.page}
}

// updateView applies fn to the active query and recomputes the page.
func (s *Service) updateView(fn func(q *domain.Query) error) (ViewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.view
	next.Filters = append(domain.Filters(nil), s.view.Filters...)
	if err := fn(&next); err != nil {
		return ViewState{}, err
	}
	page := domain.Apply(s.store.List(next.Scope), next)
	s.view = next
	s.page = page
	q := next
	q.Filters = append(domain.Filters(nil), next.Filters...)
	return ViewState{Query: q, Page: page}, nil
}

// SetFilter replaces any active filter on the same field and returns to page 1.
func (s *Service) SetFilter(f domain.Filter) (ViewState, error) {
	return s.updateView(func(q *domain.Query) error {
		if err := domain.ValidateFilter(f); err != nil {
			return err
		}
		q.Filters = q.Filters.Set(f)
		q.Page = 1
		return nil
	})
}

func (s *Service) RemoveFilter(field string) (ViewState, error) {
	return s.updateView(func(q *domain.Query) error {
		q.Filters = q.Filters.Remove(field)
		q.Page = 1
		return nil
	})
}

func (s *Service) ClearFilters() (ViewState, error) {
	return s.updateView(func(q *domain.Query) error {
		q.Filters = nil
		q.Page = 1
		return nil
	})
}

func (s *Service) SetSort(sort domain.Sort) (ViewState, error) {
	return s.updateView(func(q *domain.Query) error {
		if err := domain.ValidateSort(sort); err != nil {
			return err
		}
		q.Sort = sort
		return nil
	})
}

func (s *Service) SetSearch(term string) (ViewState, error) {
	return s.updateView(func(q *domain.Query) error {
		q.Search = term
		q.Page = 1
		return nil
	})
}

// SetPage moves the view to page n; pages past the end stay empty.
func (s *Service) SetPage(n int) (ViewState, error) {
	return s.updateView(func(q *domain.Query) error {
		if n < 1 {
			return fmt.Errorf("page must be >= 1, got %d", n)
		}
		q.Page = n
		return nil
	})
}

func (s *Service) SetScope(p domain.Partition) (ViewState, error) {
	return s.updateView(func(q *domain.Query) error {
		if !p.Valid() {
			return fmt.Errorf("unknown scope %q", p)
		}
		q.Scope = p
		q.Page = 1
		return nil
	})
}

// Stats summarises the record set for the dashboard.
type Stats struct {
	Total       int                      `json:"total"`
	ByStatus    map[domain.Status]int    `json:"byStatus"`
	ByPartition map[domain.Partition]int `json:"byPartition"`
	Anomalous   int                      `json:"withAnomalies"`
	Recent      []*domain.Check          `json:"recent"`
}

// Stats counts records per status and lists the most recent ones across
// every partition.
func (s *Service) Stats(recent int) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.store.All()
	st := Stats{
		Total: len(all),
		ByStatus: map[domain.Status]int{
			domain.StatusPending:     0,
			domain.StatusNeedsReview: 0,
			domain.StatusValidated:   0,
			domain.StatusRejected:    0,
		},
		ByPartition: map[domain.Partition]int{
			domain.PartitionDefault:   0,
			domain.PartitionValidated: 0,
			domain.PartitionRejected:  0,
		},
	}
	for _, c := range all {
		st.ByStatus[c.Status]++
		st.ByPartition[domain.PartitionOf(c.Status)]++
		if len(c.Anomalies) > 0 {
			st.Anomalous++
		}
	}
	if recent <= 0 {
		recent = 5
	}
	res := domain.Apply(all, domain.Query{Sort: domain.DefaultSort, Page: 1, PageSize: recent})
	st.Recent = res.Data
	return st
}

// RecordFailure stores a failure from outside the service, such as an
// aborted capture event or a dropped scanner command.
func (s *Service) RecordFailure(ctx context.Context, err error) {
	if err == nil {
		return
	}
	s.setLastError(ctx, err)
}

func (s *Service) LastError(ctx context.Context) (string, error) {
	return s.errs.Get(ctx)
}

func (s *Service) ClearLastError(ctx context.Context) error {
	return s.errs.Clear(ctx)
}

func (s *Service) setLastError(ctx context.Context, err error) {
	if serr := s.errs.Set(ctx, err.Error()); serr != nil {
		s.log.WithFields(logrus.Fields{"error": serr}).Warn("recording last error failed")
	}
}

// clearLastError runs after a successful mutation unless a mirror write
// failed during it.
func (s *Service) clearLastError(ctx context.Context) {
	if s.opFailed {
		return
	}
	if err := s.errs.Clear(ctx); err != nil {
		s.log.WithFields(logrus.Fields{"error": err}).Warn("clearing last error failed")
	}
}
