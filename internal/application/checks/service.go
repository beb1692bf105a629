package checks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/checkflow/internal/application"
	domain "github.com/bryanwahyu/checkflow/internal/domain/checks"
	"github.com/bryanwahyu/checkflow/internal/metrics"
)

// Service owns the live record set. Every mutation takes the write lock,
// changes the store, mirrors it and recomputes the active view before
// releasing; queries share the read lock and see one snapshot.
type Service struct {
	store   domain.Store
	repo    domain.Repository
	errs    domain.ErrorSlot
	scanner domain.CommandSender
	clock   application.Clock
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	view domain.Query
	page domain.PaginatedResult
	// set when a mirror write failed during the current mutation
	opFailed bool
}

type Option func(*Service)

// WithRepository mirrors every mutation to a durable repository.
func WithRepository(r domain.Repository) Option { return func(s *Service) { s.repo = r } }

func WithErrorSlot(e domain.ErrorSlot) Option { return func(s *Service) { s.errs = e } }

// WithCommandSender connects the device command channel.
func WithCommandSender(c domain.CommandSender) Option { return func(s *Service) { s.scanner = c } }

func WithClock(c application.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithPageSize sets the page size of the active view.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.view.PageSize = n
		}
	}
}

// WithDefaultSort sets the initial sort of the active view.
func WithDefaultSort(sort domain.Sort) Option { return func(s *Service) { s.view.Sort = sort } }

func New(store domain.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	s := &Service{
		store: store,
		clock: application.SystemClock{},
		log:   logrus.StandardLogger(),
		view: domain.Query{
			Scope:    domain.PartitionDefault,
			Sort:     domain.DefaultSort,
			Page:     1,
			PageSize: domain.DefaultPageSize,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := domain.ValidateSort(s.view.Sort); err != nil {
		return nil, fmt.Errorf("default sort: %w", err)
	}
	if s.errs == nil {
		return nil, errors.New("error slot is required")
	}
	s.recompute()
	return s, nil
}

// Actor is the operator behind a status change.
type Actor struct {
	Operator string
	Notes    string
}

// Restore loads the mirrored records, oldest first so that the most
// recently updated record ends up at the head of its partition.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	list, err := s.repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading checks: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt.Before(list[j].UpdatedAt) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opFailed = false
	for _, c := range list {
		if !c.Status.Valid() {
			s.log.WithFields(logrus.Fields{"id": c.ID, "status": c.Status}).Warn("skipping restored check with unknown status")
			continue
		}
		s.store.Put(c)
	}
	s.recompute()
	return len(list), nil
}

// Insert adds a freshly built record.
func (s *Service) Insert(ctx context.Context, c *domain.Check) error {
	if c == nil || c.ID == "" {
		return errors.New("check with id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opFailed = false

	s.store.Put(c)
	s.mirrorSave(ctx, c)
	s.recompute()
	s.clearLastError(ctx)

	s.log.WithFields(logrus.Fields{
		"id":        c.ID,
		"check":     c.CheckNumber,
		"anomalies": len(c.Anomalies),
	}).Info("check inserted")
	return nil
}

// UpdateStatus applies one transition. An unknown id is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id domain.CheckID, to domain.Status, by Actor) error {
	if !to.Valid() {
		return &domain.WorkflowError{ID: id, To: to, Err: domain.ErrInvalidStatus}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opFailed = false

	c, ok := s.store.Get(id)
	if !ok {
		s.log.WithField("id", id).Warn("status update for unknown check ignored")
		return nil
	}
	if err := s.transition(ctx, c, to, by); err != nil {
		s.setLastError(ctx, err)
		return err
	}
	s.recompute()
	s.clearLastError(ctx)
	return nil
}

// transition must be called with the write lock held.
func (s *Service) transition(ctx context.Context, c *domain.Check, to domain.Status, by Actor) error {
	from := c.Status
	if !domain.CanTransition(from, to) {
		return &domain.WorkflowError{ID: c.ID, From: from, To: to, Err: domain.ErrInvalidTransition}
	}

	now := s.clock.Now()
	c.Status = to
	c.UpdatedAt = now
	if to == domain.StatusValidated || to == domain.StatusRejected {
		at := now
		c.VerificationDetails = &domain.VerificationDetails{
			VerifiedAt: &at,
			VerifiedBy: by.Operator,
			Notes:      by.Notes,
		}
	}
	s.store.Put(c)
	s.mirrorSave(ctx, c)
	s.metrics.IncTransition(string(from), string(to))

	s.log.WithFields(logrus.Fields{
		"id":       c.ID,
		"from":     from,
		"to":       to,
		"operator": by.Operator,
	}).Info("check status changed")
	return nil
}

// ValidateAll moves every pending and needs_review record to validated.
// Records are handled independently; failures are collected into a
// BatchError and do not stop the batch. The view is recomputed once.
func (s *Service) ValidateAll(ctx context.Context, by Actor) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opFailed = false

	failures := make(map[domain.CheckID]error)
	moved := 0
	for _, c := range s.store.List(domain.PartitionDefault) {
		if c.Status == domain.StatusValidated || c.Status == domain.StatusRejected {
			continue
		}
		if err := s.transition(ctx, c, domain.StatusValidated, by); err != nil {
			failures[c.ID] = err
			continue
		}
		moved++
	}
	s.recompute()

	if len(failures) > 0 {
		err := &domain.BatchError{Failures: failures}
		s.setLastError(ctx, err)
		return moved, err
	}
	if moved > 0 {
		s.clearLastError(ctx)
	}
	return moved, nil
}

// Delete removes a record from every partition. Unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, id domain.CheckID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opFailed = false

	if !s.store.Delete(id) {
		return nil
	}
	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			s.mirrorFailed(ctx, id, err)
		}
	}
	s.recompute()
	s.clearLastError(ctx)
	s.log.WithField("id", id).Info("check deleted")
	return nil
}

// Get looks a record up across all partitions.
func (s *Service) Get(_ context.Context, id domain.CheckID) (*domain.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.store.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// Fetch runs a one-off query without touching the active view.
func (s *Service) Fetch(_ context.Context, q domain.Query) (domain.PaginatedResult, error) {
	if q.Scope == "" {
		q.Scope = domain.PartitionDefault
	}
	if q.Sort.Field == "" && q.Sort.Order == "" {
		q.Sort = domain.DefaultSort
	}
	if q.PageSize <= 0 {
		q.PageSize = s.pageSize()
	}
	if err := q.Validate(); err != nil {
		return domain.PaginatedResult{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Apply(s.store.List(q.Scope), q), nil
}

func (s *Service) pageSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.PageSize
}

// recompute must be called with the write lock held.
func (s *Service) recompute() {
	s.page = domain.Apply(s.store.List(s.view.Scope), s.view)
	if s.metrics != nil {
		s.metrics.SetPartitionSizes(map[string]int{
			string(domain.PartitionDefault):   len(s.store.List(domain.PartitionDefault)),
			string(domain.PartitionValidated): len(s.store.List(domain.PartitionValidated)),
			string(domain.PartitionRejected):  len(s.store.List(domain.PartitionRejected)),
		})
	}
}

func (s *Service) mirrorSave(ctx context.Context, c *domain.Check) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, c); err != nil {
		s.mirrorFailed(ctx, c.ID, err)
	}
}

func (s *Service) mirrorFailed(ctx context.Context, id domain.CheckID, err error) {
	s.opFailed = true
	s.log.WithFields(logrus.Fields{"id": id, "error": err}).Error("persisting check failed")
	s.setLastError(ctx, fmt.Errorf("persisting check %s: %w", id, err))
}
