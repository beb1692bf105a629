package memory

import (
	"sort"
	"sync"

	"github.com/bryanwahyu/checkflow/internal/domain/checks"
)

type entry struct {
	check *checks.Check
	seq   uint64
}

// Store keeps every record once, keyed by id. Partitions are derived from
// status at read time and ordered by placement, most recent first.
type Store struct {
	mu      sync.RWMutex
	records map[checks.CheckID]entry
	seq     uint64
}

func NewStore() *Store {
	return &Store{records: make(map[checks.CheckID]entry)}
}

// Put inserts or replaces c and moves it to the head of its partition.
func (s *Store) Put(c *checks.Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records[c.ID] = entry{check: c.Clone(), seq: s.seq}
}

func (s *Store) Get(id checks.CheckID) (*checks.Check, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return e.check.Clone(), true
}

// Delete reports whether a record was removed.
func (s *Store) Delete(id checks.CheckID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

func (s *Store) List(p checks.Partition) []*checks.Check {
	return s.collect(func(c *checks.Check) bool { return checks.PartitionOf(c.Status) == p })
}

func (s *Store) All() []*checks.Check {
	return s.collect(func(*checks.Check) bool { return true })
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) collect(keep func(*checks.Check) bool) []*checks.Check {
	s.mu.RLock()
	list := make([]entry, 0, len(s.records))
	for _, e := range s.records {
		if keep(e.check) {
			list = append(list, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq > list[j].seq })
	out := make([]*checks.Check, 0, len(list))
	for _, e := range list {
		out = append(out, e.check.Clone())
	}
	return out
}
