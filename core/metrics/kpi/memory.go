package kpi

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in memory for the lifetime of a run.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[time.Time]*Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[time.Time]*Record{}}
}

// Add merges the record into the hub's daily aggregate.
func (s *MemoryStore) Add(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[r.HubID] == nil {
		s.data[r.HubID] = map[time.Time]*Record{}
	}
	d := Day(r.Date)
	rec := s.data[r.HubID][d]
	if rec == nil {
		rec = &Record{HubID: r.HubID, Date: d}
		s.data[r.HubID][d] = rec
	}
	rec.DeliveredKWh += r.DeliveredKWh
	rec.Sessions += r.Sessions
	return nil
}

// Query returns records between start and end inclusive.
func (s *MemoryStore) Query(hubID string, start, end time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start = Day(start)
	end = Day(end)
	var res []Record
	for d, r := range s.data[hubID] {
		if d.Before(start) || d.After(end) {
			continue
		}
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}
