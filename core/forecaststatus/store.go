package forecaststatus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/aqforecast/core/events"
	"github.com/kilianp07/aqforecast/internal/eventbus"
)

// Entry is the latest known forecast for one station.
type Entry struct {
	StationID string    `json:"station_id"`
	PM25      float64   `json:"pm25"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	// Stale is set when the last run failed for the station and the
	// values come from an earlier run.
	Stale bool `json:"stale"`
}

type Filter struct {
	Status  string
	MinPM25 float64
}

type Store interface {
	Get(stationID string) (Entry, bool)
	List(Filter) []Entry
	ApplyBatch(events.ForecastBatch)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Entry{}}
}

func (s *MemoryStore) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	return e, ok
}

// ApplyBatch folds a predict run into the store. Stations that did not get a
// fresh forecast keep their previous values and are marked stale.
func (s *MemoryStore) ApplyBatch(b events.ForecastBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range b.Results {
		prev, seen := s.data[r.StationID]
		e := Entry{
			StationID: r.StationID,
			RunID:     b.RunID,
			Status:    r.Status,
			Reason:    r.Reason,
			UpdatedAt: b.Time,
		}
		if r.ValidFrom.IsZero() {
			if seen {
				e.PM25, e.ValidFrom, e.ValidTo = prev.PM25, prev.ValidFrom, prev.ValidTo
			}
			e.Stale = seen
		} else {
			e.PM25, e.ValidFrom, e.ValidTo = r.PM25, r.ValidFrom, r.ValidTo
		}
		s.data[r.StationID] = e
	}
}

func (s *MemoryStore) List(f Filter) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.MinPM25 > 0 && e.PM25 < f.MinPM25 {
			continue
		}
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StationID < res[j].StationID })
	return res
}

// Listen keeps st up to date with ForecastBatch events from bus.
func Listen(ctx context.Context, bus eventbus.EventBus, st Store) <-chan struct{} {
	return eventbus.Consume(ctx, bus, func(ev eventbus.Event) {
		if b, ok := ev.(events.ForecastBatch); ok {
			st.ApplyBatch(b)
		}
	})
}
