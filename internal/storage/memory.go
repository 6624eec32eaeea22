package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/transit-fraud/internal/models"
)

// MemoryStore is an in-process Ledger used by tests, the CLI demo mode and
// the server when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	stations map[int64]models.Station
	edges    []models.Edge
	routes   []models.ShortestRoute
	cards    map[int64]models.Card
	rides    map[int64][]models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stations: make(map[int64]models.Station),
		cards:    make(map[int64]models.Card),
		rides:    make(map[int64][]models.Ride),
	}
}

func (m *MemoryStore) AddStation(s models.Station) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stations[s.ID] = s
}

func (m *MemoryStore) AddEdge(e models.Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, e)
}

func (m *MemoryStore) AddCard(c models.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.ID] = c
}

// Snapshot holds the read lock for the duration of fn.
func (m *MemoryStore) Snapshot(ctx context.Context, fn func(View) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(memoryView{m})
}

// memoryView reads without locking; it only lives inside Snapshot.
type memoryView struct{ m *MemoryStore }

func (v memoryView) Card(ctx context.Context, id int64) (models.Card, error) {
	c, ok := v.m.cards[id]
	if !ok {
		return models.Card{}, fmt.Errorf("card %d: %w", id, models.ErrNotFound)
	}
	return c, nil
}

func (v memoryView) StationExists(ctx context.Context, id int64) (bool, error) {
	_, ok := v.m.stations[id]
	return ok, nil
}

func (v memoryView) PriorRides(ctx context.Context, cardID int64, before time.Time) ([]models.Ride, error) {
	var (
		latest time.Time
		out    []models.Ride
	)
	for _, r := range v.m.rides[cardID] {
		if !r.Timestamp.Before(before) {
			continue
		}
		switch {
		case out == nil || r.Timestamp.After(latest):
			latest = r.Timestamp
			out = []models.Ride{r}
		case r.Timestamp.Equal(latest):
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rides[r.CardID] {
		if existing.ID == r.ID {
			return fmt.Errorf("ride %s already recorded", r.ID)
		}
	}
	m.rides[r.CardID] = append(m.rides[r.CardID], *r)
	return nil
}

func (m *MemoryStore) MarkSuspect(ctx context.Context, cardID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[cardID]
	if !ok {
		return false, fmt.Errorf("card %d: %w", cardID, models.ErrNotFound)
	}
	if c.IsSuspect {
		return false, nil
	}
	c.IsSuspect = true
	m.cards[cardID] = c
	return true, nil
}

func (m *MemoryStore) Card(id int64) (models.Card, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cards[id]
	return c, ok
}

func (m *MemoryStore) Station(ctx context.Context, id int64) (models.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stations[id]
	if !ok {
		return models.Station{}, fmt.Errorf("station %d: %w", id, models.ErrNotFound)
	}
	return s, nil
}

func (m *MemoryStore) Stations(ctx context.Context) ([]models.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Station, 0, len(m.stations))
	for _, s := range m.stations {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Edges(ctx context.Context) ([]models.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Edge(nil), m.edges...), nil
}

func (m *MemoryStore) ShortestRoutes(ctx context.Context) ([]models.ShortestRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ShortestRoute(nil), m.routes...), nil
}

func (m *MemoryStore) ReplaceRoutes(ctx context.Context, routes []models.ShortestRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append([]models.ShortestRoute(nil), routes...)
	return nil
}

// AddRoutes appends to the persisted route table.
func (m *MemoryStore) AddRoutes(routes ...models.ShortestRoute) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, routes...)
}

func (m *MemoryStore) History(ctx context.Context, cardID int64, limit int) ([]models.RideView, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rides := append([]models.Ride(nil), m.rides[cardID]...)
	sort.SliceStable(rides, func(i, j int) bool { return rides[i].Timestamp.After(rides[j].Timestamp) })
	if len(rides) > limit {
		rides = rides[:limit]
	}
	out := make([]models.RideView, 0, len(rides))
	for _, r := range rides {
		out = append(out, models.RideView{Ride: r, StationName: m.stations[r.StationID].Name})
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
