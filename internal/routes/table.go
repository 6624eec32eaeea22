package routes

import (
	"sync"

	"github.com/example/transit-fraud/internal/models"
)

type pair struct{ from, to int64 }

// Table is the in-memory feasibility table. Lookups take a read lock; a
// rebuild solves off-lock and swaps the whole map under the write lock, so a
// reader sees either the old table or the new one.
type Table struct {
	mu     sync.RWMutex
	routes map[pair]models.ShortestRoute
}

func NewTable() *Table {
	return &Table{routes: make(map[pair]models.ShortestRoute)}
}

// Lookup returns the route from -> to. ok is false when no route is known,
// which callers must treat as "feasibility unknown".
func (t *Table) Lookup(from, to int64) (models.ShortestRoute, bool) {
	t.mu.RLock()
	r, ok := t.routes[pair{from, to}]
	t.mu.RUnlock()
	return r, ok
}

// Rebuild solves the graph and replaces the table. On a config error the
// current table is kept.
func (t *Table) Rebuild(stations []models.Station, edges []models.Edge) ([]models.ShortestRoute, error) {
	solved, err := Solve(stations, edges)
	if err != nil {
		return nil, err
	}
	t.Load(solved)
	return solved, nil
}

// Load replaces the table with routes solved elsewhere, e.g. read back from
// the ledger at start-up.
func (t *Table) Load(routes []models.ShortestRoute) {
	next := make(map[pair]models.ShortestRoute, len(routes))
	for _, r := range routes {
		next[pair{r.From, r.To}] = r
	}
	t.mu.Lock()
	t.routes = next
	t.mu.Unlock()
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}
