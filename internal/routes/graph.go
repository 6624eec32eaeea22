package routes

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/example/transit-fraud/internal/models"
)

// Graph is the station network the solver walks. Parallel edges between the
// same pair are collapsed to the fastest one.
type Graph struct {
	stations []int64
	adj      map[int64][]arc
}

type arc struct {
	to       int64
	time     float64
	distance float64
}

// NewGraph validates stations and edges and builds the adjacency lists.
// Every problem found is reported, joined, and wrapped with models.ErrConfig.
func NewGraph(stations []models.Station, edges []models.Edge) (*Graph, error) {
	var errs []error

	g := &Graph{adj: make(map[int64][]arc, len(stations))}
	seen := make(map[int64]struct{}, len(stations))
	for _, s := range stations {
		if _, dup := seen[s.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate station %d", s.ID))
			continue
		}
		seen[s.ID] = struct{}{}
		g.stations = append(g.stations, s.ID)
	}
	sort.Slice(g.stations, func(i, j int) bool { return g.stations[i] < g.stations[j] })

	best := make(map[[2]int64]arc)
	for i, e := range edges {
		if err := validateEdge(e, seen); err != nil {
			errs = append(errs, fmt.Errorf("edge #%d %d->%d: %w", i, e.From, e.To, err))
			continue
		}
		k := [2]int64{e.From, e.To}
		cand := arc{to: e.To, time: e.Time, distance: e.Distance}
		if cur, ok := best[k]; !ok || cand.time < cur.time || (cand.time == cur.time && cand.distance < cur.distance) {
			best[k] = cand
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", models.ErrConfig, errors.Join(errs...))
	}

	for k, a := range best {
		g.adj[k[0]] = append(g.adj[k[0]], a)
	}
	for from := range g.adj {
		arcs := g.adj[from]
		sort.Slice(arcs, func(i, j int) bool { return arcs[i].to < arcs[j].to })
	}
	return g, nil
}

func validateEdge(e models.Edge, stations map[int64]struct{}) error {
	if _, ok := stations[e.From]; !ok {
		return fmt.Errorf("unknown from station")
	}
	if _, ok := stations[e.To]; !ok {
		return fmt.Errorf("unknown to station")
	}
	if !finite(e.Time) || e.Time < 0 {
		return fmt.Errorf("time must be a non-negative number, got %v", e.Time)
	}
	if !finite(e.Distance) || e.Distance < 0 {
		return fmt.Errorf("distance must be a non-negative number, got %v", e.Distance)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Stations returns the station ids in ascending order.
func (g *Graph) Stations() []int64 { return g.stations }
