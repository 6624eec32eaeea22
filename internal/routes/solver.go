package routes

import (
	"container/heap"

	"github.com/example/transit-fraud/internal/models"
)

// Solve computes the minimum-time route for every ordered pair of connected
// stations. Self pairs are always present; unreachable pairs are left out.
// When several paths share the minimum time the one with fewer hops, then
// the shorter distance, is kept.
func Solve(stations []models.Station, edges []models.Edge) ([]models.ShortestRoute, error) {
	g, err := NewGraph(stations, edges)
	if err != nil {
		return nil, err
	}
	return g.Solve(), nil
}

// Solve runs a single-source search from every station. The output is
// ordered by (from, to).
func (g *Graph) Solve() []models.ShortestRoute {
	out := make([]models.ShortestRoute, 0, len(g.stations))
	for _, src := range g.stations {
		out = append(out, g.from(src)...)
	}
	return out
}

type label struct {
	station  int64
	time     float64
	hops     int
	distance float64
}

func (a label) less(b label) bool {
	if a.time != b.time {
		return a.time < b.time
	}
	if a.hops != b.hops {
		return a.hops < b.hops
	}
	return a.distance < b.distance
}

func (g *Graph) from(src int64) []models.ShortestRoute {
	dist := map[int64]label{src: {station: src}}
	done := make(map[int64]bool)
	pq := &queue{{station: src}}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(label)
		if done[cur.station] {
			continue
		}
		done[cur.station] = true
		for _, a := range g.adj[cur.station] {
			if done[a.to] {
				continue
			}
			next := label{
				station:  a.to,
				time:     cur.time + a.time,
				hops:     cur.hops + 1,
				distance: cur.distance + a.distance,
			}
			if known, ok := dist[a.to]; ok && !next.less(known) {
				continue
			}
			dist[a.to] = next
			heap.Push(pq, next)
		}
	}

	out := make([]models.ShortestRoute, 0, len(dist))
	for _, to := range g.stations {
		l, ok := dist[to]
		if !ok {
			continue
		}
		out = append(out, models.ShortestRoute{From: src, To: to, Hops: l.hops, Distance: l.distance, Time: l.time})
	}
	return out
}

type queue []label

func (q queue) Len() int            { return len(q) }
func (q queue) Less(i, j int) bool  { return q[i].less(q[j]) }
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x interface{}) { *q = append(*q, x.(label)) }
func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
