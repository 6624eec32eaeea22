package identity

import "github.com/example/transit-fraud/internal/models"

type nodeKey struct{ kind, id string }

type edgeKey struct{ source, target, kind string }

// ordered is an insertion-ordered set; the first value stored for a key wins.
type ordered[K comparable, V any] struct {
	keys []K
	vals map[K]V
}

func newOrdered[K comparable, V any]() *ordered[K, V] {
	return &ordered[K, V]{vals: make(map[K]V)}
}

func (o *ordered[K, V]) add(k K, v V) {
	if _, ok := o.vals[k]; ok {
		return
	}
	o.keys = append(o.keys, k)
	o.vals[k] = v
}

func (o *ordered[K, V]) values() []V {
	out := make([]V, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.vals[k])
	}
	return out
}

type ringBuilder struct {
	nodes *ordered[nodeKey, models.RingNode]
	edges *ordered[edgeKey, models.RingEdge]
}

func newRingBuilder() *ringBuilder {
	return &ringBuilder{
		nodes: newOrdered[nodeKey, models.RingNode](),
		edges: newOrdered[edgeKey, models.RingEdge](),
	}
}

func (b *ringBuilder) node(id, label, kind string, suspect bool) {
	b.nodes.add(nodeKey{kind, id}, models.RingNode{ID: id, Label: label, Kind: kind, Suspect: suspect})
}

func (b *ringBuilder) edge(source, target, kind string) {
	b.edges.add(edgeKey{source, target, kind}, models.RingEdge{Source: source, Target: target, Kind: kind})
}

func (b *ringBuilder) ring() models.Ring {
	return models.Ring{Nodes: b.nodes.values(), Edges: b.edges.values()}
}
