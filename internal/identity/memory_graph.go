package identity

import (
	"context"
	"sort"
	"sync"

	"github.com/example/transit-fraud/internal/models"
)

// CardLookup reads a card's current state, suspect flag included.
type CardLookup interface {
	Card(id int64) (models.Card, bool)
}

// MemoryGraph keeps owns/resides relations in maps. Card state is read from
// the ledger through CardLookup so suspect flags are current at query time.
type MemoryGraph struct {
	mu        sync.RWMutex
	cards     CardLookup
	persons   map[int64]models.Person
	addresses map[int64]models.Address
	owners    map[int64]map[int64]struct{} // card -> persons
	owned     map[int64]map[int64]struct{} // person -> cards
	homes     map[int64]map[int64]struct{} // person -> addresses
	residents map[int64]map[int64]struct{} // address -> persons
}

func NewMemoryGraph(cards CardLookup) *MemoryGraph {
	return &MemoryGraph{
		cards:     cards,
		persons:   make(map[int64]models.Person),
		addresses: make(map[int64]models.Address),
		owners:    make(map[int64]map[int64]struct{}),
		owned:     make(map[int64]map[int64]struct{}),
		homes:     make(map[int64]map[int64]struct{}),
		residents: make(map[int64]map[int64]struct{}),
	}
}

func (g *MemoryGraph) AddPerson(p models.Person) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persons[p.ID] = p
}

func (g *MemoryGraph) AddAddress(a models.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addresses[a.ID] = a
}

func (g *MemoryGraph) AddOwns(o models.Owns) {
	g.mu.Lock()
	defer g.mu.Unlock()
	link(g.owners, o.CardID, o.PersonID)
	link(g.owned, o.PersonID, o.CardID)
}

func (g *MemoryGraph) AddResides(r models.Resides) {
	g.mu.Lock()
	defer g.mu.Unlock()
	link(g.homes, r.PersonID, r.AddressID)
	link(g.residents, r.AddressID, r.PersonID)
}

func link(m map[int64]map[int64]struct{}, from, to int64) {
	set, ok := m[from]
	if !ok {
		set = make(map[int64]struct{})
		m[from] = set
	}
	set[to] = struct{}{}
}

func sorted(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *MemoryGraph) card(id int64) models.Card {
	if c, ok := g.cards.Card(id); ok {
		return c
	}
	return models.Card{ID: id}
}

func (g *MemoryGraph) RingPaths(ctx context.Context, cardID int64) ([]Path, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seed := g.card(cardID)
	var out []Path
	for _, ownerID := range sorted(g.owners[cardID]) {
		for _, addrID := range sorted(g.homes[ownerID]) {
			for _, otherID := range sorted(g.residents[addrID]) {
				if otherID == ownerID {
					continue
				}
				for _, otherCard := range sorted(g.owned[otherID]) {
					out = append(out, Path{
						SeedCard:  seed,
						Owner:     g.person(ownerID),
						Address:   g.address(addrID),
						Other:     g.person(otherID),
						OtherCard: g.card(otherCard),
					})
				}
			}
		}
	}
	return out, nil
}

func (g *MemoryGraph) CoOwned(ctx context.Context, cardID int64) ([]models.LinkedCard, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []models.LinkedCard
	for _, ownerID := range sorted(g.owners[cardID]) {
		p := g.person(ownerID)
		for _, id := range sorted(g.owned[ownerID]) {
			if id == cardID {
				continue
			}
			out = append(out, models.LinkedCard{
				PersonID:  p.ID,
				FirstName: p.FirstName,
				LastName:  p.LastName,
				CardID:    id,
				IsSuspect: g.card(id).IsSuspect,
			})
		}
	}
	return out, nil
}

func (g *MemoryGraph) person(id int64) models.Person {
	if p, ok := g.persons[id]; ok {
		return p
	}
	return models.Person{ID: id}
}

func (g *MemoryGraph) address(id int64) models.Address {
	if a, ok := g.addresses[id]; ok {
		return a
	}
	return models.Address{ID: id}
}
