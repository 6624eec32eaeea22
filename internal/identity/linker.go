package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/example/transit-fraud/internal/models"
)

// Path is one match of card -> owner -> address -> co-resident -> their card.
type Path struct {
	SeedCard  models.Card
	Owner     models.Person
	Address   models.Address
	Other     models.Person
	OtherCard models.Card
}

// Graph is the relationship store the linker walks.
type Graph interface {
	// RingPaths returns every match of the household pattern starting at
	// cardID. Other is never the owner.
	RingPaths(ctx context.Context, cardID int64) ([]Path, error)
	// CoOwned returns the other cards held by the owners of cardID.
	CoOwned(ctx context.Context, cardID int64) ([]models.LinkedCard, error)
}

type Linker struct {
	graph  Graph
	logger *slog.Logger
}

func NewLinker(graph Graph, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{graph: graph, logger: logger.With("component", "identity")}
}

// Link expands a card into its suspect ring. A card without owner, residence
// or co-resident card yields an empty ring.
func (l *Linker) Link(ctx context.Context, cardID int64) (models.Ring, error) {
	paths, err := l.graph.RingPaths(ctx, cardID)
	if err != nil {
		return models.Ring{}, fmt.Errorf("ring paths for card %d: %w: %w", cardID, models.ErrDependency, err)
	}

	b := newRingBuilder()
	for _, p := range paths {
		if p.Other.ID == p.Owner.ID {
			continue
		}
		owner, other := personID(p.Owner.ID), personID(p.Other.ID)
		addr := addressID(p.Address.ID)
		seed, linked := cardNodeID(p.SeedCard.ID), cardNodeID(p.OtherCard.ID)

		b.node(owner, p.Owner.FullName(), models.KindPerson, false)
		b.node(other, p.Other.FullName(), models.KindPerson, false)
		b.node(addr, p.Address.Address, models.KindAddress, false)
		b.node(seed, cardLabel(p.SeedCard), models.KindCard, p.SeedCard.IsSuspect)
		b.node(linked, cardLabel(p.OtherCard), models.KindCard, p.OtherCard.IsSuspect)

		b.edge(other, linked, models.RelOwns)
		b.edge(owner, seed, models.RelOwns)
		b.edge(owner, addr, models.RelResides)
		b.edge(other, addr, models.RelResides)
	}

	ring := b.ring()
	l.logger.Debug("ring linked", "card_id", cardID, "paths", len(paths), "nodes", len(ring.Nodes), "edges", len(ring.Edges))
	return ring, nil
}

func (l *Linker) CoOwned(ctx context.Context, cardID int64) ([]models.LinkedCard, error) {
	cards, err := l.graph.CoOwned(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("co-owned cards for card %d: %w: %w", cardID, models.ErrDependency, err)
	}
	return cards, nil
}

func personID(id int64) string   { return "Person" + strconv.FormatInt(id, 10) }
func addressID(id int64) string  { return "Address" + strconv.FormatInt(id, 10) }
func cardNodeID(id int64) string { return "Oyster" + strconv.FormatInt(id, 10) }

func cardLabel(c models.Card) string {
	if c.IsSuspect {
		return "SUSPECT-" + cardNodeID(c.ID)
	}
	return cardNodeID(c.ID)
}
