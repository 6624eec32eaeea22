package identity_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/example/transit-fraud/internal/identity"
	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/storage"
)

type failingGraph struct{}

func (failingGraph) RingPaths(ctx context.Context, cardID int64) ([]identity.Path, error) {
	return nil, errors.New("connection reset")
}

func (failingGraph) CoOwned(ctx context.Context, cardID int64) ([]models.LinkedCard, error) {
	return nil, errors.New("connection reset")
}

func nodeIDs(r models.Ring) []string {
	out := make([]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		out = append(out, n.ID)
	}
	return out
}

var _ = Describe("Linker", func() {
	var (
		ctx    context.Context
		ledger *storage.MemoryStore
		graph  *identity.MemoryGraph
		linker *identity.Linker
	)

	BeforeEach(func() {
		ctx = context.Background()
		ledger = storage.NewMemoryStore()
		graph = identity.NewMemoryGraph(ledger)
		linker = identity.NewLinker(graph, nil)
	})

	Context("household with a suspect co-resident", func() {
		BeforeEach(func() {
			// ARRANGE
			ledger.AddCard(models.Card{ID: 5, IsSuspect: true})
			ledger.AddCard(models.Card{ID: 7, IsSuspect: true})
			graph.AddPerson(models.Person{ID: 1, FirstName: "Ada", LastName: "Byron"})
			graph.AddPerson(models.Person{ID: 2, FirstName: "Tom", LastName: "Kilburn"})
			graph.AddAddress(models.Address{ID: 1, Address: "12 Upper Street"})
			graph.AddOwns(models.Owns{PersonID: 1, CardID: 5})
			graph.AddOwns(models.Owns{PersonID: 2, CardID: 7})
			graph.AddResides(models.Resides{PersonID: 1, AddressID: 1})
			graph.AddResides(models.Resides{PersonID: 2, AddressID: 1})
		})

		It("should return the owner, the address, the co-resident and both cards", func() {
			// ACT
			ring, err := linker.Link(ctx, 5)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(nodeIDs(ring)).To(ConsistOf("Person1", "Address1", "Person2", "Oyster5", "Oyster7"))
			Expect(ring.Edges).To(ConsistOf(
				models.RingEdge{Source: "Person1", Target: "Oyster5", Kind: models.RelOwns},
				models.RingEdge{Source: "Person1", Target: "Address1", Kind: models.RelResides},
				models.RingEdge{Source: "Person2", Target: "Address1", Kind: models.RelResides},
				models.RingEdge{Source: "Person2", Target: "Oyster7", Kind: models.RelOwns},
			))
			Expect(ring.Nodes).To(ContainElement(models.RingNode{
				ID: "Oyster7", Label: "SUSPECT-Oyster7", Kind: models.KindCard, Suspect: true,
			}))
			Expect(ring.Nodes).To(ContainElement(models.RingNode{
				ID: "Person2", Label: "Tom Kilburn", Kind: models.KindPerson,
			}))
		})

		It("should annotate suspect flags as they are at query time", func() {
			// ARRANGE
			ledger.AddCard(models.Card{ID: 7})

			// ACT
			ring, err := linker.Link(ctx, 5)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(ring.Nodes).To(ContainElement(models.RingNode{
				ID: "Oyster7", Label: "Oyster7", Kind: models.KindCard, Suspect: false,
			}))
		})

		When("the co-resident owns several cards and both share a second address", func() {
			BeforeEach(func() {
				ledger.AddCard(models.Card{ID: 8})
				graph.AddOwns(models.Owns{PersonID: 2, CardID: 8})
				graph.AddAddress(models.Address{ID: 2, Address: "3 Canal Wharf"})
				graph.AddResides(models.Resides{PersonID: 1, AddressID: 2})
				graph.AddResides(models.Resides{PersonID: 2, AddressID: 2})
				// parallel relationship instance
				graph.AddOwns(models.Owns{PersonID: 2, CardID: 7})
			})

			It("should include every card and address without duplicates", func() {
				// ACT
				ring, err := linker.Link(ctx, 5)

				// ASSERT
				Expect(err).NotTo(HaveOccurred())
				Expect(nodeIDs(ring)).To(ConsistOf("Person1", "Person2", "Address1", "Address2", "Oyster5", "Oyster7", "Oyster8"))
				Expect(ring.Edges).To(HaveLen(7))

				seen := map[models.RingEdge]bool{}
				for _, e := range ring.Edges {
					Expect(seen[e]).To(BeFalse(), "duplicate edge %+v", e)
					seen[e] = true
				}
			})
		})
	})

	Context("owner living alone", func() {
		BeforeEach(func() {
			ledger.AddCard(models.Card{ID: 5})
			ledger.AddCard(models.Card{ID: 6})
			graph.AddPerson(models.Person{ID: 1, FirstName: "Ada", LastName: "Byron"})
			graph.AddAddress(models.Address{ID: 1, Address: "12 Upper Street"})
			graph.AddOwns(models.Owns{PersonID: 1, CardID: 5})
			graph.AddOwns(models.Owns{PersonID: 1, CardID: 6})
			graph.AddResides(models.Resides{PersonID: 1, AddressID: 1})
		})

		It("should never link the owner to themself", func() {
			ring, err := linker.Link(ctx, 5)

			Expect(err).NotTo(HaveOccurred())
			Expect(ring.Empty()).To(BeTrue())
			Expect(ring.Nodes).NotTo(BeNil())
			Expect(ring.Edges).NotTo(BeNil())
		})

		It("should list the owner's other cards as co-owned", func() {
			cards, err := linker.CoOwned(ctx, 5)

			Expect(err).NotTo(HaveOccurred())
			Expect(cards).To(Equal([]models.LinkedCard{
				{PersonID: 1, FirstName: "Ada", LastName: "Byron", CardID: 6},
			}))
		})
	})

	Context("card without an owner", func() {
		It("should return an empty ring and no error", func() {
			ring, err := linker.Link(ctx, 42)

			Expect(err).NotTo(HaveOccurred())
			Expect(ring.Empty()).To(BeTrue())
		})
	})

	Context("relationship store failure", func() {
		It("should wrap the error as a dependency failure", func() {
			linker = identity.NewLinker(failingGraph{}, nil)

			_, err := linker.Link(ctx, 5)

			Expect(err).To(MatchError(models.ErrDependency))
		})
	})
})
