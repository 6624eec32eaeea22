//go:build integration

package identity_test

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/example/transit-fraud/internal/identity"
	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/storage"
)

var _ = Describe("PostgresGraph", func() {
	var (
		ctx   context.Context
		pool  *pgxpool.Pool
		graph *identity.PostgresGraph
	)

	BeforeEach(func() {
		dsn := os.Getenv("TEST_PG_DSN")
		if dsn == "" {
			Skip("TEST_PG_DSN not set")
		}
		ctx = context.Background()

		store, err := storage.NewPostgresStore(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.ApplyMigrations(ctx, "../../migrations")
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Close()).To(Succeed())

		pool, err = pgxpool.New(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)

		for _, q := range []string{
			`TRUNCATE resides, owns, addresses, persons, rides, cards, shortest_routes, edges, stations`,
			`INSERT INTO cards(id, is_suspect) VALUES (5, false), (6, true), (7, false), (8, false)`,
			`INSERT INTO persons(id, first_name, last_name) VALUES (1, 'Ada', 'Byron'), (2, 'Kit', 'Marlowe'), (3, 'Tom', 'Kyd')`,
			`INSERT INTO addresses(id, address) VALUES (1, '1 Main St'), (2, '9 Side Rd')`,
			`INSERT INTO owns(person_id, card_id) VALUES (1, 5), (1, 7), (2, 6), (3, 8)`,
			`INSERT INTO resides(person_id, address_id) VALUES (1, 1), (2, 1), (3, 2)`,
		} {
			_, err := pool.Exec(ctx, q)
			Expect(err).NotTo(HaveOccurred())
		}
		graph = identity.NewPostgresGraph(pool)
	})

	It("should walk owner, address, co-resident and their card", func() {
		paths, err := graph.RingPaths(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(HaveLen(1))
		Expect(paths[0].Owner.ID).To(Equal(int64(1)))
		Expect(paths[0].Other.ID).To(Equal(int64(2)))
		Expect(paths[0].OtherCard).To(Equal(models.Card{ID: 6, IsSuspect: true}))
	})

	It("should never pair the owner with themselves", func() {
		paths, err := graph.RingPaths(ctx, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(BeEmpty())
	})

	It("should build the ring through the linker", func() {
		ring, err := identity.NewLinker(graph, nil).Link(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodeIDs(ring)).To(ConsistOf("Oyster5", "Person1", "Address1", "Person2", "Oyster6"))
		Expect(ring.Edges).To(HaveLen(4))
	})

	It("should list the owner's other cards", func() {
		cards, err := graph.CoOwned(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(cards).To(Equal([]models.LinkedCard{{PersonID: 1, FirstName: "Ada", LastName: "Byron", CardID: 7}}))
	})
})
