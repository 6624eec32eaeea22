package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/transit-fraud/internal/identity"
	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/storage"
)

// CopyFromer is the part of pgxpool.Pool and pgx.Conn the sink needs.
type CopyFromer interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// PgxSink streams batches with the COPY protocol.
type PgxSink struct {
	db CopyFromer
}

func NewPgxSink(db CopyFromer) *PgxSink { return &PgxSink{db: db} }

func (s *PgxSink) Copy(ctx context.Context, t Table, rows [][]any) (int64, error) {
	return s.db.CopyFrom(ctx, pgx.Identifier{t.String()}, t.ColumnNames(), pgx.CopyFromRows(rows))
}

// MemorySink seeds the in-memory ledger and relationship graph.
type MemorySink struct {
	Store *storage.MemoryStore
	Graph *identity.MemoryGraph

	mu           sync.Mutex
	routesLoaded bool
}

func NewMemorySink(store *storage.MemoryStore, graph *identity.MemoryGraph) *MemorySink {
	return &MemorySink{Store: store, Graph: graph}
}

func (s *MemorySink) Copy(ctx context.Context, t Table, rows [][]any) (int64, error) {
	if t == ShortestRoutes {
		return s.copyRoutes(ctx, rows)
	}
	var n int64
	for _, row := range rows {
		if err := s.apply(ctx, t, columnar{t: t, row: row}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// copyRoutes replaces the stored table with the first batch of a load and
// appends the batches after it.
func (s *MemorySink) copyRoutes(ctx context.Context, rows [][]any) (int64, error) {
	batch := make([]models.ShortestRoute, 0, len(rows))
	for _, row := range rows {
		r := columnar{t: ShortestRoutes, row: row}
		batch = append(batch, models.ShortestRoute{
			From: r.i64("from_station"), To: r.i64("to_station"), Hops: int(r.i64("hops")),
			Distance: r.f64("distance"), Time: r.f64("time"),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.routesLoaded {
		if err := s.Store.ReplaceRoutes(ctx, batch); err != nil {
			return 0, err
		}
		s.routesLoaded = true
		return int64(len(batch)), nil
	}
	s.Store.AddRoutes(batch...)
	return int64(len(batch)), nil
}

func (s *MemorySink) apply(ctx context.Context, t Table, r columnar) error {
	switch t {
	case Stations:
		s.Store.AddStation(models.Station{ID: r.i64("id"), Name: r.str("name"), Latitude: r.f64("latitude"), Longitude: r.f64("longitude")})
	case Edges:
		s.Store.AddEdge(models.Edge{From: r.i64("from_station"), To: r.i64("to_station"), Distance: r.f64("distance"), Time: r.f64("time")})
	case Cards:
		s.Store.AddCard(models.Card{ID: r.i64("id"), IssueDate: r.ts("issue_date"), IssueStation: r.i64("issue_station"), IsSuspect: r.flag("is_suspect")})
	case Rides:
		ride := models.Ride{ID: r.str("id"), CardID: r.i64("card_id"), StationID: r.i64("station_id"), Timestamp: r.ts("ts")}
		return s.Store.SaveRide(ctx, &ride)
	case Persons:
		s.Graph.AddPerson(models.Person{
			ID: r.i64("id"), FirstName: r.str("first_name"), LastName: r.str("last_name"),
			Email: r.str("email"), Phone: r.str("phone"), Age: int(r.i64("age")),
		})
	case Addresses:
		s.Graph.AddAddress(models.Address{ID: r.i64("id"), Address: r.str("address")})
	case Owns:
		s.Graph.AddOwns(models.Owns{PersonID: r.i64("person_id"), CardID: r.i64("card_id")})
	case Resides:
		s.Graph.AddResides(models.Resides{PersonID: r.i64("person_id"), AddressID: r.i64("address_id")})
	default:
		return fmt.Errorf("unknown table %d", t)
	}
	return nil
}

// columnar reads a positional row by column name; NULLs read as zero values.
type columnar struct {
	t   Table
	row []any
}

func (c columnar) get(name string) any {
	if i := c.t.index(name); i >= 0 {
		return c.row[i]
	}
	return nil
}

func (c columnar) i64(name string) int64 {
	v, _ := c.get(name).(int64)
	return v
}

func (c columnar) f64(name string) float64 {
	v, _ := c.get(name).(float64)
	return v
}

func (c columnar) str(name string) string {
	v, _ := c.get(name).(string)
	return v
}

func (c columnar) flag(name string) bool {
	v, _ := c.get(name).(bool)
	return v
}

func (c columnar) ts(name string) time.Time {
	v, _ := c.get(name).(time.Time)
	return v
}
