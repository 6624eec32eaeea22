package storage

import (
	"context"
	"time"

	"github.com/example/transit-fraud/internal/models"
)

// View is a consistent point-in-time read of the ledger. Every read made
// through one View belongs to the same snapshot.
type View interface {
	// Card returns models.ErrNotFound (wrapped) for unknown ids.
	Card(ctx context.Context, id int64) (models.Card, error)
	StationExists(ctx context.Context, id int64) (bool, error)
	// PriorRides returns the rides of a card at the latest timestamp strictly
	// before the given instant. More than one ride means a tie.
	PriorRides(ctx context.Context, cardID int64, before time.Time) ([]models.Ride, error)
}

// Ledger is the ride/card store the detector reads from. Rides are appended
// by ingestion; the only write the detector makes is MarkSuspect.
type Ledger interface {
	Snapshot(ctx context.Context, fn func(View) error) error

	SaveRide(ctx context.Context, r *models.Ride) error
	// MarkSuspect sets the card's suspect flag. It reports whether this call
	// flipped it; repeated calls are no-ops.
	MarkSuspect(ctx context.Context, cardID int64) (bool, error)

	Station(ctx context.Context, id int64) (models.Station, error)
	Stations(ctx context.Context) ([]models.Station, error)
	Edges(ctx context.Context) ([]models.Edge, error)
	ShortestRoutes(ctx context.Context) ([]models.ShortestRoute, error)
	ReplaceRoutes(ctx context.Context, routes []models.ShortestRoute) error

	// History lists a card's latest rides, newest first.
	History(ctx context.Context, cardID int64, limit int) ([]models.RideView, error)

	Ping(ctx context.Context) error
	Close() error
}

const DefaultHistoryLimit = 25
