package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/transit-fraud/internal/cardlock"
	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/observability"
	"github.com/example/transit-fraud/internal/routes"
	"github.com/example/transit-fraud/internal/storage"
)

// Notifier receives anomaly records, e.g. the kafka producer or the
// websocket alert hub.
type Notifier interface {
	Notify(ctx context.Context, a models.Anomaly) error
}

type Linker interface {
	Link(ctx context.Context, cardID int64) (models.Ring, error)
}

// Service is the clone detector. It keeps no per-card state: rides and
// suspect flags live in the Ledger, routes in the shared Table.
type Service struct {
	Table     *routes.Table
	Ledger    storage.Ledger
	Locks     cardlock.Locker // optional; nil means no per-card serialisation
	Linker    Linker          // optional; attaches the suspect ring to anomalies
	Notifiers map[string]Notifier
	Logger    *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func validate(sw models.Swipe) error {
	var errs []error
	if sw.CardID <= 0 {
		errs = append(errs, fmt.Errorf("card_id must be positive"))
	}
	if sw.StationID <= 0 {
		errs = append(errs, fmt.Errorf("station_id must be positive"))
	}
	if sw.Timestamp.IsZero() {
		errs = append(errs, fmt.Errorf("timestamp is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// CheckSwipe decides whether the swipe is reachable from the card's latest
// earlier ride. The new ride is expected to be persisted by the caller.
// Timestamps are rounded to the microsecond the ledger stores.
func (s *Service) CheckSwipe(ctx context.Context, sw models.Swipe) (models.CheckResult, error) {
	if err := validate(sw); err != nil {
		return models.CheckResult{}, err
	}
	sw.Timestamp = normalize(sw.Timestamp)

	unlock, err := s.lock(ctx, sw.CardID)
	if err != nil {
		return models.CheckResult{}, err
	}
	res, err := s.check(ctx, sw)
	if err == nil && res.Status == models.StatusAnomaly {
		if err = s.markSuspect(ctx, sw.CardID); err == nil {
			s.notify(ctx, *res.Anomaly)
		}
	}
	unlock()
	if err != nil {
		return models.CheckResult{}, err
	}
	s.link(ctx, &res)
	return res, nil
}

// RecordSwipe persists the swipe as a new ride and checks it, both under the
// card lock so concurrent swipes of one card see each other. An anomaly flags
// the card and notifies only once the ride is saved. A failed flag after the
// save is logged and the verdict still returned.
func (s *Service) RecordSwipe(ctx context.Context, sw models.Swipe) (models.Ride, models.CheckResult, error) {
	if err := validate(sw); err != nil {
		return models.Ride{}, models.CheckResult{}, err
	}
	sw.Timestamp = normalize(sw.Timestamp)

	unlock, err := s.lock(ctx, sw.CardID)
	if err != nil {
		return models.Ride{}, models.CheckResult{}, err
	}
	res, err := s.check(ctx, sw)
	if err != nil {
		unlock()
		return models.Ride{}, models.CheckResult{}, err
	}
	ride := models.Ride{ID: uuid.NewString(), CardID: sw.CardID, StationID: sw.StationID, Timestamp: sw.Timestamp}
	if err := s.Ledger.SaveRide(ctx, &ride); err != nil {
		unlock()
		return models.Ride{}, models.CheckResult{}, fmt.Errorf("save ride: %w: %w", models.ErrDependency, err)
	}
	if res.Status == models.StatusAnomaly {
		if err := s.markSuspect(ctx, sw.CardID); err != nil {
			s.logger().Error("card not flagged", "card_id", sw.CardID, "ride_id", ride.ID, "error", err)
		}
		s.notify(ctx, *res.Anomaly)
	}
	unlock()
	s.link(ctx, &res)
	return ride, res, nil
}

// normalize drops the precision the ledger cannot store, so a ride saved
// from a swipe never sorts before the swipe itself.
func normalize(ts time.Time) time.Time {
	return ts.UTC().Round(time.Microsecond)
}

func (s *Service) markSuspect(ctx context.Context, cardID int64) error {
	flipped, err := s.Ledger.MarkSuspect(ctx, cardID)
	if err != nil {
		return fmt.Errorf("mark suspect: %w: %w", models.ErrDependency, err)
	}
	if flipped {
		observability.SuspectsTotal.Inc()
	}
	return nil
}

func (s *Service) lock(ctx context.Context, cardID int64) (func(), error) {
	if s.Locks == nil {
		return func() {}, nil
	}
	unlock, err := s.Locks.Lock(ctx, cardID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("card lock: %w: %w", models.ErrDependency, err)
	}
	return unlock, nil
}

func (s *Service) check(ctx context.Context, sw models.Swipe) (models.CheckResult, error) {
	start := time.Now()

	var prior []models.Ride
	err := s.Ledger.Snapshot(ctx, func(v storage.View) error {
		if _, err := v.Card(ctx, sw.CardID); err != nil {
			return err
		}
		ok, err := v.StationExists(ctx, sw.StationID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("station %d: %w", sw.StationID, models.ErrNotFound)
		}
		prior, err = v.PriorRides(ctx, sw.CardID, sw.Timestamp)
		return err
	})
	switch {
	case errors.Is(err, models.ErrNotFound):
		return models.CheckResult{}, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	case err != nil:
		return models.CheckResult{}, fmt.Errorf("ledger snapshot: %w: %w", models.ErrDependency, err)
	}

	res, err := s.decide(sw, prior)
	if err != nil {
		return models.CheckResult{}, err
	}

	observability.ChecksTotal.WithLabelValues(string(res.Status)).Inc()
	observability.CheckLatency.Observe(time.Since(start).Seconds())
	return res, nil
}

// decide applies the feasibility rule to the swipe and the rides found at
// the latest earlier timestamp.
func (s *Service) decide(sw models.Swipe, prior []models.Ride) (models.CheckResult, error) {
	res := models.CheckResult{Detail: models.CheckDetail{
		CardID:       sw.CardID,
		ToStation:    sw.StationID,
		NewTimestamp: sw.Timestamp,
	}}

	switch len(prior) {
	case 0:
		res.Status = models.StatusPass
		res.Detail.Reason = models.ReasonNoPriorRide
		return res, nil
	case 1:
	default:
		res.Status = models.StatusPass
		res.Detail.Reason = models.ReasonAmbiguousPriorRide
		return res, nil
	}

	prev := prior[0]
	prevTS := prev.Timestamp.UTC()
	res.Detail.FromStation = prev.StationID
	res.Detail.PrevTimestamp = &prevTS

	elapsed := sw.Timestamp.Sub(prevTS).Seconds()
	if elapsed < 0 {
		return models.CheckResult{}, fmt.Errorf("%w: swipe at %s precedes prior ride at %s", models.ErrInvalidInput, sw.Timestamp, prevTS)
	}
	res.Detail.Elapsed = elapsed

	if prev.StationID == sw.StationID {
		res.Status = models.StatusPass
		res.Detail.Reason = models.ReasonSameStation
		return res, nil
	}

	route, ok := s.Table.Lookup(prev.StationID, sw.StationID)
	if !ok {
		res.Status = models.StatusUnknown
		res.Detail.Reason = models.ReasonNoRoute
		s.logger().Warn("no route in feasibility table",
			"card_id", sw.CardID, "from_station", prev.StationID, "to_station", sw.StationID)
		return res, nil
	}
	res.Detail.RequiredMinimum = route.Time

	if elapsed >= route.Time {
		res.Status = models.StatusPass
		res.Detail.Reason = models.ReasonFeasible
		return res, nil
	}

	res.Status = models.StatusAnomaly
	res.Detail.Reason = models.ReasonImpossibleTravel
	res.Anomaly = &models.Anomaly{
		CardID:          sw.CardID,
		FromStation:     prev.StationID,
		ToStation:       sw.StationID,
		Elapsed:         elapsed,
		RequiredMinimum: route.Time,
		PrevTimestamp:   prevTS,
		NewTimestamp:    sw.Timestamp,
	}
	return res, nil
}

func (s *Service) notify(ctx context.Context, a models.Anomaly) {
	s.logger().Warn("impossible travel detected",
		"card_id", a.CardID,
		"from_station", a.FromStation,
		"to_station", a.ToStation,
		"elapsed_s", a.Elapsed,
		"required_s", a.RequiredMinimum,
	)
	for name, n := range s.Notifiers {
		if err := n.Notify(ctx, a); err != nil {
			observability.NotifyErrors.WithLabelValues(name).Inc()
			s.logger().Error("anomaly notification failed", "notifier", name, "card_id", a.CardID, "error", err)
		}
	}
}

// link attaches the suspect ring to an anomaly. A linker failure leaves the
// verdict intact.
func (s *Service) link(ctx context.Context, res *models.CheckResult) {
	if s.Linker == nil || res.Status != models.StatusAnomaly {
		return
	}
	ring, err := s.Linker.Link(ctx, res.Detail.CardID)
	if err != nil {
		s.logger().Error("identity linkage failed", "card_id", res.Detail.CardID, "error", err)
		return
	}
	observability.RingNodes.Observe(float64(len(ring.Nodes)))
	res.Ring = &ring
}
