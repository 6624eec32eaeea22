package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/observability"
)

// Solve rebuilds the feasibility table from the ledger's station graph and
// persists the result. A malformed graph leaves the current table in place.
func (s *Service) Solve(ctx context.Context) ([]models.ShortestRoute, error) {
	start := time.Now()

	stations, err := s.Ledger.Stations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stations: %w: %w", models.ErrDependency, err)
	}
	edges, err := s.Ledger.Edges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w: %w", models.ErrDependency, err)
	}

	solved, err := s.Table.Rebuild(stations, edges)
	if err != nil {
		return nil, err
	}
	observability.SolveDuration.Observe(time.Since(start).Seconds())
	observability.TableRoutes.Set(float64(len(solved)))

	if err := s.Ledger.ReplaceRoutes(ctx, solved); err != nil {
		return nil, fmt.Errorf("persist routes: %w: %w", models.ErrDependency, err)
	}
	s.logger().Info("feasibility table rebuilt",
		"stations", len(stations), "edges", len(edges), "routes", len(solved),
		"duration_ms", time.Since(start).Milliseconds())
	return solved, nil
}

// WarmTable loads the routes persisted by an earlier solve, solving afresh
// when there are none.
func (s *Service) WarmTable(ctx context.Context) error {
	persisted, err := s.Ledger.ShortestRoutes(ctx)
	if err != nil {
		return fmt.Errorf("load routes: %w: %w", models.ErrDependency, err)
	}
	if len(persisted) > 0 {
		s.Table.Load(persisted)
		observability.TableRoutes.Set(float64(len(persisted)))
		s.logger().Info("feasibility table loaded", "routes", len(persisted))
		return nil
	}
	_, err = s.Solve(ctx)
	if errors.Is(err, models.ErrConfig) {
		return fmt.Errorf("station graph rejected: %w", err)
	}
	return err
}
