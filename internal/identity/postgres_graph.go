package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/transit-fraud/internal/models"
)

// PostgresGraph answers the household pattern with one join per call.
type PostgresGraph struct {
	pool *pgxpool.Pool
}

func NewPostgresGraph(pool *pgxpool.Pool) *PostgresGraph {
	return &PostgresGraph{pool: pool}
}

const ringPathsQuery = `
	SELECT
		o.id, o.is_suspect,
		p.id, p.first_name, p.last_name,
		a.id, a.address,
		q.id, q.first_name, q.last_name,
		r.id, r.is_suspect
	FROM cards o
	JOIN owns op     ON op.card_id = o.id
	JOIN persons p   ON p.id = op.person_id
	JOIN resides pr  ON pr.person_id = p.id
	JOIN addresses a ON a.id = pr.address_id
	JOIN resides qr  ON qr.address_id = a.id AND qr.person_id <> p.id
	JOIN persons q   ON q.id = qr.person_id
	JOIN owns qo     ON qo.person_id = q.id
	JOIN cards r     ON r.id = qo.card_id
	WHERE o.id = $1
	ORDER BY p.id, a.id, q.id, r.id`

func (g *PostgresGraph) RingPaths(ctx context.Context, cardID int64) ([]Path, error) {
	rows, err := g.pool.Query(ctx, ringPathsQuery, cardID)
	if err != nil {
		return nil, fmt.Errorf("PostgresGraph.RingPaths - query failed: %w", err)
	}
	defer rows.Close()

	var out []Path
	for rows.Next() {
		var p Path
		if err := rows.Scan(
			&p.SeedCard.ID, &p.SeedCard.IsSuspect,
			&p.Owner.ID, &p.Owner.FirstName, &p.Owner.LastName,
			&p.Address.ID, &p.Address.Address,
			&p.Other.ID, &p.Other.FirstName, &p.Other.LastName,
			&p.OtherCard.ID, &p.OtherCard.IsSuspect,
		); err != nil {
			return nil, fmt.Errorf("PostgresGraph.RingPaths - failed to scan row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PostgresGraph.RingPaths - error iterating rows: %w", err)
	}
	return out, nil
}

const coOwnedQuery = `
	SELECT DISTINCT p.id, p.first_name, p.last_name, c.id, c.is_suspect
	FROM owns op
	JOIN persons p ON p.id = op.person_id
	JOIN owns oc   ON oc.person_id = p.id AND oc.card_id <> op.card_id
	JOIN cards c   ON c.id = oc.card_id
	WHERE op.card_id = $1
	ORDER BY p.id, c.id`

func (g *PostgresGraph) CoOwned(ctx context.Context, cardID int64) ([]models.LinkedCard, error) {
	rows, err := g.pool.Query(ctx, coOwnedQuery, cardID)
	if err != nil {
		return nil, fmt.Errorf("PostgresGraph.CoOwned - query failed: %w", err)
	}
	defer rows.Close()

	var out []models.LinkedCard
	for rows.Next() {
		var c models.LinkedCard
		if err := rows.Scan(&c.PersonID, &c.FirstName, &c.LastName, &c.CardID, &c.IsSuspect); err != nil {
			return nil, fmt.Errorf("PostgresGraph.CoOwned - failed to scan row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PostgresGraph.CoOwned - error iterating rows: %w", err)
	}
	return out, nil
}
