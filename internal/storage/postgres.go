package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/transit-fraud/internal/models"
)

// PostgresStore implements Ledger on the transit schema in
// migrations/001_create_transit.sql.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// Snapshot runs fn inside a read-only repeatable-read transaction.
func (p *PostgresStore) Snapshot(ctx context.Context, fn func(View) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	if err := fn(postgresView{tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type postgresView struct{ tx *sql.Tx }

func (v postgresView) Card(ctx context.Context, id int64) (models.Card, error) {
	var (
		c         models.Card
		issueDate sql.NullTime
		issueSt   sql.NullInt64
	)
	err := v.tx.QueryRowContext(ctx,
		`SELECT id, issue_date, issue_station, is_suspect FROM cards WHERE id = $1`, id).
		Scan(&c.ID, &issueDate, &issueSt, &c.IsSuspect)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Card{}, fmt.Errorf("card %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Card{}, err
	}
	c.IssueDate = issueDate.Time
	c.IssueStation = issueSt.Int64
	return c, nil
}

func (v postgresView) StationExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := v.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM stations WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (v postgresView) PriorRides(ctx context.Context, cardID int64, before time.Time) ([]models.Ride, error) {
	rows, err := v.tx.QueryContext(ctx, `
		SELECT id, card_id, station_id, ts
		FROM rides
		WHERE card_id = $1
		  AND ts = (SELECT max(ts) FROM rides WHERE card_id = $1 AND ts < $2)
		ORDER BY id`, cardID, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ride
	for rows.Next() {
		var r models.Ride
		if err := rows.Scan(&r.ID, &r.CardID, &r.StationID, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SaveRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rides(id, card_id, station_id, ts) VALUES($1,$2,$3,$4)`,
		r.ID, r.CardID, r.StationID, r.Timestamp.UTC())
	return err
}

func (p *PostgresStore) MarkSuspect(ctx context.Context, cardID int64) (bool, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE cards SET is_suspect = TRUE WHERE id = $1 AND NOT is_suspect`, cardID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresStore) Station(ctx context.Context, id int64) (models.Station, error) {
	var s models.Station
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude FROM stations WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Station{}, fmt.Errorf("station %d: %w", id, models.ErrNotFound)
	}
	return s, err
}

func (p *PostgresStore) Stations(ctx context.Context) ([]models.Station, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, latitude, longitude FROM stations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Station
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Edges(ctx context.Context) ([]models.Edge, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT from_station, to_station, distance, time FROM edges`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Edge
	for rows.Next() {
		var e models.Edge
		if err := rows.Scan(&e.From, &e.To, &e.Distance, &e.Time); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ShortestRoutes(ctx context.Context) ([]models.ShortestRoute, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT from_station, to_station, hops, distance, time FROM shortest_routes ORDER BY from_station, to_station`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ShortestRoute
	for rows.Next() {
		var r models.ShortestRoute
		if err := rows.Scan(&r.From, &r.To, &r.Hops, &r.Distance, &r.Time); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceRoutes swaps the persisted table in one transaction using COPY.
func (p *PostgresStore) ReplaceRoutes(ctx context.Context, routes []models.ShortestRoute) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shortest_routes`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("shortest_routes", "from_station", "to_station", "hops", "distance", "time"))
	if err != nil {
		return err
	}
	for _, r := range routes {
		if _, err := stmt.ExecContext(ctx, r.From, r.To, r.Hops, r.Distance, r.Time); err != nil {
			_ = stmt.Close()
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) History(ctx context.Context, cardID int64, limit int) ([]models.RideView, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT r.id, r.card_id, r.station_id, r.ts, COALESCE(s.name, '')
		FROM rides r
		LEFT JOIN stations s ON s.id = r.station_id
		WHERE r.card_id = $1
		ORDER BY r.ts DESC
		LIMIT $2`, cardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RideView
	for rows.Next() {
		var v models.RideView
		if err := rows.Scan(&v.ID, &v.CardID, &v.StationID, &v.Timestamp, &v.StationName); err != nil {
			return nil, err
		}
		v.Timestamp = v.Timestamp.UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }
