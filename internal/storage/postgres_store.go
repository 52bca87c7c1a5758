package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CountRides(ctx context.Context, f RideFilter) (int, error) {
	return countRides(ctx, p.db, f)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countRides(ctx context.Context, q queryer, f RideFilter) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rides
		WHERE ($1 = '' OR driver_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))`,
		f.DriverID, pq.Array(statusStrings(f.Statuses)),
	).Scan(&n)
	return n, err
}

// CreateRide serialises creates per driver with a transaction-scoped
// advisory lock, re-counts active rides and inserts.
func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride, maxActive int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.DriverID); err != nil {
		return fmt.Errorf("lock driver %s: %w", r.DriverID, err)
	}
	if maxActive > 0 {
		n, err := countRides(ctx, tx, RideFilter{DriverID: r.DriverID, Statuses: models.ActiveStatuses})
		if err != nil {
			return err
		}
		if n >= maxActive {
			return ErrCapacityExceeded
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	r.Version = 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rides(
			id, rider_id, driver_id, status, origin_lat, origin_lon, dest_lat, dest_lon,
			estimated_distance_km, estimated_duration_min, estimated_fare, surge_multiplier,
			version, created_at, updated_at
		) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.RiderID, r.DriverID, string(r.Status),
		r.Origin.Lat, r.Origin.Lon, r.Destination.Lat, r.Destination.Lon,
		r.EstimatedDistance, r.EstimatedDuration, r.EstimatedFare, r.SurgeMultiplier,
		r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, rider_id, driver_id, status, origin_lat, origin_lon, dest_lat, dest_lon,
		       estimated_distance_km, estimated_duration_min, estimated_fare, surge_multiplier,
		       version, created_at, updated_at, accepted_at, started_at, completed_at, cancelled_at
		FROM rides WHERE id = $1`, id)

	var r models.Ride
	var status string
	var acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.RiderID, &r.DriverID, &status,
		&r.Origin.Lat, &r.Origin.Lon, &r.Destination.Lat, &r.Destination.Lon,
		&r.EstimatedDistance, &r.EstimatedDuration, &r.EstimatedFare, &r.SurgeMultiplier,
		&r.Version, &r.CreatedAt, &r.UpdatedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = models.RideStatus(status)
	r.AcceptedAt = toTimePtr(acceptedAt)
	r.StartedAt = toTimePtr(startedAt)
	r.CompletedAt = toTimePtr(completedAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	return &r, nil
}

// SaveRide takes the same per-driver advisory lock as CreateRide, so an
// accept and a concurrent create for one driver never both pass the recount.
func (p *PostgresStore) SaveRide(ctx context.Context, r *models.Ride, maxActive int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.DriverID); err != nil {
		return fmt.Errorf("lock driver %s: %w", r.DriverID, err)
	}
	var stored string
	var version int
	err = tx.QueryRowContext(ctx, `SELECT status, version FROM rides WHERE id = $1 FOR UPDATE`, r.ID).Scan(&stored, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if version != r.Version {
		return ErrStaleRide
	}
	if maxActive > 0 && becomesActive(models.RideStatus(stored), r.Status) {
		n, err := countRides(ctx, tx, RideFilter{DriverID: r.DriverID, Statuses: models.ActiveStatuses})
		if err != nil {
			return err
		}
		if n >= maxActive {
			return ErrCapacityExceeded
		}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE rides
		SET status = $1, accepted_at = $2, started_at = $3, completed_at = $4, cancelled_at = $5,
		    version = version + 1, updated_at = $6
		WHERE id = $7`,
		string(r.Status), r.AcceptedAt, r.StartedAt, r.CompletedAt, r.CancelledAt,
		now, r.ID,
	)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.Version++
	r.UpdatedAt = now
	return nil
}

func statusStrings(in []models.RideStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
