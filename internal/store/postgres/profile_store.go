// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prodexio/prodex/internal/profile"
)

// Querier is the subset of pgxpool.Pool the stores need; pgxmock satisfies
// it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProfileStore implements the idempotent profile sink.
//
// Natural-key policy: {contact_name, phone_number}. Two records sharing a
// display name but differing in phone number are kept as distinct documents;
// re-extracting the same pair overwrites in place. The coarser name-only
// policy was rejected because it collides distinct people.
type ProfileStore struct {
	db Querier
}

// NewProfileStore creates a ProfileStore over a pool or transaction.
func NewProfileStore(db Querier) *ProfileStore {
	return &ProfileStore{db: db}
}

// Connect dials Postgres and returns the shared pool.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

const upsertProfileSQL = `
	INSERT INTO profiles (
		contact_name, phone_number, activity_area,
		prefecture, city, street, postal,
		lon, lat,
		company_name, service_cost,
		reviews_count, projects_done_count,
		website, email, profile_url, pro_rating,
		updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now())
	ON CONFLICT (contact_name, phone_number) DO UPDATE SET
		activity_area = EXCLUDED.activity_area,
		prefecture = EXCLUDED.prefecture,
		city = EXCLUDED.city,
		street = EXCLUDED.street,
		postal = EXCLUDED.postal,
		lon = EXCLUDED.lon,
		lat = EXCLUDED.lat,
		company_name = EXCLUDED.company_name,
		service_cost = EXCLUDED.service_cost,
		reviews_count = EXCLUDED.reviews_count,
		projects_done_count = EXCLUDED.projects_done_count,
		website = EXCLUDED.website,
		email = EXCLUDED.email,
		profile_url = EXCLUDED.profile_url,
		pro_rating = EXCLUDED.pro_rating,
		updated_at = now();
`

// Upsert writes or overwrites the document matched by the natural key.
func (s *ProfileStore) Upsert(ctx context.Context, rec profile.Profile) error {
	var lon, lat *float64
	if rec.Coordinates != nil {
		lon = &rec.Coordinates.Lon
		lat = &rec.Coordinates.Lat
	}
	_, err := s.db.Exec(ctx, upsertProfileSQL,
		rec.ContactName,
		rec.PhoneNumber,
		rec.ActivityArea,
		rec.Address.Prefecture,
		rec.Address.City,
		rec.Address.Street,
		rec.Address.Postal,
		lon,
		lat,
		rec.CompanyName,
		rec.ServiceCost,
		rec.ReviewsCount,
		rec.ProjectsDoneCount,
		rec.Website,
		rec.Email,
		rec.ProfileURL,
		rec.ProRating,
	)
	if err != nil {
		return fmt.Errorf("upsert profile %q: %w", rec.ContactName, err)
	}
	return nil
}
