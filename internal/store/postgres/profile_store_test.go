package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/prodexio/prodex/internal/profile"
)

func sampleProfile() profile.Profile {
	return profile.Profile{
		ContactName:  "Tanaka Woodworks",
		ActivityArea: "Carpenters",
		Address: profile.Address{
			Prefecture: "Tokyo",
			City:       "Chuo",
			Street:     "1-2-3 Ginza",
			Postal:     "104-0061",
		},
		Coordinates:       &profile.Coordinates{Lon: 139.767, Lat: 35.671},
		CompanyName:       "Tanaka Woodworks LLC",
		ServiceCost:       "from 5000. per visit",
		ReviewsCount:      intPtr(12),
		ProjectsDoneCount: intPtr(24),
		Website:           "https://tanaka.example",
		Email:             "info@tanaka.example",
		ProfileURL:        "https://directory.example/pro/tanaka",
		PhoneNumber:       "+81312345678",
		ProRating:         floatPtr(4.8),
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestProfileStoreUpsertBindsAllColumns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := sampleProfile()

	mock.ExpectExec("INSERT INTO profiles").
		WithArgs(
			rec.ContactName,
			rec.PhoneNumber,
			rec.ActivityArea,
			rec.Address.Prefecture,
			rec.Address.City,
			rec.Address.Street,
			rec.Address.Postal,
			&rec.Coordinates.Lon,
			&rec.Coordinates.Lat,
			rec.CompanyName,
			rec.ServiceCost,
			rec.ReviewsCount,
			rec.ProjectsDoneCount,
			rec.Website,
			rec.Email,
			rec.ProfileURL,
			rec.ProRating,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewProfileStore(mock)
	require.NoError(t, store.Upsert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileStoreUpsertNullsMissingCoordinates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := sampleProfile()
	rec.Coordinates = nil
	rec.ReviewsCount = nil
	rec.ProRating = nil

	var nilFloat *float64
	mock.ExpectExec("INSERT INTO profiles").
		WithArgs(
			rec.ContactName,
			rec.PhoneNumber,
			rec.ActivityArea,
			rec.Address.Prefecture,
			rec.Address.City,
			rec.Address.Street,
			rec.Address.Postal,
			nilFloat,
			nilFloat,
			rec.CompanyName,
			rec.ServiceCost,
			rec.ReviewsCount,
			rec.ProjectsDoneCount,
			rec.Website,
			rec.Email,
			rec.ProfileURL,
			rec.ProRating,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewProfileStore(mock)
	require.NoError(t, store.Upsert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileStoreUpsertWrapsDriverError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO profiles").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	store := NewProfileStore(mock)
	err = store.Upsert(context.Background(), sampleProfile())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Tanaka Woodworks")
	require.NoError(t, mock.ExpectationsWereMet())
}
