package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vinetrail/vinetrail-backend/internal/store"
	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/types"
)

var (
	_ store.VenueStore = (*VenueStore)(nil)
	_ store.BrandStore = (*BrandStore)(nil)
)

// VenueStore implements store.VenueStore.
type VenueStore struct {
	db DB
}

func NewVenueStore(db DB) *VenueStore {
	return &VenueStore{db: db}
}

// ListVenues returns every active venue ordered by name.
func (s *VenueStore) ListVenues(ctx context.Context) ([]types.Venue, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, venue_type
		FROM venues
		WHERE active
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("database error listing venues: %w", err)
	}
	defer rows.Close()

	venues := make([]types.Venue, 0)
	for rows.Next() {
		var (
			v    types.Venue
			kind string
		)
		if err := rows.Scan(&v.ID, &v.Name, &kind); err != nil {
			return nil, fmt.Errorf("database error scanning venue: %w", err)
		}
		v.Type = types.VenueType(kind)
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating venues: %w", err)
	}
	return venues, nil
}

// UpsertVenues inserts venues or updates their type, keyed by name.
func (s *VenueStore) UpsertVenues(ctx context.Context, venues []types.Venue) (int, error) {
	count := 0
	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		for _, v := range venues {
			if !v.Type.IsValid() {
				return fmt.Errorf("venue %q has unknown type %q", v.Name, v.Type)
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO venues (name, venue_type)
				VALUES ($1, $2)
				ON CONFLICT (name) DO UPDATE
				SET venue_type = EXCLUDED.venue_type, active = true, updated_at = NOW()`,
				v.Name, string(v.Type))
			if err != nil {
				return fmt.Errorf("failed to upsert venue %q: %w", v.Name, err)
			}
			count += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.GetLogger().Infow("Upserted venues", "count", count)
	return count, nil
}

// BrandStore implements store.BrandStore.
type BrandStore struct {
	db DB
}

func NewBrandStore(db DB) *BrandStore {
	return &BrandStore{db: db}
}

// GetBrand loads a brand by id.
func (s *BrandStore) GetBrand(ctx context.Context, id int64) (*types.Brand, error) {
	var b types.Brand
	err := s.db.QueryRow(ctx, `
		SELECT id, code, name, from_email, public_base_url
		FROM brands
		WHERE id = $1`, id).Scan(&b.ID, &b.Code, &b.Name, &b.FromEmail, &b.PublicBaseURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get brand %d: %w", id, err)
	}
	return &b, nil
}
