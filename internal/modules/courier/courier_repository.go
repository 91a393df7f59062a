package courier

import (
	"context"
	"errors"
	"fmt"

	"parcel-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Candidate is a dispatchable courier with a known position.
type Candidate struct {
	CourierID string
	Latitude  float64
	Longitude float64
}

// RepositoryInterface defines the contract for the courier repository.
type RepositoryInterface interface {
	FindProfile(ctx context.Context, courierID string) (*models.CourierProfile, error)
	// ListAvailable returns verified, available couriers that have reported
	// a position.
	ListAvailable(ctx context.Context) ([]Candidate, error)
	UpdateLocation(ctx context.Context, courierID string, lat, lng float64, available *bool) error
	IncrementDeliveries(ctx context.Context, courierID string) error
}

// Repository implements the RepositoryInterface.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new courier repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

// FindProfile retrieves a courier's profile by user id.
func (r *Repository) FindProfile(ctx context.Context, courierID string) (*models.CourierProfile, error) {
	query := `
		SELECT vehicle_type, plate_number, is_available, is_verified,
		       latitude, longitude, rating, total_deliveries, updated_at
		FROM courier_profiles
		WHERE user_id = $1`

	var p models.CourierProfile
	err := r.db.QueryRow(ctx, query, courierID).Scan(
		&p.VehicleType, &p.PlateNumber, &p.IsAvailable, &p.IsVerified,
		&p.Latitude, &p.Longitude, &p.Rating, &p.TotalDeliveries, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindProfile: %w", err)
	}
	return &p, nil
}

// ListAvailable returns couriers eligible for dispatch.
func (r *Repository) ListAvailable(ctx context.Context) ([]Candidate, error) {
	query := `
		SELECT user_id, latitude, longitude
		FROM courier_profiles
		WHERE is_available = TRUE AND is_verified = TRUE
		  AND latitude IS NOT NULL AND longitude IS NOT NULL`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository.ListAvailable: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.CourierID, &c.Latitude, &c.Longitude); err != nil {
			return nil, fmt.Errorf("repository.ListAvailable.Scan: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateLocation stores a courier's last reported position and, when
// provided, toggles availability.
func (r *Repository) UpdateLocation(ctx context.Context, courierID string, lat, lng float64, available *bool) error {
	query := `
		UPDATE courier_profiles
		SET latitude = $1, longitude = $2,
		    is_available = COALESCE($3, is_available),
		    updated_at = NOW()
		WHERE user_id = $4`

	cmdTag, err := r.db.Exec(ctx, query, lat, lng, available, courierID)
	if err != nil {
		return fmt.Errorf("repository.UpdateLocation: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// IncrementDeliveries bumps the courier's completed delivery count.
func (r *Repository) IncrementDeliveries(ctx context.Context, courierID string) error {
	query := `
		UPDATE courier_profiles
		SET total_deliveries = total_deliveries + 1, updated_at = NOW()
		WHERE user_id = $1`

	cmdTag, err := r.db.Exec(ctx, query, courierID)
	if err != nil {
		return fmt.Errorf("repository.IncrementDeliveries: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
