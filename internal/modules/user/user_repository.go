package user

import (
	"context"
	"errors"
	"fmt"

	"parcel-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for the user repository.
type RepositoryInterface interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	FindByID(ctx context.Context, userID string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// EmailByUserID backs the notification directory.
	EmailByUserID(ctx context.Context, userID string) (string, error)
}

// Repository implements the RepositoryInterface.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new user repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

// Create inserts the user and, for couriers, the profile row in one
// transaction.
func (r *Repository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.Create: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO users (email, full_name, phone, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err = tx.QueryRow(ctx, query, u.Email, u.FullName, u.Phone, u.Role, u.PasswordHash).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.ErrEmailTaken
		}
		return nil, fmt.Errorf("repository.Create: %w", err)
	}

	if u.Courier != nil {
		profileQuery := `
			INSERT INTO courier_profiles (user_id, vehicle_type, plate_number, is_available, rating)
			VALUES ($1, $2, $3, TRUE, 5.0)`
		if _, err := tx.Exec(ctx, profileQuery, u.ID, u.Courier.VehicleType, u.Courier.PlateNumber); err != nil {
			return nil, fmt.Errorf("repository.Create: courier profile: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.Create: commit: %w", err)
	}
	return u, nil
}

func (r *Repository) findWhere(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `
		SELECT id, email, full_name, phone, role, password_hash, created_at
		FROM users WHERE ` + where

	var u models.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.FullName, &u.Phone, &u.Role, &u.PasswordHash, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.findWhere: %w", err)
	}

	if u.Role == models.RoleCourier {
		profile, err := r.courierProfile(ctx, u.ID)
		if err == nil {
			u.Courier = profile
		}
	}
	return &u, nil
}

func (r *Repository) courierProfile(ctx context.Context, userID string) (*models.CourierProfile, error) {
	query := `
		SELECT vehicle_type, plate_number, is_available, is_verified,
		       latitude, longitude, rating, total_deliveries, updated_at
		FROM courier_profiles WHERE user_id = $1`

	var p models.CourierProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.VehicleType, &p.PlateNumber, &p.IsAvailable, &p.IsVerified,
		&p.Latitude, &p.Longitude, &p.Rating, &p.TotalDeliveries, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByID retrieves a single user by id.
func (r *Repository) FindByID(ctx context.Context, userID string) (*models.User, error) {
	return r.findWhere(ctx, `id = $1`, userID)
}

// FindByEmail retrieves a single user by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findWhere(ctx, `email = $1`, email)
}

// EmailByUserID resolves a user id to an email address for notifications.
func (r *Repository) EmailByUserID(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrNotFound
		}
		return "", fmt.Errorf("repository.EmailByUserID: %w", err)
	}
	return email, nil
}
