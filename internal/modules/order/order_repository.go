package order

import (
	"context"
	"errors"
	"fmt"

	"parcel-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for the order repository.
type RepositoryInterface interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	FindByTrackingCode(ctx context.Context, code string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID string, page, limit int) ([]*models.Order, int, error)
	ListByCourier(ctx context.Context, courierID string, page, limit int) ([]*models.Order, int, error)
	ListAll(ctx context.Context, page, limit int) ([]*models.Order, int, error)

	// UpdateStatus applies the transition only if the row still holds the
	// expected status; otherwise ErrConcurrentModification.
	UpdateStatus(ctx context.Context, orderID string, expected, next models.OrderStatus) error
	// AssignCourier sets the courier and moves the order to ASSIGNED under
	// the same compare-and-swap guard.
	AssignCourier(ctx context.Context, orderID, courierID string, expected models.OrderStatus) error
	// OverrideStatus is the unguarded admin bypass path.
	OverrideStatus(ctx context.Context, orderID string, next models.OrderStatus) error
	// UpdateDestination re-points the drop-off and its re-computed pricing,
	// only while the order is still PENDING.
	UpdateDestination(ctx context.Context, orderID string, req models.ChangeDestinationRequest, distanceKm float64, bd *models.PriceBreakdown) error

	AppendTracking(ctx context.Context, entry *models.TrackingEntry) error
	ListTracking(ctx context.Context, orderID string) ([]*models.TrackingEntry, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Repository implements the RepositoryInterface.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new order repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const orderColumns = `id, tracking_code, customer_id, courier_id,
	pickup_lat, pickup_lng, pickup_address,
	destination_lat, destination_lng, destination_address,
	weight_kg, dimensions, fragile, insurance_required, is_express, is_weekend,
	distance_km, base_fare, distance_fee, weight_fee, surcharge_amount, grand_total, currency, eta_minutes,
	status, created_at, updated_at`

// Create inserts a new order into the database.
func (r *Repository) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	query := `
		INSERT INTO orders (tracking_code, customer_id,
			pickup_lat, pickup_lng, pickup_address,
			destination_lat, destination_lng, destination_address,
			weight_kg, dimensions, fragile, insurance_required, is_express, is_weekend,
			distance_km, base_fare, distance_fee, weight_fee, surcharge_amount, grand_total, currency, eta_minutes,
			status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING ` + orderColumns

	row := r.db.QueryRow(ctx, query,
		o.TrackingCode, o.CustomerID,
		o.PickupLat, o.PickupLng, o.PickupAddress,
		o.DestinationLat, o.DestinationLng, o.DestinationAddress,
		o.WeightKg, o.Dimensions, o.Fragile, o.InsuranceRequired, o.IsExpress, o.IsWeekend,
		o.DistanceKm, o.BaseFare, o.DistanceFee, o.WeightFee, o.SurchargeAmount, o.GrandTotal, o.Currency, o.EtaMinutes,
		o.Status,
	)
	created, err := r.scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("repository.Create: %w", err)
	}
	return created, nil
}

// scanOrder is a helper function to scan a row into an Order model.
func (r *Repository) scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.TrackingCode, &o.CustomerID, &o.CourierID,
		&o.PickupLat, &o.PickupLng, &o.PickupAddress,
		&o.DestinationLat, &o.DestinationLng, &o.DestinationAddress,
		&o.WeightKg, &o.Dimensions, &o.Fragile, &o.InsuranceRequired, &o.IsExpress, &o.IsWeekend,
		&o.DistanceKm, &o.BaseFare, &o.DistanceFee, &o.WeightFee, &o.SurchargeAmount, &o.GrandTotal, &o.Currency, &o.EtaMinutes,
		&o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &o, nil
}

// FindByID retrieves a single order by its ID.
func (r *Repository) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := r.scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	return order, nil
}

// FindByTrackingCode retrieves a single order by its public tracking code.
func (r *Repository) FindByTrackingCode(ctx context.Context, code string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tracking_code = $1`
	order, err := r.scanOrder(r.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, fmt.Errorf("repository.FindByTrackingCode: %w", err)
	}
	return order, nil
}

func (r *Repository) list(ctx context.Context, where string, args []any, page, limit int) ([]*models.Order, int, error) {
	offset := (page - 1) * limit
	query := `SELECT ` + orderColumns + ` FROM orders ` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.list.Query: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository.list.scanOrder: %w", err)
		}
		orders = append(orders, order)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.list.Count: %w", err)
	}
	return orders, total, nil
}

// ListByCustomer retrieves all orders placed by a customer with pagination.
func (r *Repository) ListByCustomer(ctx context.Context, customerID string, page, limit int) ([]*models.Order, int, error) {
	return r.list(ctx, `WHERE customer_id = $1`, []any{customerID}, page, limit)
}

// ListByCourier retrieves all orders assigned to a courier with pagination.
func (r *Repository) ListByCourier(ctx context.Context, courierID string, page, limit int) ([]*models.Order, int, error) {
	return r.list(ctx, `WHERE courier_id = $1`, []any{courierID}, page, limit)
}

// ListAll retrieves all orders in the system with pagination (for admin use).
func (r *Repository) ListAll(ctx context.Context, page, limit int) ([]*models.Order, int, error) {
	return r.list(ctx, ``, nil, page, limit)
}

// UpdateStatus performs the optimistic status write: the row is only updated
// if it still holds the status the caller read. Zero rows affected on an
// existing order means another request won the race.
func (r *Repository) UpdateStatus(ctx context.Context, orderID string, expected, next models.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	cmdTag, err := r.db.Exec(ctx, query, next, orderID, expected)
	if err != nil {
		return fmt.Errorf("repository.UpdateStatus: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, orderID)
	}
	return nil
}

// AssignCourier sets the courier and flips the order to ASSIGNED in a single
// guarded write.
func (r *Repository) AssignCourier(ctx context.Context, orderID, courierID string, expected models.OrderStatus) error {
	query := `
		UPDATE orders
		SET courier_id = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`

	cmdTag, err := r.db.Exec(ctx, query, courierID, models.StatusAssigned, orderID, expected)
	if err != nil {
		return fmt.Errorf("repository.AssignCourier: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, orderID)
	}
	return nil
}

// OverrideStatus writes a status without consulting the edge table or the
// current value. Reserved for the audited admin bypass.
func (r *Repository) OverrideStatus(ctx context.Context, orderID string, next models.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`
	cmdTag, err := r.db.Exec(ctx, query, next, orderID)
	if err != nil {
		return fmt.Errorf("repository.OverrideStatus: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateDestination re-points the drop-off while the order is still PENDING.
// The status guard doubles as the optimistic check.
func (r *Repository) UpdateDestination(ctx context.Context, orderID string, req models.ChangeDestinationRequest, distanceKm float64, bd *models.PriceBreakdown) error {
	query := `
		UPDATE orders
		SET destination_lat = $1, destination_lng = $2, destination_address = $3,
		    distance_km = $4, base_fare = $5, distance_fee = $6, weight_fee = $7,
		    surcharge_amount = $8, grand_total = $9, eta_minutes = $10, updated_at = NOW()
		WHERE id = $11 AND status = $12`

	cmdTag, err := r.db.Exec(ctx, query,
		req.DestinationLat, req.DestinationLng, req.DestinationAddress,
		distanceKm, bd.BaseFare, bd.DistanceFee, bd.WeightFee,
		bd.SurchargeAmount, bd.GrandTotal, bd.EtaMinutes,
		orderID, models.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("repository.UpdateDestination: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		if err := r.staleOrMissing(ctx, orderID); errors.Is(err, models.ErrNotFound) {
			return err
		}
		return models.ErrDestinationLocked
	}
	return nil
}

// staleOrMissing distinguishes a lost optimistic write from a missing row.
func (r *Repository) staleOrMissing(ctx context.Context, orderID string) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("repository.staleOrMissing: %w", err)
	}
	return models.ErrConcurrentModification
}

// AppendTracking inserts one tracking entry. Entries are append-only; there
// is deliberately no update or delete.
func (r *Repository) AppendTracking(ctx context.Context, entry *models.TrackingEntry) error {
	query := `
		INSERT INTO tracking_entries (order_id, latitude, longitude, status, speed_kmh, battery_pct, accuracy_m, photo_url, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		entry.OrderID, entry.Latitude, entry.Longitude, entry.Status,
		entry.SpeedKmh, entry.BatteryPct, entry.AccuracyM, entry.PhotoURL, entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.AppendTracking: %w", err)
	}
	return nil
}

// ListTracking returns an order's history in the order it was appended.
func (r *Repository) ListTracking(ctx context.Context, orderID string) ([]*models.TrackingEntry, error) {
	query := `
		SELECT id, order_id, latitude, longitude, status, speed_kmh, battery_pct, accuracy_m, photo_url, note, created_at
		FROM tracking_entries
		WHERE order_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository.ListTracking: %w", err)
	}
	defer rows.Close()

	var entries []*models.TrackingEntry
	for rows.Next() {
		var e models.TrackingEntry
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.Latitude, &e.Longitude, &e.Status,
			&e.SpeedKmh, &e.BatteryPct, &e.AccuracyM, &e.PhotoURL, &e.Note, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("repository.ListTracking.Scan: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// CreateNotification persists one in-app notification row.
func (r *Repository) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, order_id, type, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, n.UserID, n.OrderID, n.Type, n.Message).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.CreateNotification: %w", err)
	}
	return nil
}
