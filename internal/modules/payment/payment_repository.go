package payment

import (
	"context"
	"errors"
	"fmt"

	"parcel-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for the payment repository.
type RepositoryInterface interface {
	// Create inserts a new PENDING payment. A transaction reference
	// collision surfaces as models.ErrConflict so the caller can mint a
	// fresh reference and retry.
	Create(ctx context.Context, p *models.Payment) (*models.Payment, error)
	FindByID(ctx context.Context, paymentID string) (*models.Payment, error)
	FindByCheckoutID(ctx context.Context, checkoutID string) (*models.Payment, error)
	FindLatestByOrder(ctx context.Context, orderID string) (*models.Payment, error)
	ListAll(ctx context.Context, page, limit int) ([]*models.Payment, int, error)

	// HasPaid reports whether the order has a PAID payment.
	HasPaid(ctx context.Context, orderID string) (bool, error)
	// HasActive reports whether the order has a non-terminal payment.
	HasActive(ctx context.Context, orderID string) (bool, error)

	// SetProcessing records the gateway identifiers once the push request
	// was accepted, moving the payment PENDING -> PROCESSING.
	SetProcessing(ctx context.Context, paymentID, checkoutID, merchantID string) error
	// MarkTerminal applies a terminal status only while the payment is
	// still PENDING or PROCESSING; otherwise ErrConcurrentModification.
	// This is what makes callback reconciliation replay-safe.
	MarkTerminal(ctx context.Context, paymentID string, status models.PaymentStatus, receiptID, failureReason *string) error
	// Refund is the explicit PAID -> REFUNDED admin action.
	Refund(ctx context.Context, paymentID string) error

	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Repository implements the RepositoryInterface.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new payment repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const paymentColumns = `id, order_id, tx_ref, checkout_id, merchant_id, receipt_id,
	amount, currency, phone_number, status, failure_reason, created_at, updated_at`

// Create inserts a new payment row.
func (r *Repository) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	query := `
		INSERT INTO payments (order_id, tx_ref, amount, currency, phone_number, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + paymentColumns

	row := r.db.QueryRow(ctx, query, p.OrderID, p.TxRef, p.Amount, p.Currency, p.PhoneNumber, p.Status)
	created, err := r.scanPayment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("repository.Create: %w", err)
	}
	return created, nil
}

func (r *Repository) scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.TxRef, &p.CheckoutID, &p.MerchantID, &p.ReceiptID,
		&p.Amount, &p.Currency, &p.PhoneNumber, &p.Status, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindByID retrieves a single payment by its ID.
func (r *Repository) FindByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := r.scanPayment(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	return p, nil
}

// FindByCheckoutID locates the payment a gateway callback refers to.
func (r *Repository) FindByCheckoutID(ctx context.Context, checkoutID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE checkout_id = $1`
	p, err := r.scanPayment(r.db.QueryRow(ctx, query, checkoutID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("repository.FindByCheckoutID: %w", err)
	}
	return p, nil
}

// FindLatestByOrder returns the most recent payment attempt for an order.
func (r *Repository) FindLatestByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`
	p, err := r.scanPayment(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("repository.FindLatestByOrder: %w", err)
	}
	return p, nil
}

// ListAll retrieves all payments with pagination (for admin use).
func (r *Repository) ListAll(ctx context.Context, page, limit int) ([]*models.Payment, int, error) {
	offset := (page - 1) * limit
	query := `SELECT ` + paymentColumns + ` FROM payments ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.ListAll.Query: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository.ListAll.scan: %w", err)
		}
		payments = append(payments, p)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.ListAll.Count: %w", err)
	}
	return payments, total, nil
}

// HasPaid reports whether the order has a PAID payment.
func (r *Repository) HasPaid(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status = $2)`,
		orderID, models.PaymentPaid,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository.HasPaid: %w", err)
	}
	return exists, nil
}

// HasActive reports whether a non-terminal payment exists for the order.
func (r *Repository) HasActive(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status IN ($2, $3))`,
		orderID, models.PaymentPending, models.PaymentProcessing,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository.HasActive: %w", err)
	}
	return exists, nil
}

// SetProcessing records the gateway handles on a still-PENDING payment.
func (r *Repository) SetProcessing(ctx context.Context, paymentID, checkoutID, merchantID string) error {
	query := `
		UPDATE payments
		SET checkout_id = $1, merchant_id = $2, status = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`

	cmdTag, err := r.db.Exec(ctx, query, checkoutID, merchantID, models.PaymentProcessing, paymentID, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("repository.SetProcessing: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrConcurrentModification
	}
	return nil
}

// MarkTerminal applies PAID/FAILED/CANCELLED under the guard that the payment
// is still in flight. A lost race means someone else already finalized it.
func (r *Repository) MarkTerminal(ctx context.Context, paymentID string, status models.PaymentStatus, receiptID, failureReason *string) error {
	query := `
		UPDATE payments
		SET status = $1, receipt_id = COALESCE($2, receipt_id), failure_reason = $3, updated_at = NOW()
		WHERE id = $4 AND status IN ($5, $6)`

	cmdTag, err := r.db.Exec(ctx, query, status, receiptID, failureReason, paymentID, models.PaymentPending, models.PaymentProcessing)
	if err != nil {
		return fmt.Errorf("repository.MarkTerminal: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrConcurrentModification
	}
	return nil
}

// Refund moves a PAID payment to REFUNDED.
func (r *Repository) Refund(ctx context.Context, paymentID string) error {
	query := `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	cmdTag, err := r.db.Exec(ctx, query, models.PaymentRefunded, paymentID, models.PaymentPaid)
	if err != nil {
		return fmt.Errorf("repository.Refund: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrConcurrentModification
	}
	return nil
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
