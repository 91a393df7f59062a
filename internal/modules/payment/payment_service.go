package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"parcel-dispatch/internal/models"
)

// GatewayInterface is what the reconciliation core needs from the mobile
// money gateway. Implemented in pkg/mpesa.
type GatewayInterface interface {
	InitiatePush(ctx context.Context, amount float64, phone, reference string) (checkoutID, merchantID string, err error)
	QueryStatus(ctx context.Context, checkoutID string) (status string, err error)
}

// OrderFinderInterface is the slice of the order repository the payment
// module needs.
type OrderFinderInterface interface {
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
}

// Notifier delivers best-effort notifications.
type Notifier interface {
	Notify(ctx context.Context, event, recipientID string, payload map[string]string)
}

// Notification events fired by the payment module.
const (
	EventPaymentReceived = "PAYMENT_RECEIVED"
	EventPaymentFailed   = "PAYMENT_FAILED"
)

// txRefAttempts bounds the collision retry when minting a reference.
const txRefAttempts = 3

// ServiceInterface defines the contract for the payment service.
type ServiceInterface interface {
	Initiate(ctx context.Context, orderID, customerID string, req models.InitiatePaymentRequest) (*models.PaymentIntent, error)
	Reconcile(ctx context.Context, res models.CallbackResult) (*models.ReconciliationResult, error)
	Query(ctx context.Context, checkoutID string) (*models.PaymentStatusResponse, error)
	Cancel(ctx context.Context, paymentID, customerID string) error
	Refund(ctx context.Context, paymentID string) (*models.Payment, error)
	GetOrderPayment(ctx context.Context, orderID, actorID string, role models.Role) (*models.Payment, error)
	ListAllPayments(ctx context.Context, page, limit int) ([]*models.Payment, int, error)

	// HasPaid and HasActive are consumed by the order orchestrator to gate
	// assignment and destination changes.
	HasPaid(ctx context.Context, orderID string) (bool, error)
	HasActive(ctx context.Context, orderID string) (bool, error)
}

// Service implements payment initiation and callback reconciliation. Payment
// state is deliberately decoupled from order state: a stuck callback can
// never corrupt the order lifecycle.
type Service struct {
	repo     RepositoryInterface
	orders   OrderFinderInterface
	gateway  GatewayInterface
	notifier Notifier
	now      func() time.Time
}

// NewService creates a new payment service.
func NewService(repo RepositoryInterface, orders OrderFinderInterface, gateway GatewayInterface, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		gateway:  gateway,
		notifier: notifier,
		now:      time.Now,
	}
}

// Initiate creates a PENDING payment pinned to the order's grand total and
// asks the gateway to push the charge to the customer's phone.
func (s *Service) Initiate(ctx context.Context, orderID, customerID string, req models.InitiatePaymentRequest) (*models.PaymentIntent, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.Initiate: %w", err)
	}
	if order.CustomerID != customerID {
		return nil, models.ErrNotFound
	}

	switch order.Status {
	case models.StatusCancelled:
		return nil, models.ErrOrderCancelled
	case models.StatusDelivered:
		return nil, models.ErrOrderDelivered
	}

	paid, err := s.repo.HasPaid(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("service.Initiate: %w", err)
	}
	if paid {
		return nil, models.ErrAlreadyPaid
	}
	active, err := s.repo.HasActive(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("service.Initiate: %w", err)
	}
	if active {
		return nil, models.ErrConflict
	}

	// The amount is copied from the order total at initiation; the gateway
	// is never asked for anything else.
	var payment *models.Payment
	for attempt := 0; attempt < txRefAttempts; attempt++ {
		payment, err = s.repo.Create(ctx, &models.Payment{
			OrderID:     order.ID,
			TxRef:       s.newTxRef(),
			Amount:      order.GrandTotal,
			Currency:    order.Currency,
			PhoneNumber: req.PhoneNumber,
			Status:      models.PaymentPending,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("service.Initiate: %w", err)
		}
	}
	if payment == nil {
		return nil, fmt.Errorf("service.Initiate: could not mint a unique transaction reference: %w", err)
	}

	checkoutID, merchantID, err := s.gateway.InitiatePush(ctx, payment.Amount, payment.PhoneNumber, payment.TxRef)
	if err != nil {
		// The push never reached the customer; close this attempt so a
		// retry can open a fresh one.
		reason := err.Error()
		if markErr := s.repo.MarkTerminal(ctx, payment.ID, models.PaymentFailed, nil, &reason); markErr != nil {
			log.Printf("service.Initiate: could not fail payment %s after gateway error: %v", payment.ID, markErr)
		}
		return nil, fmt.Errorf("service.Initiate: %w", err)
	}

	if err := s.repo.SetProcessing(ctx, payment.ID, checkoutID, merchantID); err != nil {
		// Without the checkout id the callback can never find this row, so
		// the attempt would sit PENDING forever and block any retry. Close
		// it; the customer re-initiates.
		reason := fmt.Sprintf("push accepted but processing update failed: %v", err)
		if markErr := s.repo.MarkTerminal(ctx, payment.ID, models.PaymentFailed, nil, &reason); markErr != nil {
			log.Printf("CRITICAL: payment %s stuck PENDING after accepted push %s: %v", payment.ID, checkoutID, markErr)
		}
		return nil, fmt.Errorf("service.Initiate: %w", err)
	}

	return &models.PaymentIntent{
		PaymentID:  payment.ID,
		TxRef:      payment.TxRef,
		CheckoutID: checkoutID,
		Message:    "Payment request sent. Check your phone to complete the payment.",
	}, nil
}

// Reconcile applies a gateway callback to the matching payment. It is
// idempotent: the gateway delivers callbacks at least once, so a terminal
// payment is returned as-is instead of failing.
func (s *Service) Reconcile(ctx context.Context, res models.CallbackResult) (*models.ReconciliationResult, error) {
	payment, err := s.repo.FindByCheckoutID(ctx, res.CheckoutID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnknownPayment
		}
		return nil, fmt.Errorf("service.Reconcile: %w", err)
	}

	if payment.Status.IsTerminal() {
		return &models.ReconciliationResult{Payment: payment, Replayed: true}, nil
	}

	var markErr error
	if res.Success {
		receipt := res.ReceiptID
		markErr = s.repo.MarkTerminal(ctx, payment.ID, models.PaymentPaid, &receipt, nil)
	} else {
		reason := res.FailureReason
		markErr = s.repo.MarkTerminal(ctx, payment.ID, models.PaymentFailed, nil, &reason)
	}
	if markErr != nil {
		if errors.Is(markErr, models.ErrConcurrentModification) {
			// A racing callback finalized it first; report its outcome.
			settled, err := s.repo.FindByID(ctx, payment.ID)
			if err != nil {
				return nil, fmt.Errorf("service.Reconcile: %w", err)
			}
			return &models.ReconciliationResult{Payment: settled, Replayed: true}, nil
		}
		return nil, fmt.Errorf("service.Reconcile: %w", markErr)
	}

	settled, err := s.repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("service.Reconcile: %w", err)
	}

	order, err := s.orders.FindByID(ctx, settled.OrderID)
	if err == nil {
		if settled.Status == models.PaymentPaid {
			s.record(ctx, order.CustomerID, order.ID, EventPaymentReceived,
				fmt.Sprintf("Payment of %s %.2f for order %s received", settled.Currency, settled.Amount, order.TrackingCode))
		} else {
			s.record(ctx, order.CustomerID, order.ID, EventPaymentFailed,
				fmt.Sprintf("Payment for order %s failed: %s", order.TrackingCode, res.FailureReason))
		}
	}

	return &models.ReconciliationResult{Payment: settled, Replayed: false}, nil
}

// Query reads the gateway's view of a checkout alongside the local record.
// The local record is authoritative: a gateway timeout never mutates it.
func (s *Service) Query(ctx context.Context, checkoutID string) (*models.PaymentStatusResponse, error) {
	payment, err := s.repo.FindByCheckoutID(ctx, checkoutID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnknownPayment
		}
		return nil, fmt.Errorf("service.Query: %w", err)
	}

	gatewayStatus, err := s.gateway.QueryStatus(ctx, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("service.Query: %w: %v", models.ErrGatewayUnavailable, err)
	}

	return &models.PaymentStatusResponse{
		Payment:       payment,
		GatewayStatus: gatewayStatus,
	}, nil
}

// Cancel lets the customer abort an attempt that has not yet completed.
func (s *Service) Cancel(ctx context.Context, paymentID, customerID string) error {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("service.Cancel: %w", err)
	}
	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return fmt.Errorf("service.Cancel: %w", err)
	}
	if order.CustomerID != customerID {
		return models.ErrNotFound
	}
	if payment.Status.IsTerminal() {
		return models.ErrConcurrentModification
	}
	return s.repo.MarkTerminal(ctx, payment.ID, models.PaymentCancelled, nil, nil)
}

// Refund is the explicit admin action taking a PAID payment to REFUNDED.
func (s *Service) Refund(ctx context.Context, paymentID string) (*models.Payment, error) {
	if err := s.repo.Refund(ctx, paymentID); err != nil {
		return nil, fmt.Errorf("service.Refund: %w", err)
	}
	return s.repo.FindByID(ctx, paymentID)
}

// GetOrderPayment returns the latest payment attempt for an order, enforcing
// that customers only see their own.
func (s *Service) GetOrderPayment(ctx context.Context, orderID, actorID string, role models.Role) (*models.Payment, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.GetOrderPayment: %w", err)
	}
	if role != models.RoleAdmin && order.CustomerID != actorID {
		return nil, models.ErrNotFound
	}
	return s.repo.FindLatestByOrder(ctx, orderID)
}

// ListAllPayments lists every payment in the system (admin).
func (s *Service) ListAllPayments(ctx context.Context, page, limit int) ([]*models.Payment, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return s.repo.ListAll(ctx, page, limit)
}

// HasPaid reports whether the order has a PAID payment.
func (s *Service) HasPaid(ctx context.Context, orderID string) (bool, error) {
	return s.repo.HasPaid(ctx, orderID)
}

// HasActive reports whether the order has a payment attempt in flight.
func (s *Service) HasActive(ctx context.Context, orderID string) (bool, error) {
	return s.repo.HasActive(ctx, orderID)
}

func (s *Service) record(ctx context.Context, userID, orderID, event, message string) {
	n := &models.Notification{
		UserID:  userID,
		OrderID: &orderID,
		Type:    event,
		Message: message,
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		log.Printf("service.record: notification insert failed: %v", err)
	}
	s.notifier.Notify(ctx, event, userID, map[string]string{
		"order_id": orderID,
		"message":  message,
	})
}

// newTxRef mints a transaction reference from the current timestamp. The
// unique index on tx_ref catches the rare same-instant collision, which the
// caller retries with a fresh reference.
func (s *Service) newTxRef() string {
	return fmt.Sprintf("PD%s%03d", s.now().UTC().Format("20060102150405"), s.now().UnixNano()%1000)
}
