package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"parcel-dispatch/internal/models"
)

// fakeRepo mimics the payment store, including the unique tx_ref index and
// the terminal-write guard.
type fakeRepo struct {
	payments         map[string]*models.Payment
	txRefs           map[string]bool
	notifications    []*models.Notification
	setProcessingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		payments: make(map[string]*models.Payment),
		txRefs:   make(map[string]bool),
	}
}

func (f *fakeRepo) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	if f.txRefs[p.TxRef] {
		return nil, models.ErrConflict
	}
	cp := *p
	cp.ID = fmt.Sprintf("pay-%d", len(f.payments)+1)
	cp.CreatedAt = time.Now()
	f.payments[cp.ID] = &cp
	f.txRefs[cp.TxRef] = true
	out := cp
	return &out, nil
}

func (f *fakeRepo) FindByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) FindByCheckoutID(ctx context.Context, checkoutID string) (*models.Payment, error) {
	for _, p := range f.payments {
		if p.CheckoutID != nil && *p.CheckoutID == checkoutID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) FindLatestByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	var latest *models.Payment
	for _, p := range f.payments {
		if p.OrderID == orderID {
			if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
				latest = p
			}
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeRepo) ListAll(ctx context.Context, page, limit int) ([]*models.Payment, int, error) {
	var out []*models.Payment
	for _, p := range f.payments {
		cp := *p
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (f *fakeRepo) HasPaid(ctx context.Context, orderID string) (bool, error) {
	for _, p := range f.payments {
		if p.OrderID == orderID && p.Status == models.PaymentPaid {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) HasActive(ctx context.Context, orderID string) (bool, error) {
	for _, p := range f.payments {
		if p.OrderID == orderID && !p.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) SetProcessing(ctx context.Context, paymentID, checkoutID, merchantID string) error {
	if f.setProcessingErr != nil {
		return f.setProcessingErr
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return models.ErrNotFound
	}
	if p.Status != models.PaymentPending {
		return models.ErrConcurrentModification
	}
	p.Status = models.PaymentProcessing
	p.CheckoutID = &checkoutID
	p.MerchantID = &merchantID
	return nil
}

func (f *fakeRepo) MarkTerminal(ctx context.Context, paymentID string, status models.PaymentStatus, receiptID, failureReason *string) error {
	p, ok := f.payments[paymentID]
	if !ok {
		return models.ErrNotFound
	}
	if p.Status != models.PaymentPending && p.Status != models.PaymentProcessing {
		return models.ErrConcurrentModification
	}
	p.Status = status
	p.ReceiptID = receiptID
	p.FailureReason = failureReason
	return nil
}

func (f *fakeRepo) Refund(ctx context.Context, paymentID string) error {
	p, ok := f.payments[paymentID]
	if !ok {
		return models.ErrNotFound
	}
	if p.Status != models.PaymentPaid {
		return models.ErrConcurrentModification
	}
	p.Status = models.PaymentRefunded
	return nil
}

func (f *fakeRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

// fakeOrders serves the order lookups the payment flow needs.
type fakeOrders struct {
	orders map[string]*models.Order
}

func (f *fakeOrders) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

type fakeGateway struct {
	pushErr     error
	queryStatus string
	queryErr    error
	pushes      int
}

func (f *fakeGateway) InitiatePush(ctx context.Context, amount float64, phone, reference string) (string, string, error) {
	f.pushes++
	if f.pushErr != nil {
		return "", "", f.pushErr
	}
	return fmt.Sprintf("ws_CO_%d", f.pushes), fmt.Sprintf("merchant-%d", f.pushes), nil
}

func (f *fakeGateway) QueryStatus(ctx context.Context, checkoutID string) (string, error) {
	if f.queryErr != nil {
		return "", f.queryErr
	}
	return f.queryStatus, nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(ctx context.Context, event, recipientID string, payload map[string]string) {
	f.events = append(f.events, event)
}

func newTestService(status models.OrderStatus) (*Service, *fakeRepo, *fakeGateway, *fakeNotifier) {
	repo := newFakeRepo()
	gateway := &fakeGateway{queryStatus: "completed"}
	notifier := &fakeNotifier{}
	orders := &fakeOrders{orders: map[string]*models.Order{
		"order-1": {
			ID: "order-1", TrackingCode: "PD-ABCDEF1234", CustomerID: "cust-1",
			GrandTotal: 1092.50, Currency: "KES", Status: status,
		},
	}}
	svc := NewService(repo, orders, gateway, notifier)
	return svc, repo, gateway, notifier
}

func TestInitiateCreatesProcessingPayment(t *testing.T) {
	svc, repo, _, _ := newTestService(models.StatusPending)

	intent, err := svc.Initiate(context.Background(), "order-1", "cust-1",
		models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if intent.CheckoutID == "" {
		t.Error("expected a checkout id from the gateway")
	}

	p, err := repo.FindByID(context.Background(), intent.PaymentID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if p.Status != models.PaymentProcessing {
		t.Errorf("status = %s, want PROCESSING", p.Status)
	}
	if p.Amount != 1092.50 {
		t.Errorf("amount = %.2f, want the order total 1092.50", p.Amount)
	}
}

func TestInitiateGuards(t *testing.T) {
	t.Run("cancelled order", func(t *testing.T) {
		svc, _, _, _ := newTestService(models.StatusCancelled)
		_, err := svc.Initiate(context.Background(), "order-1", "cust-1",
			models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
		if !errors.Is(err, models.ErrOrderCancelled) {
			t.Fatalf("err = %v, want ErrOrderCancelled", err)
		}
	})

	t.Run("delivered order", func(t *testing.T) {
		svc, _, _, _ := newTestService(models.StatusDelivered)
		_, err := svc.Initiate(context.Background(), "order-1", "cust-1",
			models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
		if !errors.Is(err, models.ErrOrderDelivered) {
			t.Fatalf("err = %v, want ErrOrderDelivered", err)
		}
	})

	t.Run("stranger", func(t *testing.T) {
		svc, _, _, _ := newTestService(models.StatusPending)
		_, err := svc.Initiate(context.Background(), "order-1", "cust-999",
			models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("already paid", func(t *testing.T) {
		svc, repo, _, _ := newTestService(models.StatusPending)
		repo.payments["pay-x"] = &models.Payment{ID: "pay-x", OrderID: "order-1", Status: models.PaymentPaid}
		_, err := svc.Initiate(context.Background(), "order-1", "cust-1",
			models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
		if !errors.Is(err, models.ErrAlreadyPaid) {
			t.Fatalf("err = %v, want ErrAlreadyPaid", err)
		}
	})

	t.Run("active attempt in flight", func(t *testing.T) {
		svc, repo, _, _ := newTestService(models.StatusPending)
		repo.payments["pay-x"] = &models.Payment{ID: "pay-x", OrderID: "order-1", Status: models.PaymentProcessing}
		_, err := svc.Initiate(context.Background(), "order-1", "cust-1",
			models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
		if !errors.Is(err, models.ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})
}

func TestInitiateRetriesTxRefCollision(t *testing.T) {
	svc, repo, _, _ := newTestService(models.StatusPending)

	// Freeze the clock so the first mint collides with a pre-claimed ref.
	fixed := time.Date(2025, 6, 11, 12, 0, 0, 500, time.UTC)
	calls := 0
	svc.now = func() time.Time {
		calls++
		if calls <= 2 {
			return fixed
		}
		return fixed.Add(time.Second)
	}
	repo.txRefs[fmt.Sprintf("PD%s%03d", fixed.UTC().Format("20060102150405"), fixed.UnixNano()%1000)] = true

	intent, err := svc.Initiate(context.Background(), "order-1", "cust-1",
		models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if intent.TxRef == "" {
		t.Fatal("expected a minted reference after the retry")
	}
}

func TestInitiateGatewayFailureClosesAttempt(t *testing.T) {
	svc, repo, gateway, _ := newTestService(models.StatusPending)
	gateway.pushErr = models.ErrGatewayUnavailable

	_, err := svc.Initiate(context.Background(), "order-1", "cust-1",
		models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if !errors.Is(err, models.ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}

	// The attempt must be closed so the customer can retry immediately.
	active, _ := repo.HasActive(context.Background(), "order-1")
	if active {
		t.Error("failed push left an active payment behind")
	}
}

func TestInitiateStateWriteFailureClosesAttempt(t *testing.T) {
	svc, repo, _, _ := newTestService(models.StatusPending)
	repo.setProcessingErr = errors.New("connection reset")

	_, err := svc.Initiate(context.Background(), "order-1", "cust-1",
		models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err == nil {
		t.Fatal("expected an error when the processing update fails")
	}

	// The attempt must not be left PENDING without a checkout id, where no
	// callback can ever find it and HasActive would block every retry.
	active, _ := repo.HasActive(context.Background(), "order-1")
	if active {
		t.Error("failed processing update left an active payment behind")
	}
}

func TestReconcileSuccess(t *testing.T) {
	svc, repo, _, notifier := newTestService(models.StatusPending)

	intent, err := svc.Initiate(context.Background(), "order-1", "cust-1",
		models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	res, err := svc.Reconcile(context.Background(), models.CallbackResult{
		CheckoutID: intent.CheckoutID,
		Success:    true,
		ReceiptID:  "SBL12345XY",
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Replayed {
		t.Error("first callback must not be reported as a replay")
	}
	if res.Payment.Status != models.PaymentPaid {
		t.Errorf("status = %s, want PAID", res.Payment.Status)
	}
	if res.Payment.ReceiptID == nil || *res.Payment.ReceiptID != "SBL12345XY" {
		t.Errorf("receipt = %v, want SBL12345XY", res.Payment.ReceiptID)
	}

	paid, _ := repo.HasPaid(context.Background(), "order-1")
	if !paid {
		t.Error("HasPaid must report true after reconciliation")
	}
	if len(notifier.events) != 1 || notifier.events[0] != EventPaymentReceived {
		t.Errorf("events = %v, want [%s]", notifier.events, EventPaymentReceived)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	svc, _, _, notifier := newTestService(models.StatusPending)

	intent, err := svc.Initiate(context.Background(), "order-1", "cust-1",
		models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	cb := models.CallbackResult{CheckoutID: intent.CheckoutID, Success: true, ReceiptID: "SBL12345XY"}
	if _, err := svc.Reconcile(context.Background(), cb); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	// The gateway delivers at least once; the second identical callback must
	// return the stored outcome untouched.
	res, err := svc.Reconcile(context.Background(), cb)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if !res.Replayed {
		t.Error("replayed callback must be flagged")
	}
	if res.Payment.Status != models.PaymentPaid {
		t.Errorf("status = %s, want PAID preserved", res.Payment.Status)
	}
	if len(notifier.events) != 1 {
		t.Errorf("notifications = %d, replay must not re-notify", len(notifier.events))
	}
}

func TestReconcileFailure(t *testing.T) {
	svc, _, _, notifier := newTestService(models.StatusPending)

	intent, err := svc.Initiate(context.Background(), "order-1", "cust-1",
		models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	res, err := svc.Reconcile(context.Background(), models.CallbackResult{
		CheckoutID:    intent.CheckoutID,
		Success:       false,
		FailureReason: "Request cancelled by user",
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Payment.Status != models.PaymentFailed {
		t.Errorf("status = %s, want FAILED", res.Payment.Status)
	}
	if res.Payment.FailureReason == nil || *res.Payment.FailureReason != "Request cancelled by user" {
		t.Errorf("failure reason = %v, want the callback text", res.Payment.FailureReason)
	}
	if len(notifier.events) != 1 || notifier.events[0] != EventPaymentFailed {
		t.Errorf("events = %v, want [%s]", notifier.events, EventPaymentFailed)
	}
}

func TestReconcileUnknownCheckout(t *testing.T) {
	svc, _, _, _ := newTestService(models.StatusPending)

	_, err := svc.Reconcile(context.Background(), models.CallbackResult{CheckoutID: "ws_CO_unknown", Success: true})
	if !errors.Is(err, models.ErrUnknownPayment) {
		t.Fatalf("err = %v, want ErrUnknownPayment", err)
	}
}

func TestQueryGatewayDownKeepsLocalRecord(t *testing.T) {
	svc, repo, gateway, _ := newTestService(models.StatusPending)

	intent, err := svc.Initiate(context.Background(), "order-1", "cust-1",
		models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	gateway.queryErr = errors.New("timeout")
	_, err = svc.Query(context.Background(), intent.CheckoutID)
	if !errors.Is(err, models.ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}

	// The local record must be untouched by the failed lookup.
	p, _ := repo.FindByID(context.Background(), intent.PaymentID)
	if p.Status != models.PaymentProcessing {
		t.Errorf("status = %s, want PROCESSING preserved", p.Status)
	}
}

func TestCancelAndRefund(t *testing.T) {
	svc, repo, _, _ := newTestService(models.StatusPending)

	intent, err := svc.Initiate(context.Background(), "order-1", "cust-1",
		models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if err := svc.Cancel(context.Background(), intent.PaymentID, "cust-999"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("stranger cancel err = %v, want ErrNotFound", err)
	}
	if err := svc.Cancel(context.Background(), intent.PaymentID, "cust-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	p, _ := repo.FindByID(context.Background(), intent.PaymentID)
	if p.Status != models.PaymentCancelled {
		t.Errorf("status = %s, want CANCELLED", p.Status)
	}

	// Refund only applies to PAID payments.
	if _, err := svc.Refund(context.Background(), intent.PaymentID); !errors.Is(err, models.ErrConcurrentModification) {
		t.Fatalf("refund of cancelled payment err = %v, want ErrConcurrentModification", err)
	}

	repo.payments[intent.PaymentID].Status = models.PaymentPaid
	refunded, err := svc.Refund(context.Background(), intent.PaymentID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refunded.Status != models.PaymentRefunded {
		t.Errorf("status = %s, want REFUNDED", refunded.Status)
	}
}
