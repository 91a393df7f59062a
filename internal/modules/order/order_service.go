package order

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"parcel-dispatch/internal/models"
	"parcel-dispatch/internal/modules/pricing"
	"parcel-dispatch/pkg/maps"

	"github.com/google/uuid"
)

// MapsServiceInterface defines the contract for the external distance
// provider. Implemented in pkg/maps.
type MapsServiceInterface interface {
	Lookup(ctx context.Context, originLat, originLng, destLat, destLng float64) (*maps.DistanceResult, error)
}

// CourierServiceInterface is what the order orchestrator needs from the
// courier module: dispatch candidates and delivery bookkeeping.
type CourierServiceInterface interface {
	NearestAvailable(ctx context.Context, lat, lng float64) (courierID string, distanceKm float64, err error)
	RecordDelivery(ctx context.Context, courierID string) error
}

// PaymentCheckerInterface reports an order's payment state. Implemented by
// the payment module.
type PaymentCheckerInterface interface {
	HasPaid(ctx context.Context, orderID string) (bool, error)
	HasActive(ctx context.Context, orderID string) (bool, error)
}

// Notifier delivers best-effort notifications. Implementations must never
// block a request on delivery failure.
type Notifier interface {
	Notify(ctx context.Context, event, recipientID string, payload map[string]string)
}

// Notification event names fired by the orchestrator.
const (
	EventOrderCreated     = "ORDER_CREATED"
	EventCourierAssigned  = "COURIER_ASSIGNED"
	EventNewAssignment    = "NEW_ASSIGNMENT"
	EventStatusChanged    = "STATUS_CHANGED"
	EventDeliveryComplete = "DELIVERY_COMPLETE"
)

// ServiceInterface defines the contract for the order service.
type ServiceInterface interface {
	GetQuote(ctx context.Context, req models.QuoteRequest) (*models.QuoteResponse, error)
	CreateOrder(ctx context.Context, customerID string, req models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID, actorID string, role models.Role) (*models.Order, error)
	TrackByCode(ctx context.Context, code string) (*models.Order, []*models.TrackingEntry, error)
	ListCustomerOrders(ctx context.Context, customerID string, page, limit int) ([]*models.Order, int, error)
	ListCourierOrders(ctx context.Context, courierID string, page, limit int) ([]*models.Order, int, error)
	ListAllOrders(ctx context.Context, page, limit int) ([]*models.Order, int, error)

	UpdateStatus(ctx context.Context, orderID, actorID string, role models.Role, req models.StatusUpdateRequest) (*models.Order, error)
	AssignCourier(ctx context.Context, orderID string, req models.AssignCourierRequest) (*models.Order, error)
	AdminOverrideStatus(ctx context.Context, orderID, adminID string, req models.AdminOverrideRequest) (*models.Order, error)
	ChangeDestination(ctx context.Context, orderID, customerID string, req models.ChangeDestinationRequest) (*models.Order, error)

	ReportTracking(ctx context.Context, orderID, courierID string, req models.TrackingReportRequest) error
	GetTracking(ctx context.Context, orderID, actorID string, role models.Role) ([]*models.TrackingEntry, error)
}

// Service implements the order orchestration logic: it composes the pricing
// engine, the status machine and the payment checker, and talks to the
// external collaborators at defined hook points.
type Service struct {
	repo     RepositoryInterface
	maps     MapsServiceInterface
	couriers CourierServiceInterface
	payments PaymentCheckerInterface
	notifier Notifier
	now      func() time.Time
}

// NewService creates a new order service with all collaborators injected.
func NewService(repo RepositoryInterface, mapsSvc MapsServiceInterface, couriers CourierServiceInterface, payments PaymentCheckerInterface, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		maps:     mapsSvc,
		couriers: couriers,
		payments: payments,
		notifier: notifier,
		now:      time.Now,
	}
}

// GetQuote prices a hypothetical delivery without persisting anything.
func (s *Service) GetQuote(ctx context.Context, req models.QuoteRequest) (*models.QuoteResponse, error) {
	dist, err := s.maps.Lookup(ctx, req.PickupLat, req.PickupLng, req.DestinationLat, req.DestinationLng)
	if err != nil {
		return nil, fmt.Errorf("service.GetQuote: %w", err)
	}

	bd, err := pricing.Estimate(req.WeightKg, dist.DistanceKm, pricing.Modifiers{
		Fragile:           req.Fragile,
		InsuranceRequired: req.InsuranceRequired,
		IsExpress:         req.IsExpress,
		IsWeekend:         s.resolveWeekend(req.IsWeekend),
	})
	if err != nil {
		return nil, err
	}

	return &models.QuoteResponse{
		DistanceKm:      dist.DistanceKm,
		DurationMinutes: dist.DurationMinutes,
		Breakdown:       *bd,
	}, nil
}

// CreateOrder looks up the distance, prices the delivery and persists the
// order in PENDING. The price is computed exactly once here.
func (s *Service) CreateOrder(ctx context.Context, customerID string, req models.CreateOrderRequest) (*models.Order, error) {
	dist, err := s.maps.Lookup(ctx, req.PickupLat, req.PickupLng, req.DestinationLat, req.DestinationLng)
	if err != nil {
		return nil, fmt.Errorf("service.CreateOrder: %w", err)
	}

	isWeekend := s.resolveWeekend(req.IsWeekend)
	bd, err := pricing.Estimate(req.WeightKg, dist.DistanceKm, pricing.Modifiers{
		Fragile:           req.Fragile,
		InsuranceRequired: req.InsuranceRequired,
		IsExpress:         req.IsExpress,
		IsWeekend:         isWeekend,
	})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		TrackingCode:       newTrackingCode(),
		CustomerID:         customerID,
		PickupLat:          req.PickupLat,
		PickupLng:          req.PickupLng,
		PickupAddress:      req.PickupAddress,
		DestinationLat:     req.DestinationLat,
		DestinationLng:     req.DestinationLng,
		DestinationAddress: req.DestinationAddress,
		WeightKg:           req.WeightKg,
		Dimensions:         req.Dimensions,
		Fragile:            req.Fragile,
		InsuranceRequired:  req.InsuranceRequired,
		IsExpress:          req.IsExpress,
		IsWeekend:          isWeekend,
		DistanceKm:         dist.DistanceKm,
		BaseFare:           bd.BaseFare,
		DistanceFee:        bd.DistanceFee,
		WeightFee:          bd.WeightFee,
		SurchargeAmount:    bd.SurchargeAmount,
		GrandTotal:         bd.GrandTotal,
		Currency:           bd.Currency,
		EtaMinutes:         bd.EtaMinutes,
		Status:             models.StatusPending,
	}

	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("service.CreateOrder: %w", err)
	}

	s.record(ctx, created.CustomerID, created.ID, EventOrderCreated,
		fmt.Sprintf("Order %s created. Total %s %.2f", created.TrackingCode, created.Currency, created.GrandTotal))

	return created, nil
}

// GetOrder retrieves one order, enforcing that customers and couriers only
// see their own.
func (s *Service) GetOrder(ctx context.Context, orderID, actorID string, role models.Role) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.GetOrder: %w", err)
	}
	if err := authorizeOrderAccess(order, actorID, role); err != nil {
		return nil, err
	}
	return order, nil
}

// TrackByCode is the public tracking lookup; no authentication, keyed by the
// unguessable tracking code.
func (s *Service) TrackByCode(ctx context.Context, code string) (*models.Order, []*models.TrackingEntry, error) {
	order, err := s.repo.FindByTrackingCode(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("service.TrackByCode: %w", err)
	}
	entries, err := s.repo.ListTracking(ctx, order.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("service.TrackByCode: %w", err)
	}
	return order, entries, nil
}

// ListCustomerOrders retrieves all orders for a specific customer.
func (s *Service) ListCustomerOrders(ctx context.Context, customerID string, page, limit int) ([]*models.Order, int, error) {
	page, limit = clampPage(page, limit)
	orders, total, err := s.repo.ListByCustomer(ctx, customerID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("service.ListCustomerOrders: %w", err)
	}
	return orders, total, nil
}

// ListCourierOrders retrieves all orders assigned to a courier.
func (s *Service) ListCourierOrders(ctx context.Context, courierID string, page, limit int) ([]*models.Order, int, error) {
	page, limit = clampPage(page, limit)
	orders, total, err := s.repo.ListByCourier(ctx, courierID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("service.ListCourierOrders: %w", err)
	}
	return orders, total, nil
}

// ListAllOrders lists all orders in the system (admin).
func (s *Service) ListAllOrders(ctx context.Context, page, limit int) ([]*models.Order, int, error) {
	page, limit = clampPage(page, limit)
	return s.repo.ListAll(ctx, page, limit)
}

// UpdateStatus drives the order through the lifecycle. The requested edge is
// validated by the status machine, then written under the compare-and-swap
// guard so two racing requests cannot both win.
func (s *Service) UpdateStatus(ctx context.Context, orderID, actorID string, role models.Role, req models.StatusUpdateRequest) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateStatus: %w", err)
	}
	if err := authorizeOrderAccess(order, actorID, role); err != nil {
		return nil, err
	}

	previous := order.Status
	if err := Transition(order, req.Status, role); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, order.ID, previous, order.Status); err != nil {
		return nil, err
	}

	// Location updates and status updates share the same append point but
	// are independent calls; only append when geolocation accompanied this
	// update.
	if req.Latitude != nil && req.Longitude != nil {
		entry := &models.TrackingEntry{
			OrderID:   order.ID,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Status:    order.Status,
		}
		if err := s.repo.AppendTracking(ctx, entry); err != nil {
			log.Printf("service.UpdateStatus: tracking append failed for order %s: %v", order.ID, err)
		}
	}

	s.record(ctx, order.CustomerID, order.ID, EventStatusChanged,
		fmt.Sprintf("Order %s is now %s", order.TrackingCode, order.Status))

	if order.Status == models.StatusDelivered {
		s.record(ctx, order.CustomerID, order.ID, EventDeliveryComplete,
			fmt.Sprintf("Order %s has been delivered", order.TrackingCode))
		if order.CourierID != nil {
			if err := s.couriers.RecordDelivery(ctx, *order.CourierID); err != nil {
				log.Printf("service.UpdateStatus: delivery count update failed for courier %s: %v", *order.CourierID, err)
			}
		}
	}

	return order, nil
}

// AssignCourier attaches a courier to a PENDING order and moves it to
// ASSIGNED. When no courier is named, the nearest available one within range
// is picked. Assignment is gated on a successful payment.
func (s *Service) AssignCourier(ctx context.Context, orderID string, req models.AssignCourierRequest) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.AssignCourier: %w", err)
	}
	if !CanTransition(order.Status, models.StatusAssigned) {
		return nil, &models.TransitionError{
			Current:   order.Status,
			Requested: models.StatusAssigned,
			Allowed:   AllowedNext(order.Status),
		}
	}

	paid, err := s.payments.HasPaid(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("service.AssignCourier: %w", err)
	}
	if !paid {
		return nil, models.ErrPaymentRequired
	}

	courierID := req.CourierID
	if courierID == "" {
		courierID, _, err = s.couriers.NearestAvailable(ctx, order.PickupLat, order.PickupLng)
		if err != nil {
			return nil, fmt.Errorf("service.AssignCourier: %w", err)
		}
	}

	if err := s.repo.AssignCourier(ctx, order.ID, courierID, order.Status); err != nil {
		return nil, err
	}
	order.CourierID = &courierID
	order.Status = models.StatusAssigned

	s.record(ctx, order.CustomerID, order.ID, EventCourierAssigned,
		fmt.Sprintf("A courier has been assigned to order %s", order.TrackingCode))
	s.record(ctx, courierID, order.ID, EventNewAssignment,
		fmt.Sprintf("You have been assigned order %s", order.TrackingCode))

	return order, nil
}

// AdminOverrideStatus forces an order into a status outside the edge table.
// Every override appends an audit tracking entry naming the admin and reason.
func (s *Service) AdminOverrideStatus(ctx context.Context, orderID, adminID string, req models.AdminOverrideRequest) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.AdminOverrideStatus: %w", err)
	}

	previous := order.Status
	if err := s.repo.OverrideStatus(ctx, order.ID, req.Status); err != nil {
		return nil, err
	}
	order.Status = req.Status

	// The audit entry is a status event, not a position fix; it carries no
	// coordinates.
	audit := &models.TrackingEntry{
		OrderID: order.ID,
		Status:  order.Status,
		Note:    fmt.Sprintf("admin override by %s: %s -> %s (%s)", adminID, previous, req.Status, req.Reason),
	}
	if err := s.repo.AppendTracking(ctx, audit); err != nil {
		log.Printf("CRITICAL: override of order %s applied but audit entry failed: %v", order.ID, err)
	}

	s.record(ctx, order.CustomerID, order.ID, EventStatusChanged,
		fmt.Sprintf("Order %s is now %s", order.TrackingCode, order.Status))

	return order, nil
}

// ChangeDestination moves the drop-off of a PENDING order and re-prices it.
// This is the one sanctioned pricing mutation; after pickup the destination
// is locked. Payment locks it too: once a payment is pinned to the grand
// total, or an attempt is in flight, repricing would desync the two.
func (s *Service) ChangeDestination(ctx context.Context, orderID, customerID string, req models.ChangeDestinationRequest) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.ChangeDestination: %w", err)
	}
	if order.CustomerID != customerID {
		return nil, models.ErrNotFound // avoid leaking other customers' orders
	}
	if order.Status != models.StatusPending {
		return nil, models.ErrDestinationLocked
	}

	paid, err := s.payments.HasPaid(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("service.ChangeDestination: %w", err)
	}
	if paid {
		return nil, models.ErrAlreadyPaid
	}
	active, err := s.payments.HasActive(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("service.ChangeDestination: %w", err)
	}
	if active {
		return nil, models.ErrConflict
	}

	dist, err := s.maps.Lookup(ctx, order.PickupLat, order.PickupLng, req.DestinationLat, req.DestinationLng)
	if err != nil {
		return nil, fmt.Errorf("service.ChangeDestination: %w", err)
	}
	bd, err := pricing.Estimate(order.WeightKg, dist.DistanceKm, pricing.Modifiers{
		Fragile:           order.Fragile,
		InsuranceRequired: order.InsuranceRequired,
		IsExpress:         order.IsExpress,
		IsWeekend:         order.IsWeekend,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateDestination(ctx, order.ID, req, dist.DistanceKm, bd); err != nil {
		return nil, err
	}

	return s.repo.FindByID(ctx, order.ID)
}

// ReportTracking appends a courier GPS snapshot to the order history.
func (s *Service) ReportTracking(ctx context.Context, orderID, courierID string, req models.TrackingReportRequest) error {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("service.ReportTracking: %w", err)
	}
	if order.CourierID == nil || *order.CourierID != courierID {
		return models.ErrForbidden
	}

	entry := &models.TrackingEntry{
		OrderID:    order.ID,
		Latitude:   &req.Latitude,
		Longitude:  &req.Longitude,
		Status:     order.Status,
		SpeedKmh:   req.SpeedKmh,
		BatteryPct: req.BatteryPct,
		AccuracyM:  req.AccuracyM,
		PhotoURL:   req.PhotoURL,
	}
	if err := s.repo.AppendTracking(ctx, entry); err != nil {
		return fmt.Errorf("service.ReportTracking: %w", err)
	}
	return nil
}

// GetTracking returns the order's history to its owner, its courier or an
// admin.
func (s *Service) GetTracking(ctx context.Context, orderID, actorID string, role models.Role) ([]*models.TrackingEntry, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.GetTracking: %w", err)
	}
	if err := authorizeOrderAccess(order, actorID, role); err != nil {
		return nil, err
	}
	return s.repo.ListTracking(ctx, order.ID)
}

// record persists an in-app notification and fires the best-effort external
// hook. Neither failure propagates to the caller.
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

// resolveWeekend honours an explicit flag and otherwise decides from the
// current UTC day.
func (s *Service) resolveWeekend(flag *bool) bool {
	if flag != nil {
		return *flag
	}
	wd := s.now().UTC().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// authorizeOrderAccess lets admins see everything, customers their own orders
// and couriers their assignments. Not-found is returned instead of forbidden
// for strangers' orders to avoid leaking their existence.
func authorizeOrderAccess(o *models.Order, actorID string, role models.Role) error {
	switch role {
	case models.RoleAdmin:
		return nil
	case models.RoleCustomer:
		if o.CustomerID != actorID {
			return models.ErrNotFound
		}
	case models.RoleCourier:
		if o.CourierID == nil || *o.CourierID != actorID {
			return models.ErrNotFound
		}
	default:
		return models.ErrForbidden
	}
	return nil
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// newTrackingCode mints the human-readable code customers use on the public
// tracking page. Uniqueness is backed by the column's unique index.
func newTrackingCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "PD-" + raw[:10]
}
