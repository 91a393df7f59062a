package models

import "time"

// OrderStatus enumerates the delivery lifecycle of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusAssigned  OrderStatus = "ASSIGNED"
	StatusPickedUp  OrderStatus = "PICKED_UP"
	StatusInTransit OrderStatus = "IN_TRANSIT"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is legal from s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Order represents a parcel delivery order in the system.
type Order struct {
	ID           string  `json:"id"`
	TrackingCode string  `json:"tracking_code"`
	CustomerID   string  `json:"customer_id"`
	CourierID    *string `json:"courier_id,omitempty"`

	PickupLat          float64 `json:"pickup_lat"`
	PickupLng          float64 `json:"pickup_lng"`
	PickupAddress      string  `json:"pickup_address"`
	DestinationLat     float64 `json:"destination_lat"`
	DestinationLng     float64 `json:"destination_lng"`
	DestinationAddress string  `json:"destination_address"`

	WeightKg          float64 `json:"weight_kg"`
	Dimensions        string  `json:"dimensions,omitempty"`
	Fragile           bool    `json:"fragile"`
	InsuranceRequired bool    `json:"insurance_required"`
	IsExpress         bool    `json:"is_express"`
	IsWeekend         bool    `json:"is_weekend"`

	// Pricing is computed once at creation and never mutated afterwards,
	// except when the customer changes the destination while still PENDING.
	DistanceKm      float64 `json:"distance_km"`
	BaseFare        float64 `json:"base_fare"`
	DistanceFee     float64 `json:"distance_fee"`
	WeightFee       float64 `json:"weight_fee"`
	SurchargeAmount float64 `json:"surcharge_amount"`
	GrandTotal      float64 `json:"grand_total"`
	Currency        string  `json:"currency"`
	EtaMinutes      float64 `json:"eta_minutes"`

	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CreateOrderRequest represents the data needed to place a new order.
type CreateOrderRequest struct {
	PickupLat          float64 `json:"pickup_lat" validate:"required,latitude"`
	PickupLng          float64 `json:"pickup_lng" validate:"required,longitude"`
	PickupAddress      string  `json:"pickup_address" validate:"required"`
	DestinationLat     float64 `json:"destination_lat" validate:"required,latitude"`
	DestinationLng     float64 `json:"destination_lng" validate:"required,longitude"`
	DestinationAddress string  `json:"destination_address" validate:"required"`
	WeightKg           float64 `json:"weight_kg" validate:"required,gt=0"`
	Dimensions         string  `json:"dimensions,omitempty"`
	Fragile            bool    `json:"fragile"`
	InsuranceRequired  bool    `json:"insurance_required"`
	IsExpress          bool    `json:"is_express"`
	// IsWeekend is optional; when nil the server decides from the current
	// UTC day of week.
	IsWeekend *bool `json:"is_weekend,omitempty"`
}

// QuoteRequest asks for a price estimate without creating an order.
type QuoteRequest struct {
	PickupLat         float64 `json:"pickup_lat" validate:"required,latitude"`
	PickupLng         float64 `json:"pickup_lng" validate:"required,longitude"`
	DestinationLat    float64 `json:"destination_lat" validate:"required,latitude"`
	DestinationLng    float64 `json:"destination_lng" validate:"required,longitude"`
	WeightKg          float64 `json:"weight_kg" validate:"required,gt=0"`
	Fragile           bool    `json:"fragile"`
	InsuranceRequired bool    `json:"insurance_required"`
	IsExpress         bool    `json:"is_express"`
	IsWeekend         *bool   `json:"is_weekend,omitempty"`
}

// PriceBreakdown exposes every term of the computed price, never just the
// total, so the API can show customers how a quote was built.
type PriceBreakdown struct {
	BaseFare        float64 `json:"base_fare"`
	DistanceFee     float64 `json:"distance_fee"`
	WeightFee       float64 `json:"weight_fee"`
	WeightTier      string  `json:"weight_tier"`
	Subtotal        float64 `json:"subtotal"`
	SurchargeRate   float64 `json:"surcharge_rate"`
	SurchargeAmount float64 `json:"surcharge_amount"`
	GrandTotal      float64 `json:"grand_total"`
	Currency        string  `json:"currency"`
	EtaMinutes      float64 `json:"eta_minutes"`
}

// QuoteResponse pairs a price breakdown with the distance it was based on.
type QuoteResponse struct {
	DistanceKm      float64        `json:"distance_km"`
	DurationMinutes float64        `json:"duration_minutes"`
	Breakdown       PriceBreakdown `json:"breakdown"`
}

// StatusUpdateRequest represents a courier or admin driving the order through
// its lifecycle. Location is optional; when present a tracking entry is
// appended alongside the status change.
type StatusUpdateRequest struct {
	Status    OrderStatus `json:"status" validate:"required,oneof=PENDING ASSIGNED PICKED_UP IN_TRANSIT DELIVERED CANCELLED"`
	Latitude  *float64    `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64    `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// ChangeDestinationRequest moves the drop-off point of a PENDING order.
type ChangeDestinationRequest struct {
	DestinationLat     float64 `json:"destination_lat" validate:"required,latitude"`
	DestinationLng     float64 `json:"destination_lng" validate:"required,longitude"`
	DestinationAddress string  `json:"destination_address" validate:"required"`
}

// AssignCourierRequest represents an admin assigning a courier by hand.
// When CourierID is empty the nearest available courier is picked.
type AssignCourierRequest struct {
	CourierID string `json:"courier_id,omitempty"`
}

// AdminOverrideRequest forces an order into a status outside the normal edge
// table. Reason is mandatory because every override is audited.
type AdminOverrideRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=PENDING ASSIGNED PICKED_UP IN_TRANSIT DELIVERED CANCELLED"`
	Reason string      `json:"reason" validate:"required"`
}

// ErrorResponse is the JSON envelope for error replies.
type ErrorResponse struct {
	Message string `json:"message"`
}
