package models

import "time"

// TrackingEntry is one GPS/status snapshot in an order's history. Entries are
// append-only: never mutated or deleted once written. Coordinates are absent
// on entries that record a status event rather than a position, such as the
// admin-override audit trail.
type TrackingEntry struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`

	Latitude  *float64    `json:"latitude,omitempty"`
	Longitude *float64    `json:"longitude,omitempty"`
	Status    OrderStatus `json:"status"`

	SpeedKmh   *float64 `json:"speed_kmh,omitempty"`
	BatteryPct *float64 `json:"battery_pct,omitempty"`
	AccuracyM  *float64 `json:"accuracy_m,omitempty"`
	PhotoURL   *string  `json:"photo_url,omitempty"`
	Note       string   `json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TrackingReportRequest is a courier pushing a location snapshot for an order.
type TrackingReportRequest struct {
	Latitude   float64  `json:"latitude" validate:"required,latitude"`
	Longitude  float64  `json:"longitude" validate:"required,longitude"`
	SpeedKmh   *float64 `json:"speed_kmh,omitempty"`
	BatteryPct *float64 `json:"battery_pct,omitempty" validate:"omitempty,min=0,max=100"`
	AccuracyM  *float64 `json:"accuracy_m,omitempty"`
	PhotoURL   *string  `json:"photo_url,omitempty"`
}

// Notification is a persisted in-app message for a user, written alongside
// the email hooks.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	OrderID   *string   `json:"order_id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
