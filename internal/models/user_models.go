package models

import "time"

// Role identifies what a user is allowed to do.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleCourier  Role = "COURIER"
	RoleAdmin    Role = "ADMIN"
)

// User is an account in the system. A user is exactly one of customer,
// courier or admin; couriers additionally carry a CourierProfile, enforced
// by NewUser at construction rather than by a database constraint.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Phone        string    `json:"phone"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`

	// Courier is non-nil if and only if Role == RoleCourier.
	Courier *CourierProfile `json:"courier,omitempty"`
}

// CourierProfile holds courier-specific vehicle and dispatch state.
type CourierProfile struct {
	VehicleType     string    `json:"vehicle_type"`
	PlateNumber     string    `json:"plate_number"`
	IsAvailable     bool      `json:"is_available"`
	IsVerified      bool      `json:"is_verified"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
	Rating          float64   `json:"rating"`
	TotalDeliveries int       `json:"total_deliveries"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewUser builds a user and enforces the role/profile pairing: couriers must
// come with vehicle details, everyone else must not carry a profile.
func NewUser(email, fullName, phone, passwordHash string, role Role, courier *CourierProfile) (*User, error) {
	switch role {
	case RoleCourier:
		if courier == nil || courier.VehicleType == "" || courier.PlateNumber == "" {
			return nil, ErrValidation
		}
	case RoleCustomer, RoleAdmin:
		if courier != nil {
			return nil, ErrValidation
		}
	default:
		return nil, ErrValidation
	}
	return &User{
		Email:        email,
		FullName:     fullName,
		Phone:        phone,
		Role:         role,
		PasswordHash: passwordHash,
		Courier:      courier,
	}, nil
}

// RegisterRequest represents the data needed to create an account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	FullName    string `json:"full_name" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	Password    string `json:"password" validate:"required,min=8"`
	Role        Role   `json:"role" validate:"required,oneof=CUSTOMER COURIER ADMIN"`
	VehicleType string `json:"vehicle_type,omitempty"`
	PlateNumber string `json:"plate_number,omitempty"`
}

// LoginRequest represents a login attempt.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the signed token and the authenticated user.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// CourierLocationUpdate is a courier reporting its own position.
type CourierLocationUpdate struct {
	Latitude    float64 `json:"latitude" validate:"required,latitude"`
	Longitude   float64 `json:"longitude" validate:"required,longitude"`
	IsAvailable *bool   `json:"is_available,omitempty"`
}
