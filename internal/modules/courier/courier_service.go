package courier

import (
	"context"
	"fmt"
	"math"

	"parcel-dispatch/internal/models"
)

// MaxDispatchRadiusKm bounds how far from the pickup a courier may be
// auto-assigned.
const MaxDispatchRadiusKm = 20.0

// ServiceInterface defines the contract for the courier service.
type ServiceInterface interface {
	NearestAvailable(ctx context.Context, lat, lng float64) (string, float64, error)
	RecordDelivery(ctx context.Context, courierID string) error
	UpdateLocation(ctx context.Context, courierID string, req models.CourierLocationUpdate) error
	GetProfile(ctx context.Context, courierID string) (*models.CourierProfile, error)
}

// Service implements courier dispatch and profile upkeep.
type Service struct {
	repo RepositoryInterface
}

// NewService creates a new courier service.
func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

// NearestAvailable picks the closest verified, available courier within the
// dispatch radius of the pickup point.
func (s *Service) NearestAvailable(ctx context.Context, lat, lng float64) (string, float64, error) {
	candidates, err := s.repo.ListAvailable(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("service.NearestAvailable: %w", err)
	}

	best := ""
	bestDistance := math.MaxFloat64
	for _, c := range candidates {
		d := haversineKm(lat, lng, c.Latitude, c.Longitude)
		if d <= MaxDispatchRadiusKm && d < bestDistance {
			best = c.CourierID
			bestDistance = d
		}
	}
	if best == "" {
		return "", 0, models.ErrNoCourierAvailable
	}
	return best, bestDistance, nil
}

// RecordDelivery bumps the courier's delivery counter after a completed
// drop-off.
func (s *Service) RecordDelivery(ctx context.Context, courierID string) error {
	return s.repo.IncrementDeliveries(ctx, courierID)
}

// UpdateLocation stores a courier's reported position and availability.
func (s *Service) UpdateLocation(ctx context.Context, courierID string, req models.CourierLocationUpdate) error {
	if err := s.repo.UpdateLocation(ctx, courierID, req.Latitude, req.Longitude, req.IsAvailable); err != nil {
		return fmt.Errorf("service.UpdateLocation: %w", err)
	}
	return nil
}

// GetProfile returns a courier's profile.
func (s *Service) GetProfile(ctx context.Context, courierID string) (*models.CourierProfile, error) {
	return s.repo.FindProfile(ctx, courierID)
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0

	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
