package courier

import (
	"context"
	"errors"
	"math"
	"testing"

	"parcel-dispatch/internal/models"
)

type fakeRepo struct {
	candidates []Candidate
	profiles   map[string]*models.CourierProfile
	delivered  map[string]int
	locations  map[string][2]float64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles:  make(map[string]*models.CourierProfile),
		delivered: make(map[string]int),
		locations: make(map[string][2]float64),
	}
}

func (f *fakeRepo) FindProfile(ctx context.Context, courierID string) (*models.CourierProfile, error) {
	p, ok := f.profiles[courierID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) ListAvailable(ctx context.Context) ([]Candidate, error) {
	return f.candidates, nil
}

func (f *fakeRepo) UpdateLocation(ctx context.Context, courierID string, lat, lng float64, available *bool) error {
	if _, ok := f.profiles[courierID]; !ok {
		return models.ErrNotFound
	}
	f.locations[courierID] = [2]float64{lat, lng}
	return nil
}

func (f *fakeRepo) IncrementDeliveries(ctx context.Context, courierID string) error {
	f.delivered[courierID]++
	return nil
}

// Nairobi CBD as the pickup point for the dispatch tests.
const pickupLat, pickupLng = -1.2921, 36.8219

func TestNearestAvailablePicksClosest(t *testing.T) {
	repo := newFakeRepo()
	repo.candidates = []Candidate{
		{CourierID: "far", Latitude: -1.40, Longitude: 36.95},     // ~19 km out
		{CourierID: "near", Latitude: -1.2950, Longitude: 36.8250}, // well under 1 km
		{CourierID: "mid", Latitude: -1.33, Longitude: 36.85},
	}
	svc := NewService(repo)

	id, dist, err := svc.NearestAvailable(context.Background(), pickupLat, pickupLng)
	if err != nil {
		t.Fatalf("NearestAvailable: %v", err)
	}
	if id != "near" {
		t.Errorf("courier = %s, want near", id)
	}
	if dist > 1 {
		t.Errorf("distance = %.2f km, want under 1 km", dist)
	}
}

func TestNearestAvailableRespectsRadius(t *testing.T) {
	repo := newFakeRepo()
	// Mombasa is roughly 440 km from Nairobi; outside any dispatch radius.
	repo.candidates = []Candidate{
		{CourierID: "mombasa", Latitude: -4.0435, Longitude: 39.6682},
	}
	svc := NewService(repo)

	_, _, err := svc.NearestAvailable(context.Background(), pickupLat, pickupLng)
	if !errors.Is(err, models.ErrNoCourierAvailable) {
		t.Fatalf("err = %v, want ErrNoCourierAvailable", err)
	}
}

func TestNearestAvailableNoCandidates(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, _, err := svc.NearestAvailable(context.Background(), pickupLat, pickupLng)
	if !errors.Is(err, models.ErrNoCourierAvailable) {
		t.Fatalf("err = %v, want ErrNoCourierAvailable", err)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Nairobi to Mombasa, straight line.
	d := haversineKm(-1.2921, 36.8219, -4.0435, 39.6682)
	if math.Abs(d-440) > 10 {
		t.Errorf("distance = %.1f km, want about 440", d)
	}
}

func TestRecordDelivery(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	if err := svc.RecordDelivery(context.Background(), "courier-1"); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}
	if repo.delivered["courier-1"] != 1 {
		t.Errorf("deliveries = %d, want 1", repo.delivered["courier-1"])
	}
}

func TestUpdateLocation(t *testing.T) {
	repo := newFakeRepo()
	repo.profiles["courier-1"] = &models.CourierProfile{VehicleType: "motorbike", PlateNumber: "KMC 123A"}
	svc := NewService(repo)

	err := svc.UpdateLocation(context.Background(), "courier-1", models.CourierLocationUpdate{
		Latitude: -1.30, Longitude: 36.80,
	})
	if err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	if got := repo.locations["courier-1"]; got != [2]float64{-1.30, 36.80} {
		t.Errorf("location = %v, want [-1.30 36.80]", got)
	}

	err = svc.UpdateLocation(context.Background(), "unknown", models.CourierLocationUpdate{Latitude: 0, Longitude: 0})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
