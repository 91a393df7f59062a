package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"parcel-dispatch/internal/models"
)

const distanceMatrixURL = "https://maps.googleapis.com/maps/api/distancematrix/json"

// DistanceResult is the road distance and travel time between two points.
type DistanceResult struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// Service calls the Google Distance Matrix API. All failures surface as
// models.ErrProviderUnavailable; the caller must never fall back to a
// fabricated distance.
type Service struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewService creates a maps client with a bounded request timeout.
func NewService(apiKey string) *Service {
	return &Service{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		baseURL:    distanceMatrixURL,
	}
}

// distanceMatrixResponse mirrors the subset of the API response we read.
type distanceMatrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int `json:"value"` // meters
			} `json:"distance"`
			Duration struct {
				Value int `json:"value"` // seconds
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

// Lookup returns the driving distance and duration from origin to
// destination.
func (s *Service) Lookup(ctx context.Context, originLat, originLng, destLat, destLng float64) (*DistanceResult, error) {
	q := url.Values{}
	q.Set("origins", fmt.Sprintf("%f,%f", originLat, originLng))
	q.Set("destinations", fmt.Sprintf("%f,%f", destLat, destLng))
	q.Set("mode", "driving")
	q.Set("key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("maps.Lookup: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("maps.Lookup: %w: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("maps.Lookup: %w: status %d", models.ErrProviderUnavailable, resp.StatusCode)
	}

	var body distanceMatrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("maps.Lookup: %w: decode: %v", models.ErrProviderUnavailable, err)
	}
	if body.Status != "OK" || len(body.Rows) == 0 || len(body.Rows[0].Elements) == 0 {
		return nil, fmt.Errorf("maps.Lookup: %w: api status %q", models.ErrProviderUnavailable, body.Status)
	}
	el := body.Rows[0].Elements[0]
	if el.Status != "OK" {
		return nil, fmt.Errorf("maps.Lookup: %w: element status %q", models.ErrProviderUnavailable, el.Status)
	}

	return &DistanceResult{
		DistanceKm:      float64(el.Distance.Value) / 1000,
		DurationMinutes: float64(el.Duration.Value) / 60,
	}, nil
}
