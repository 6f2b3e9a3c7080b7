// Package maps estimates road distance and travel time between two points.
package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	gmaps "googlemaps.github.io/maps"
)

// ErrNoRoute is returned when the provider cannot route between the points.
var ErrNoRoute = errors.New("no route between points")

// Route is a road distance and drive time estimate.
type Route struct {
	DistanceMeters  int
	DurationSeconds int
}

// distanceMatrixClient is the subset of the Google Maps client used here.
type distanceMatrixClient interface {
	DistanceMatrix(ctx context.Context, r *gmaps.DistanceMatrixRequest) (*gmaps.DistanceMatrixResponse, error)
}

// RouteEstimator queries the Google Maps Distance Matrix API.
type RouteEstimator struct {
	client  distanceMatrixClient
	timeout time.Duration
}

// NewRouteEstimator creates a RouteEstimator authenticated with apiKey.
func NewRouteEstimator(apiKey string, timeout time.Duration) (*RouteEstimator, error) {
	client, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteEstimator{client: client, timeout: timeout}, nil
}

// Estimate returns the driving distance and duration between origin and destination.
// Traffic-aware duration is preferred when the provider returns one.
func (e *RouteEstimator) Estimate(ctx context.Context, originLat, originLng, destLat, destLng float64) (*Route, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.DistanceMatrix(ctx, &gmaps.DistanceMatrixRequest{
		Origins:       []string{latLng(originLat, originLng)},
		Destinations:  []string{latLng(destLat, destLng)},
		Mode:          gmaps.TravelModeDriving,
		DepartureTime: "now",
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return nil, ErrNoRoute
	}

	element := resp.Rows[0].Elements[0]
	if element.Status != "OK" {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, element.Status)
	}

	duration := element.Duration
	if element.DurationInTraffic > 0 {
		duration = element.DurationInTraffic
	}

	return &Route{
		DistanceMeters:  element.Distance.Meters,
		DurationSeconds: int(duration.Seconds()),
	}, nil
}

func latLng(lat, lng float64) string {
	return fmt.Sprintf("%f,%f", lat, lng)
}
