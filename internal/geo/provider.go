// Package geo acquires a best-effort coordinate for tagging status changes.
package geo

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
)

// Provider returns a single coordinate reading.
type Provider interface {
	Locate(ctx context.Context) (models.Location, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (models.Location, error)

// Locate implements Provider.
func (f ProviderFunc) Locate(ctx context.Context) (models.Location, error) {
	return f(ctx)
}

// Acquire calls p with a hard timeout. Every failure, including a nil provider,
// a timeout, a panic or an out-of-range reading, is reported as LOCATION_UNAVAILABLE.
func Acquire(ctx context.Context, p Provider, timeout time.Duration) (*models.Location, error) {
	if p == nil {
		return nil, appErrors.Clone(appErrors.ErrLocationUnavailable, "no location supplied")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		loc models.Location
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		loc, err := p.Locate(ctx)
		ch <- result{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, appErrors.Wrap(ctx.Err(), appErrors.ErrLocationUnavailable.Code, appErrors.ErrLocationUnavailable.Status, "location request timed out")
	case res := <-ch:
		if res.err != nil {
			return nil, appErrors.Wrap(res.err, appErrors.ErrLocationUnavailable.Code, appErrors.ErrLocationUnavailable.Status, "location provider failed")
		}
		if err := Validate(res.loc); err != nil {
			return nil, err
		}
		return &res.loc, nil
	}
}

// Validate rejects out-of-range coordinates and the (0, 0) placeholder some clients
// send when positioning failed.
func Validate(loc models.Location) error {
	switch {
	case math.IsNaN(loc.Latitude) || math.IsNaN(loc.Longitude):
		return appErrors.Clone(appErrors.ErrLocationUnavailable, "coordinates are not numbers")
	case loc.Latitude < -90 || loc.Latitude > 90:
		return appErrors.Clone(appErrors.ErrLocationUnavailable, "latitude out of range")
	case loc.Longitude < -180 || loc.Longitude > 180:
		return appErrors.Clone(appErrors.ErrLocationUnavailable, "longitude out of range")
	case loc.Latitude == 0 && loc.Longitude == 0:
		return appErrors.Clone(appErrors.ErrLocationUnavailable, "null island coordinates")
	}
	return nil
}

// FromRequest builds a provider for coordinates captured by the client device.
// Missing coordinates yield a nil provider.
func FromRequest(lat, lng *float64) Provider {
	if lat == nil || lng == nil {
		return nil
	}
	loc := models.Location{Latitude: *lat, Longitude: *lng}
	return ProviderFunc(func(context.Context) (models.Location, error) {
		return loc, nil
	})
}
