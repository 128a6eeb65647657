package discovery

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/pkg/geocode"
)

// Geocoder resolves a candidate's address to coordinates. Every failure,
// including "no match", is reported as ErrGeocodingFailure.
type Geocoder interface {
	Geocode(ctx context.Context, r model.DiscoveryResult) (lat, lng float64, err error)
}

// GeocodeAdapter adapts pkg/geocode to Geocoder.
type GeocodeAdapter struct {
	client geocode.Client
}

// NewGeocodeAdapter wraps a geocode client.
func NewGeocodeAdapter(client geocode.Client) *GeocodeAdapter {
	return &GeocodeAdapter{client: client}
}

func (a *GeocodeAdapter) Geocode(ctx context.Context, r model.DiscoveryResult) (float64, float64, error) {
	res, err := a.client.Geocode(ctx, geocode.AddressInput{
		Street:  r.Address,
		City:    r.City,
		State:   r.State,
		ZipCode: r.Zip,
	})
	if err != nil {
		return 0, 0, eris.Wrapf(ErrGeocodingFailure, "%s, %s: %v", r.Address, r.City, err)
	}
	if res == nil || !res.Matched || (res.Latitude == 0 && res.Longitude == 0) {
		return 0, 0, eris.Wrapf(ErrGeocodingFailure, "%s, %s: no match", r.Address, r.City)
	}
	return res.Latitude, res.Longitude, nil
}
