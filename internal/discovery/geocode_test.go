package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/pkg/geocode"
)

type stubGeocodeClient struct {
	res  *geocode.Result
	err  error
	last geocode.AddressInput
}

func (s *stubGeocodeClient) Geocode(_ context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	s.last = addr
	return s.res, s.err
}

func TestGeocodeAdapter(t *testing.T) {
	r := model.DiscoveryResult{Address: "1 Main St", City: "Sacramento", State: "CA", Zip: "95814"}

	tests := []struct {
		name    string
		res     *geocode.Result
		err     error
		wantErr bool
	}{
		{"matched", &geocode.Result{Latitude: 38.58, Longitude: -121.49, Matched: true}, nil, false},
		{"client error", nil, errors.New("timeout"), true},
		{"nil result", nil, nil, true},
		{"unmatched", &geocode.Result{Matched: false}, nil, true},
		{"zero coordinates", &geocode.Result{Matched: true}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubGeocodeClient{res: tt.res, err: tt.err}
			lat, lng, err := NewGeocodeAdapter(client).Geocode(context.Background(), r)
			assert.Equal(t, geocode.AddressInput{Street: "1 Main St", City: "Sacramento", State: "CA", ZipCode: "95814"}, client.last)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrGeocodingFailure))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 38.58, lat)
			assert.Equal(t, -121.49, lng)
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Provider: "tavily", Attempts: 3, StatusCode: 503, Err: errors.New("unavailable")}
	assert.Contains(t, err.Error(), "after 3 attempts (status 503)")
	assert.ErrorContains(t, err, "unavailable")

	err.StatusCode = 0
	assert.NotContains(t, err.Error(), "status")
}
