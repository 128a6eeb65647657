package geocode

import (
	"net/http"

	"github.com/jarcoal/httpmock"
	"golang.org/x/time/rate"
)

// newMockGeocoder returns a geocoder whose HTTP calls go to a fresh mock
// transport, with rate limiting and caching disabled.
func newMockGeocoder(googleKey string) (*geocoder, *httpmock.MockTransport) {
	mt := httpmock.NewMockTransport()
	return &geocoder{
		httpClient: &http.Client{Transport: mt},
		googleKey:  googleKey,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}, mt
}

var riverCity = AddressInput{Street: "1800 28th St", City: "Sacramento", State: "CA", ZipCode: "95816"}

const censusMatchBody = `{
	"result": {
		"addressMatches": [{
			"coordinates": {"x": -121.4767, "y": 38.5616},
			"matchedAddress": "1800 28TH ST, SACRAMENTO, CA, 95816"
		}]
	}
}`

const censusNoMatchBody = `{"result": {"addressMatches": []}}`

const googleMatchBody = `{
	"status": "OK",
	"results": [{
		"geometry": {
			"location": {"lat": 38.5617, "lng": -121.4768},
			"location_type": "ROOFTOP"
		},
		"formatted_address": "1800 28th St, Sacramento, CA 95816, USA"
	}]
}`
