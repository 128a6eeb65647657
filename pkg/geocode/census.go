package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBenchmark  = "Public_AR_Current"
)

// censusOneLineResponse is the JSON response from the Census single-address API.
type censusOneLineResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchedAddress string `json:"matchedAddress"`
}

// geocodeCensus geocodes a single address using the Census one-line API.
func (g *geocoder) geocodeCensus(ctx context.Context, addr AddressInput) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	oneLine := formatOneLine(addr)
	if oneLine == "" {
		return &Result{Matched: false, Source: "census"}, nil
	}
	params := url.Values{
		"address":   {oneLine},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}

	reqURL := censusOneLineURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census read body")
	}

	var censusResp censusOneLineResponse
	if err := json.Unmarshal(body, &censusResp); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}

	if len(censusResp.Result.AddressMatches) == 0 {
		return &Result{Matched: false, Source: "census"}, nil
	}

	match := censusResp.Result.AddressMatches[0]
	return &Result{
		Latitude:  match.Coordinates.Y,
		Longitude: match.Coordinates.X,
		Source:    "census",
		Quality:   "range", // one-line matches interpolate along the TIGER segment
		Matched:   true,
	}, nil
}

// formatOneLine formats an address as a single line for Census API.
func formatOneLine(addr AddressInput) string {
	parts := []string{addr.Street, addr.City, addr.State, addr.ZipCode}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
