package discovery

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// ConfigError reports a missing credential or setting. It is fatal and
// never retried.
type ConfigError struct {
	Component string
	Setting   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("discovery: %s is not configured: set %s", e.Component, e.Setting)
}

// ProviderError reports a search provider that kept failing until retries
// ran out.
type ProviderError struct {
	Provider   string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("discovery: %s search failed after %d attempts (status %d): %v",
			e.Provider, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("discovery: %s search failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

var (
	// ErrExtractionFailure marks a document whose extraction failed. The
	// document contributes zero candidates; the run continues.
	ErrExtractionFailure = eris.New("discovery: extraction failure")
	// ErrGeocodingFailure marks a candidate dropped because it could not be
	// geocoded.
	ErrGeocodingFailure = eris.New("discovery: geocoding failure")
)

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
