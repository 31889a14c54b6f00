// Package geocode resolves free-text village names to coordinates and
// administrative labels, validates them against the configured service
// boundary, and caches successful resolutions. This file holds the provider
// contract and the HTTP client for a Google-style geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// AddressComponent is one structured piece of a geocoded address.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Candidate is a single geocoding result returned by a provider.
type Candidate struct {
	FormattedAddress string
	Components       []AddressComponent
	Lat              float64
	Lng              float64
	// PrecisionTier is the provider's location precision:
	// "APPROXIMATE" < "RANGE_INTERPOLATED" < "GEOMETRIC_CENTER" < "ROOFTOP".
	PrecisionTier string
}

// Provider performs one geocoding lookup. Implementations must honor the
// context deadline and return an empty slice (not an error) for zero results.
type Provider interface {
	Lookup(ctx context.Context, query, regionHint string) ([]Candidate, error)
}

// HTTPProvider calls a Google-geocoding-shaped JSON endpoint.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider constructs a provider client with a bounded per-request
// timeout. Retries are intentionally absent: template fallback in the
// Validator is the only retry the resolution path performs.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// geocodeResponse mirrors the provider's wire format.
type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress  string             `json:"formatted_address"`
		AddressComponents []AddressComponent `json:"address_components"`
		Geometry          struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
}

// Lookup issues a single geocoding request for query, optionally biased by a
// region hint (ccTLD code). A "ZERO_RESULTS" status yields an empty slice.
func (p *HTTPProvider) Lookup(ctx context.Context, query, regionHint string) ([]Candidate, error) {
	q := url.Values{}
	q.Set("address", query)
	if regionHint != "" {
		q.Set("region", regionHint)
	}
	if p.apiKey != "" {
		q.Set("key", p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building geocode request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling geocode provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode provider returned status %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding geocode response: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("geocode provider status %q", body.Status)
	}

	out := make([]Candidate, 0, len(body.Results))
	for _, r := range body.Results {
		out = append(out, Candidate{
			FormattedAddress: r.FormattedAddress,
			Components:       r.AddressComponents,
			Lat:              r.Geometry.Location.Lat,
			Lng:              r.Geometry.Location.Lng,
			PrecisionTier:    r.Geometry.LocationType,
		})
	}
	return out, nil
}
