package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Location is the approximate position of a validator.
type Location struct {
	City    string `json:"city"`
	Region  string `json:"state_prov"`
	Country string `json:"country_name"`
}

// String formats the location as "city, region country".
// An empty location formats as "".
func (l Location) String() string {
	if l.City == "" && l.Region == "" && l.Country == "" {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%s, %s %s", l.City, l.Region, l.Country))
}

// Locator resolves an IP address to an approximate location.
// Lookups are best-effort: callers fall back to an empty location on error.
type Locator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}

// NopLocator never resolves anything. Used when no API key is configured.
type NopLocator struct{}

// Locate always returns an empty location.
func (NopLocator) Locate(context.Context, string) (Location, error) {
	return Location{}, nil
}

// IPGeoLocator queries the ipgeolocation.io ipgeo endpoint.
type IPGeoLocator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewIPGeoLocator creates a locator with its own HTTP client bounded by timeout.
func NewIPGeoLocator(endpoint, apiKey string, timeout time.Duration) *IPGeoLocator {
	return &IPGeoLocator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Locate looks up ip.
func (l *IPGeoLocator) Locate(ctx context.Context, ip string) (Location, error) {
	if ip == "" {
		return Location{}, fmt.Errorf("no ip to locate")
	}

	q := url.Values{}
	q.Set("apiKey", l.apiKey)
	q.Set("ip", ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Location{}, fmt.Errorf("failed to build geo request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return Location{}, fmt.Errorf("failed to decode geo response: %w", err)
	}
	return loc, nil
}
