package geo

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"backend/internal/cache"
	"backend/internal/models"
)

// Resolver maps a client network address to a coarse location label.
// Implementations never return an error and never block the caller
// beyond a strict timeout: any failure or miss yields "Unknown".
type Resolver interface {
	Country(ctx context.Context, ip string) string
}

const (
	defaultLookupTimeout = 2 * time.Second
	defaultCacheSize     = 4096
	defaultCacheTTL      = time.Hour
)

// HTTPResolver resolves locations through an ipwho.is-style JSON API,
// memoizing results per address
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	cache   *cache.TTLCache[string, string]
}

// NewHTTPResolver creates a resolver against the given lookup endpoint,
// e.g. "https://ipwho.is"
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultLookupTimeout},
		cache:   cache.New[string, string](defaultCacheSize, defaultCacheTTL),
	}
}

// Country returns a coarse country label for the address, or "Unknown"
func (r *HTTPResolver) Country(ctx context.Context, ip string) string {
	if ip == "" || isPrivateIP(ip) {
		return models.UnknownLocation
	}

	if country, ok := r.cache.Get(ip); ok {
		return country
	}

	country := r.lookup(ctx, ip)
	if country != models.UnknownLocation {
		r.cache.Put(ip, country)
	}
	return country
}

func (r *HTTPResolver) lookup(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, defaultLookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+ip, nil)
	if err != nil {
		return models.UnknownLocation
	}

	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("[GEO] WARNING: Lookup failed for %s: %v", ip, err)
		return models.UnknownLocation
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[GEO] WARNING: Lookup for %s returned status %d", ip, resp.StatusCode)
		return models.UnknownLocation
	}

	var out struct {
		Success     bool   `json:"success"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("[GEO] WARNING: Failed to decode lookup response for %s: %v", ip, err)
		return models.UnknownLocation
	}
	if !out.Success {
		return models.UnknownLocation
	}

	country := strings.TrimSpace(out.Country)
	if country == "" {
		country = strings.ToUpper(strings.TrimSpace(out.CountryCode))
	}
	if country == "" {
		return models.UnknownLocation
	}

	return country
}

// isPrivateIP reports whether the address is unparseable, loopback, or
// in a private range. Such addresses can never resolve upstream.
func isPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast()
}

// Static is a fixed-answer resolver for local development and tests
type Static struct {
	Location string
}

func (s Static) Country(ctx context.Context, ip string) string {
	if s.Location == "" {
		return models.UnknownLocation
	}
	return s.Location
}
