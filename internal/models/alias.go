package models

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Alias represents a shortened URL in the system. Clicks are owned by
// the alias and are only ever appended to, never removed or reordered.
type Alias struct {
	ID          int64        `json:"-" db:"id"` // Don't expose ID in JSON
	ShortCode   string       `json:"shortCode" db:"short_code"`
	OriginalURL string       `json:"originalUrl" db:"original_url"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	ExpiryDate  time.Time    `json:"expiryDate" db:"expiry_date"`
	Clicks      []ClickEvent `json:"clicks,omitempty" db:"-"`
}

// ClickEvent represents a single recorded visit to an alias
type ClickEvent struct {
	ID        int64     `json:"-" db:"id"`
	AliasID   int64     `json:"-" db:"alias_id"`
	Timestamp time.Time `json:"timestamp" db:"occurred_at"`
	Referrer  string    `json:"referrer" db:"referrer"`
	Location  string    `json:"location" db:"location"`
}

// CreateAliasRequest represents the request to create a new short URL
type CreateAliasRequest struct {
	URL       string `json:"url"`
	Validity  int    `json:"validity,omitempty"` // minutes
	ShortCode string `json:"shortcode,omitempty"`
}

// CreateAliasResponse represents the response after creating a short URL
type CreateAliasResponse struct {
	ShortLink string `json:"shortLink"`
	Expiry    string `json:"expiry"` // ISO-8601
}

// StatsResponse represents the aggregated statistics for an alias.
// Expired aliases still produce full stats; expiry only gates redirects.
type StatsResponse struct {
	OriginalURL string       `json:"originalUrl"`
	ShortCode   string       `json:"shortCode"`
	CreatedAt   time.Time    `json:"createdAt"`
	ExpiryDate  time.Time    `json:"expiryDate"`
	TotalClicks int          `json:"totalClicks"`
	Clicks      []ClickEvent `json:"clicks"`
}

// Validation constants
const (
	MaxURLLength       = 2048
	MinShortCodeLength = 1
	MaxShortCodeLength = 50

	// DefaultValidityMinutes is applied when the caller omits the
	// validity or supplies a non-positive value
	DefaultValidityMinutes = 30

	// DefaultReferrer is recorded when the redirect request carries no
	// Referer header
	DefaultReferrer = "Direct"

	// UnknownLocation is recorded when the geo lookup fails or misses
	UnknownLocation = "Unknown"
)

// Validation errors
var (
	ErrInvalidURL        = errors.New("invalid URL format")
	ErrURLTooLong        = errors.New("URL is too long")
	ErrInvalidShortCode  = errors.New("invalid shortcode format")
	ErrShortCodeTooLong  = errors.New("shortcode is too long")
	ErrShortCodeRequired = errors.New("shortcode must not be empty")
)

// Short codes may contain letters, numbers, hyphens and underscores.
// All of these are URL-path-safe.
var shortCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateOriginalURL validates a target URL for shortening. The URL
// must be a syntactically valid absolute http(s) URI.
func ValidateOriginalURL(originalURL string) error {
	if originalURL == "" {
		log.Printf("[VALIDATION] ERROR: Empty URL provided")
		return ErrInvalidURL
	}

	if len(originalURL) > MaxURLLength {
		log.Printf("[VALIDATION] ERROR: URL too long: %d chars (max %d)", len(originalURL), MaxURLLength)
		return ErrURLTooLong
	}

	parsed, err := url.Parse(originalURL)
	if err != nil {
		log.Printf("[VALIDATION] ERROR: Failed to parse URL: %v", err)
		return ErrInvalidURL
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		log.Printf("[VALIDATION] ERROR: Invalid URL scheme: %q", parsed.Scheme)
		return ErrInvalidURL
	}

	if parsed.Host == "" {
		log.Printf("[VALIDATION] ERROR: URL missing host")
		return ErrInvalidURL
	}

	return nil
}

// ValidateShortCode validates a caller-supplied short code. The code is
// returned to the caller unchanged on success; no normalization is
// applied that would silently alter caller intent.
func ValidateShortCode(code string) error {
	if code == "" {
		return ErrShortCodeRequired
	}

	if len(code) > MaxShortCodeLength {
		log.Printf("[VALIDATION] ERROR: Shortcode too long: %d chars (max %d)", len(code), MaxShortCodeLength)
		return ErrShortCodeTooLong
	}

	if !shortCodeRegex.MatchString(code) {
		log.Printf("[VALIDATION] ERROR: Shortcode contains invalid characters: %s", code)
		return ErrInvalidShortCode
	}

	return nil
}

// ResolveValidity resolves the requested validity in minutes. Omitted,
// zero and negative values all fall back to the default.
func ResolveValidity(minutes int) int {
	if minutes <= 0 {
		return DefaultValidityMinutes
	}
	return minutes
}

// IsExpiredAt reports whether the alias is expired at the given
// instant. Expiry is inclusive: now >= expiryDate means expired.
func (a *Alias) IsExpiredAt(now time.Time) bool {
	return !now.Before(a.ExpiryDate)
}

// ShortLink builds the fully-qualified short link for this alias
func (a *Alias) ShortLink(baseURL string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), a.ShortCode)
}

// ToCreateResponse converts the alias to the creation response format
func (a *Alias) ToCreateResponse(baseURL string) *CreateAliasResponse {
	return &CreateAliasResponse{
		ShortLink: a.ShortLink(baseURL),
		Expiry:    a.ExpiryDate.UTC().Format(time.RFC3339),
	}
}

// ToStatsResponse converts the alias and its click history to the
// statistics response format. TotalClicks is derived from the click
// sequence so the two can never disagree.
func (a *Alias) ToStatsResponse(clicks []ClickEvent) *StatsResponse {
	if clicks == nil {
		clicks = []ClickEvent{}
	}
	return &StatsResponse{
		OriginalURL: a.OriginalURL,
		ShortCode:   a.ShortCode,
		CreatedAt:   a.CreatedAt,
		ExpiryDate:  a.ExpiryDate,
		TotalClicks: len(clicks),
		Clicks:      clicks,
	}
}

// NewClickEvent builds a click event from a redirect request's context,
// applying the documented defaults
func NewClickEvent(timestamp time.Time, referrer, location string) ClickEvent {
	if referrer == "" {
		referrer = DefaultReferrer
	}
	if location == "" {
		location = UnknownLocation
	}
	return ClickEvent{
		Timestamp: timestamp,
		Referrer:  referrer,
		Location:  location,
	}
}

// LogCreation logs the creation of a new alias
func (a *Alias) LogCreation() {
	log.Printf("[ALIAS_CREATED] ID: %d, ShortCode: %s, OriginalURL: %s, Expires: %s",
		a.ID, a.ShortCode, a.OriginalURL, a.ExpiryDate.Format(time.RFC3339))
}
