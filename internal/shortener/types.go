package shortener

import (
	"errors"
	"time"
)

// Config holds configuration for the alias service
type Config struct {
	BaseURL           string        `json:"base_url"`
	DefaultCodeLength int           `json:"default_code_length"`
	MaxRetries        int           `json:"max_retries"`
	ClickTimeout      time.Duration `json:"click_timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "http://localhost:8080",
		DefaultCodeLength: 7,
		MaxRetries:        5,
		ClickTimeout:      5 * time.Second,
	}
}

// Service errors
var (
	ErrNotFound            = errors.New("URL not found")
	ErrExpired             = errors.New("URL has expired")
	ErrCodeConflict        = errors.New("shortcode already in use")
	ErrAllocationExhausted = errors.New("could not allocate a unique shortcode")
)

// ClickContext carries the parts of a redirect request that feed the
// click record. It is deliberately small: analytics only keeps the
// referrer and a coarse location derived from the client address.
type ClickContext struct {
	Referrer   string
	ClientAddr string
}
