package shortener

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"backend/internal/database"
	"backend/internal/geo"
	"backend/internal/logsink"
	"backend/internal/models"
)

// Service defines the alias lifecycle and analytics operations
type Service interface {
	// Core shortening operations
	CreateShortURL(ctx context.Context, req *models.CreateAliasRequest) (*models.CreateAliasResponse, error)

	// Access and redirect operations
	Resolve(ctx context.Context, shortCode string) (*models.Alias, error)
	RecordVisit(shortCode string, clickCtx *ClickContext)

	// Analytics operations
	GetStats(ctx context.Context, shortCode string) (*models.StatsResponse, error)

	// Lifecycle
	Shutdown(ctx context.Context) error
}

// service implements the Service interface
type service struct {
	repo      database.AliasRepository
	allocator *Allocator
	geo       geo.Resolver
	sink      *logsink.Client
	config    *Config

	nowFunc func() time.Time

	// Tracks in-flight best-effort click appends so shutdown can drain them
	clickWG sync.WaitGroup
}

// NewService creates a new alias service
func NewService(repo database.AliasRepository, geoResolver geo.Resolver, sink *logsink.Client, config *Config) (Service, error) {
	log.Printf("[SHORTENER] Initializing alias service")

	if config == nil {
		config = DefaultConfig()
		log.Printf("[SHORTENER] Using default configuration")
	}

	generator, err := NewGenerator(config.DefaultCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	log.Printf("[SHORTENER] Service initialized - BaseURL: %s, CodeLength: %d, MaxRetries: %d",
		config.BaseURL, config.DefaultCodeLength, config.MaxRetries)

	return &service{
		repo:      repo,
		allocator: NewAllocator(repo, generator, config.MaxRetries),
		geo:       geoResolver,
		sink:      sink,
		config:    config,
		nowFunc:   time.Now,
	}, nil
}

// CreateShortURL validates the request, allocates a short code and
// persists the alias. Two concurrent creations with the same shortcode
// result in exactly one success; the race loser surfaces as
// ErrCodeConflict like any other conflict.
func (s *service) CreateShortURL(ctx context.Context, req *models.CreateAliasRequest) (*models.CreateAliasResponse, error) {
	log.Printf("[SHORTENER] Creating short URL for: %s", req.URL)

	if err := models.ValidateOriginalURL(req.URL); err != nil {
		s.logError("service", fmt.Sprintf("create rejected, invalid url: %v", err))
		return nil, err
	}

	validityMinutes := models.ResolveValidity(req.Validity)

	shortCode, err := s.allocator.Allocate(ctx, req.ShortCode)
	if err != nil {
		s.logError("service", fmt.Sprintf("allocation failed for %q: %v", req.ShortCode, err))
		return nil, err
	}

	now := s.nowFunc()
	alias := &models.Alias{
		ShortCode:   shortCode,
		OriginalURL: req.URL,
		CreatedAt:   now,
		ExpiryDate:  now.Add(time.Duration(validityMinutes) * time.Minute),
	}

	if err := s.repo.CreateAlias(ctx, alias); err != nil {
		// A second creator may win the race after the allocator's
		// advisory check passed. That is a normal, reportable conflict.
		if errors.Is(err, database.ErrDuplicateCode) {
			log.Printf("[SHORTENER] WARNING: Lost creation race for shortcode: %s", shortCode)
			s.logError("service", fmt.Sprintf("creation race lost for %s", shortCode))
			return nil, ErrCodeConflict
		}
		log.Printf("[SHORTENER] ERROR: Failed to create alias: %v", err)
		s.logError("repository", fmt.Sprintf("failed to persist alias %s: %v", shortCode, err))
		return nil, fmt.Errorf("failed to create alias: %w", err)
	}

	log.Printf("[SHORTENER] SUCCESS: Created alias ShortCode=%s, Expires=%s",
		alias.ShortCode, alias.ExpiryDate.Format(time.RFC3339))
	s.logInfo("service", fmt.Sprintf("created shortcode %s", alias.ShortCode))

	return alias.ToCreateResponse(s.config.BaseURL), nil
}

// Resolve looks up an alias for redirection, enforcing expiry. An
// expired alias is read-only for redirection but remains readable for
// statistics through GetStats.
func (s *service) Resolve(ctx context.Context, shortCode string) (*models.Alias, error) {
	log.Printf("[SHORTENER] Resolving alias: %s", shortCode)

	alias, err := s.repo.GetAliasByCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, database.ErrAliasNotFound) {
			return nil, ErrNotFound
		}
		s.logError("repository", fmt.Sprintf("lookup failed for %s: %v", shortCode, err))
		return nil, fmt.Errorf("failed to resolve alias: %w", err)
	}

	if alias.IsExpiredAt(s.nowFunc()) {
		log.Printf("[SHORTENER] Alias expired: %s (expired at %s)",
			shortCode, alias.ExpiryDate.Format(time.RFC3339))
		return nil, ErrExpired
	}

	return alias, nil
}

// RecordVisit appends a click record for a successful redirect. It is
// strictly best-effort: the append runs in its own goroutine with its
// own deadline, and failure is logged and swallowed. The redirect
// response never waits on, nor fails because of, analytics.
func (s *service) RecordVisit(shortCode string, clickCtx *ClickContext) {
	if clickCtx == nil {
		clickCtx = &ClickContext{}
	}

	s.clickWG.Add(1)
	go func() {
		defer s.clickWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ClickTimeout)
		defer cancel()

		location := s.geo.Country(ctx, clickCtx.ClientAddr)
		click := models.NewClickEvent(s.nowFunc(), clickCtx.Referrer, location)

		if err := s.repo.AppendClick(ctx, shortCode, &click); err != nil {
			log.Printf("[SHORTENER] WARNING: Failed to record click for %s: %v", shortCode, err)
			s.logError("service", fmt.Sprintf("click append failed for %s: %v", shortCode, err))
		}
	}()
}

// GetStats returns the full statistics view for an alias, including
// the ordered click history. Expiry gates redirection, not
// observability: stats for expired aliases still succeed.
func (s *service) GetStats(ctx context.Context, shortCode string) (*models.StatsResponse, error) {
	log.Printf("[SHORTENER] Getting stats for: %s", shortCode)

	alias, err := s.repo.GetAliasByCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, database.ErrAliasNotFound) {
			return nil, ErrNotFound
		}
		s.logError("repository", fmt.Sprintf("stats lookup failed for %s: %v", shortCode, err))
		return nil, fmt.Errorf("failed to fetch alias: %w", err)
	}

	clicks, err := s.repo.ListClicks(ctx, shortCode)
	if err != nil {
		s.logError("repository", fmt.Sprintf("click listing failed for %s: %v", shortCode, err))
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}

	log.Printf("[SHORTENER] SUCCESS: Stats retrieved for %s - TotalClicks: %d", shortCode, len(clicks))
	return alias.ToStatsResponse(clicks), nil
}

// Shutdown waits for in-flight click appends to finish, bounded by ctx
func (s *service) Shutdown(ctx context.Context) error {
	log.Printf("[SHORTENER] Draining pending click appends")

	done := make(chan struct{})
	go func() {
		s.clickWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[SHORTENER] All pending clicks drained")
		return nil
	case <-ctx.Done():
		log.Printf("[SHORTENER] WARNING: Shutdown deadline reached with clicks still pending")
		return ctx.Err()
	}
}

// logError mirrors an operational error to the remote sink. The sink
// is fire-and-forget and optional; this never affects the caller's
// response.
func (s *service) logError(pkg, message string) {
	if s.sink != nil {
		s.sink.Log("backend", "error", pkg, message)
	}
}

func (s *service) logInfo(pkg, message string) {
	if s.sink != nil {
		s.sink.Log("backend", "info", pkg, message)
	}
}

// ParseClickContext extracts the click-relevant parts of a redirect
// request: the Referer header and the client's network address
func ParseClickContext(r *http.Request) *ClickContext {
	if r == nil {
		return nil
	}
	return &ClickContext{
		Referrer:   r.Header.Get("Referer"),
		ClientAddr: extractIPAddress(r),
	}
}

// extractIPAddress extracts the real IP address from HTTP request
func extractIPAddress(r *http.Request) string {
	// Try X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP (client IP)
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Try X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}
