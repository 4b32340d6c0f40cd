package shortener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"backend/internal/database"
	"backend/internal/geo"
	"backend/internal/models"
)

// MockRepository implements database.AliasRepository for testing. It is
// safe for concurrent use so the creation-race and concurrent-append
// scenarios exercise the same guarantees the real store provides.
type MockRepository struct {
	mu      sync.Mutex
	aliases map[string]*models.Alias
	clicks  map[string][]models.ClickEvent
	nextID  int64

	failAppend bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		aliases: make(map[string]*models.Alias),
		clicks:  make(map[string][]models.ClickEvent),
		nextID:  1,
	}
}

func (m *MockRepository) CreateAlias(ctx context.Context, alias *models.Alias) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.aliases[alias.ShortCode]; exists {
		return fmt.Errorf("%w: %s", database.ErrDuplicateCode, alias.ShortCode)
	}

	alias.ID = m.nextID
	m.nextID++

	stored := *alias
	m.aliases[alias.ShortCode] = &stored
	return nil
}

func (m *MockRepository) GetAliasByCode(ctx context.Context, shortCode string) (*models.Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alias, exists := m.aliases[shortCode]; exists {
		copied := *alias
		return &copied, nil
	}
	return nil, fmt.Errorf("%w: %s", database.ErrAliasNotFound, shortCode)
}

func (m *MockRepository) AppendClick(ctx context.Context, shortCode string, click *models.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAppend {
		return errors.New("simulated storage failure")
	}

	if _, exists := m.aliases[shortCode]; !exists {
		return fmt.Errorf("%w: %s", database.ErrAliasNotFound, shortCode)
	}

	click.ID = m.nextID
	m.nextID++
	m.clicks[shortCode] = append(m.clicks[shortCode], *click)
	return nil
}

func (m *MockRepository) ListClicks(ctx context.Context, shortCode string) ([]models.ClickEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ClickEvent(nil), m.clicks[shortCode]...), nil
}

func (m *MockRepository) CountClicks(ctx context.Context, shortCode string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.clicks[shortCode])), nil
}

// Test helper functions

func setupTestService(t *testing.T) (Service, *MockRepository) {
	t.Helper()

	repo := NewMockRepository()
	config := DefaultConfig()
	config.BaseURL = "http://test.ly"

	svc, err := NewService(repo, geo.Static{Location: "US"}, nil, config)
	if err != nil {
		t.Fatalf("NewService() failed: %v", err)
	}
	return svc, repo
}

func setClock(svc Service, now time.Time) {
	svc.(*service).nowFunc = func() time.Time { return now }
}

func drainClicks(t *testing.T, svc Service) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed while draining clicks: %v", err)
	}
}

func TestCreateShortURL(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		request   *models.CreateAliasRequest
		wantError error
	}{
		{
			name:    "valid URL",
			request: &models.CreateAliasRequest{URL: "https://example.com"},
		},
		{
			name:    "valid URL with shortcode",
			request: &models.CreateAliasRequest{URL: "https://example.com/path", ShortCode: "mycustom"},
		},
		{
			name:      "relative URL",
			request:   &models.CreateAliasRequest{URL: "/just/a/path"},
			wantError: models.ErrInvalidURL,
		},
		{
			name:      "unsupported scheme",
			request:   &models.CreateAliasRequest{URL: "ftp://example.com/file"},
			wantError: models.ErrInvalidURL,
		},
		{
			name:      "empty URL",
			request:   &models.CreateAliasRequest{URL: ""},
			wantError: models.ErrInvalidURL,
		},
		{
			name:      "shortcode with invalid characters",
			request:   &models.CreateAliasRequest{URL: "https://example.com", ShortCode: "my code!"},
			wantError: models.ErrInvalidShortCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.CreateShortURL(ctx, tt.request)

			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Errorf("CreateShortURL() error = %v, expected %v", err, tt.wantError)
				}
				return
			}

			if err != nil {
				t.Errorf("CreateShortURL() unexpected error: %v", err)
				return
			}

			if resp.ShortLink == "" {
				t.Errorf("CreateShortURL() did not set ShortLink")
			}

			if tt.request.ShortCode != "" && !strings.HasSuffix(resp.ShortLink, "/"+tt.request.ShortCode) {
				t.Errorf("CreateShortURL() ShortLink = %s, expected suffix /%s",
					resp.ShortLink, tt.request.ShortCode)
			}

			if _, err := time.Parse(time.RFC3339, resp.Expiry); err != nil {
				t.Errorf("CreateShortURL() Expiry %q is not RFC3339: %v", resp.Expiry, err)
			}
		})
	}
}

func TestCreateShortURL_DistinctGeneratedCodes(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	first, err := svc.CreateShortURL(ctx, &models.CreateAliasRequest{URL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	second, err := svc.CreateShortURL(ctx, &models.CreateAliasRequest{URL: "https://example.com/b"})
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	if first.ShortLink == second.ShortLink {
		t.Errorf("two creations yielded the same short link: %s", first.ShortLink)
	}
}

func TestCreateShortURL_CodeConflict(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()

	req := &models.CreateAliasRequest{URL: "https://example.com/original", ShortCode: "taken"}
	if _, err := svc.CreateShortURL(ctx, req); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := svc.CreateShortURL(ctx, &models.CreateAliasRequest{
		URL:       "https://example.com/other",
		ShortCode: "taken",
	})
	if !errors.Is(err, ErrCodeConflict) {
		t.Errorf("second create error = %v, expected %v", err, ErrCodeConflict)
	}

	// The original alias must be untouched by the failed creation
	alias, err := repo.GetAliasByCode(ctx, "taken")
	if err != nil {
		t.Fatalf("original alias disappeared: %v", err)
	}
	if alias.OriginalURL != "https://example.com/original" {
		t.Errorf("original alias was overwritten: OriginalURL = %s", alias.OriginalURL)
	}
}

func TestCreateShortURL_ExpiryComputation(t *testing.T) {
	tests := []struct {
		name        string
		validity    int
		wantMinutes int
	}{
		{"explicit validity", 60, 60},
		{"omitted validity defaults to 30", 0, 30},
		{"negative validity coerced to default", -5, 30},
		{"one minute", 1, 1},
	}

	t0 := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := setupTestService(t)
			setClock(svc, t0)

			resp, err := svc.CreateShortURL(context.Background(), &models.CreateAliasRequest{
				URL:       "https://example.com",
				Validity:  tt.validity,
				ShortCode: "expiry",
			})
			if err != nil {
				t.Fatalf("CreateShortURL() failed: %v", err)
			}

			wantExpiry := t0.Add(time.Duration(tt.wantMinutes) * time.Minute)
			if resp.Expiry != wantExpiry.Format(time.RFC3339) {
				t.Errorf("Expiry = %s, expected %s", resp.Expiry, wantExpiry.Format(time.RFC3339))
			}

			alias, _ := repo.GetAliasByCode(context.Background(), "expiry")
			if !alias.ExpiryDate.Equal(alias.CreatedAt.Add(time.Duration(tt.wantMinutes) * time.Minute)) {
				t.Errorf("ExpiryDate != CreatedAt + %dm (got %s, created %s)",
					tt.wantMinutes, alias.ExpiryDate, alias.CreatedAt)
			}
		})
	}
}

func TestCreateShortURL_ConcurrentSameShortcode(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	const attempts = 10

	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateShortURL(ctx, &models.CreateAliasRequest{
				URL:       "https://example.com",
				ShortCode: "contested",
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	conflicts := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrCodeConflict):
			conflicts++
		default:
			t.Errorf("unexpected error from concurrent create: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("got %d successes, expected exactly 1", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("got %d conflicts, expected %d", conflicts, attempts-1)
	}
}

func TestResolve(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateShortURL(ctx, &models.CreateAliasRequest{
		URL:       "https://example.com/target",
		ShortCode: "resolveme",
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	alias, err := svc.Resolve(ctx, "resolveme")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if alias.OriginalURL != "https://example.com/target" {
		t.Errorf("Resolve() OriginalURL = %s, expected https://example.com/target", alias.OriginalURL)
	}

	if _, err := svc.Resolve(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve() on missing code error = %v, expected %v", err, ErrNotFound)
	}
}

func TestResolve_ExpiryBoundary(t *testing.T) {
	t0 := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name    string
		at      time.Time
		expired bool
	}{
		{"well before expiry", t0.Add(30 * time.Second), false},
		{"one instant before expiry", t0.Add(time.Minute - time.Nanosecond), false},
		{"exactly at expiry", t0.Add(time.Minute), true},
		{"after expiry", t0.Add(90 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := setupTestService(t)
			setClock(svc, t0)

			if _, err := svc.CreateShortURL(ctx, &models.CreateAliasRequest{
				URL:       "https://example.com/page",
				Validity:  1,
				ShortCode: "abc123",
			}); err != nil {
				t.Fatalf("create failed: %v", err)
			}

			setClock(svc, tt.at)
			_, err := svc.Resolve(ctx, "abc123")

			if tt.expired {
				if !errors.Is(err, ErrExpired) {
					t.Errorf("Resolve() error = %v, expected %v", err, ErrExpired)
				}
			} else if err != nil {
				t.Errorf("Resolve() unexpected error: %v", err)
			}
		})
	}
}

func TestRecordVisit(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateShortURL(ctx, &models.CreateAliasRequest{
		URL:       "https://example.com",
		ShortCode: "visited",
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	svc.RecordVisit("visited", &ClickContext{Referrer: "https://news.example", ClientAddr: "93.184.216.34"})
	svc.RecordVisit("visited", &ClickContext{}) // no referrer, no address
	drainClicks(t, svc)

	clicks, _ := repo.ListClicks(ctx, "visited")
	if len(clicks) != 2 {
		t.Fatalf("got %d clicks, expected 2", len(clicks))
	}

	if clicks[0].Referrer != "https://news.example" {
		t.Errorf("first click Referrer = %s, expected https://news.example", clicks[0].Referrer)
	}
	if clicks[0].Location != "US" {
		t.Errorf("first click Location = %s, expected US", clicks[0].Location)
	}

	// Missing referrer and unresolvable address fall back to defaults
	if clicks[1].Referrer != "Direct" {
		t.Errorf("second click Referrer = %s, expected Direct", clicks[1].Referrer)
	}
	if clicks[1].Location != "US" {
		t.Errorf("second click Location = %s, expected US", clicks[1].Location)
	}
}

func TestRecordVisit_StorageFailureIsSwallowed(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateShortURL(ctx, &models.CreateAliasRequest{
		URL:       "https://example.com",
		ShortCode: "flaky",
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	repo.mu.Lock()
	repo.failAppend = true
	repo.mu.Unlock()

	// Must not panic or surface an error anywhere
	svc.RecordVisit("flaky", &ClickContext{Referrer: "https://ref.example"})
	drainClicks(t, svc)

	count, _ := repo.CountClicks(ctx, "flaky")
	if count != 0 {
		t.Errorf("got %d clicks after failed append, expected 0", count)
	}

	// The alias itself must still resolve normally
	if _, err := svc.Resolve(ctx, "flaky"); err != nil {
		t.Errorf("Resolve() after failed analytics write: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateShortURL(ctx, &models.CreateAliasRequest{
		URL:       "https://example.com/stats",
		ShortCode: "counted",
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const visits = 5
	for i := 0; i < visits; i++ {
		svc.RecordVisit("counted", &ClickContext{Referrer: fmt.Sprintf("https://ref%d.example", i)})
		drainClicks(t, svc) // serialize appends so order is deterministic
	}

	stats, err := svc.GetStats(ctx, "counted")
	if err != nil {
		t.Fatalf("GetStats() unexpected error: %v", err)
	}

	if stats.TotalClicks != visits {
		t.Errorf("TotalClicks = %d, expected %d", stats.TotalClicks, visits)
	}
	if len(stats.Clicks) != visits {
		t.Fatalf("len(Clicks) = %d, expected %d", len(stats.Clicks), visits)
	}
	for i, click := range stats.Clicks {
		want := fmt.Sprintf("https://ref%d.example", i)
		if click.Referrer != want {
			t.Errorf("Clicks[%d].Referrer = %s, expected %s (order must match visits)", i, click.Referrer, want)
		}
	}
	if stats.OriginalURL != "https://example.com/stats" {
		t.Errorf("OriginalURL = %s, expected https://example.com/stats", stats.OriginalURL)
	}
}

func TestGetStats_NotFound(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.GetStats(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStats() error = %v, expected %v", err, ErrNotFound)
	}
}

func TestGetStats_ExpiredAliasStillReadable(t *testing.T) {
	t0 := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	svc, _ := setupTestService(t)
	setClock(svc, t0)
	ctx := context.Background()

	if _, err := svc.CreateShortURL(ctx, &models.CreateAliasRequest{
		URL:       "https://example.com",
		Validity:  1,
		ShortCode: "briefly",
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	svc.RecordVisit("briefly", &ClickContext{Referrer: "https://ref.example"})
	drainClicks(t, svc)

	// Jump past expiry: redirect is gone, stats remain
	setClock(svc, t0.Add(time.Hour))

	if _, err := svc.Resolve(ctx, "briefly"); !errors.Is(err, ErrExpired) {
		t.Fatalf("Resolve() error = %v, expected %v", err, ErrExpired)
	}

	stats, err := svc.GetStats(ctx, "briefly")
	if err != nil {
		t.Fatalf("GetStats() on expired alias: %v", err)
	}
	if stats.TotalClicks != 1 {
		t.Errorf("TotalClicks = %d, expected 1", stats.TotalClicks)
	}
}

// Benchmark tests
func BenchmarkCreateShortURL(b *testing.B) {
	repo := NewMockRepository()
	config := DefaultConfig()
	svc, err := NewService(repo, geo.Static{}, nil, config)
	if err != nil {
		b.Fatalf("NewService() failed: %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.CreateShortURL(ctx, &models.CreateAliasRequest{
			URL: fmt.Sprintf("https://example.com/%d", i),
		})
	}
}
