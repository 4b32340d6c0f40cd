package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"

	"backend/internal/models"
)

// Store-level sentinel errors. The repository is the true uniqueness
// enforcement point for short codes; any pre-check done by callers is
// advisory only.
var (
	ErrDuplicateCode = errors.New("short code already exists")
	ErrAliasNotFound = errors.New("alias not found")
)

// AliasRepository interface defines all alias-related database operations
type AliasRepository interface {
	CreateAlias(ctx context.Context, alias *models.Alias) error
	GetAliasByCode(ctx context.Context, shortCode string) (*models.Alias, error)

	// Analytics
	AppendClick(ctx context.Context, shortCode string, click *models.ClickEvent) error
	ListClicks(ctx context.Context, shortCode string) ([]models.ClickEvent, error)
	CountClicks(ctx context.Context, shortCode string) (int64, error)
}

// Repository handles database operations for aliases and their clicks
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository instance
func NewRepository(db *sql.DB) *Repository {
	log.Printf("[REPOSITORY] Initializing alias repository")
	return &Repository{db: db}
}

// Ensure Repository implements AliasRepository interface
var _ AliasRepository = (*Repository)(nil)

// CreateAlias inserts a new alias. The insert is atomic with respect to
// concurrent creators: the unique index on short_code guarantees that
// exactly one of two racing inserts succeeds and the loser gets
// ErrDuplicateCode, without mutating any state.
func (r *Repository) CreateAlias(ctx context.Context, alias *models.Alias) error {
	log.Printf("[REPOSITORY] Creating alias: ShortCode=%s, OriginalURL=%s", alias.ShortCode, alias.OriginalURL)

	query := `
		INSERT INTO aliases (short_code, original_url, created_at, expiry_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		alias.ShortCode,
		alias.OriginalURL,
		alias.CreatedAt,
		alias.ExpiryDate,
	).Scan(&alias.ID)

	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[REPOSITORY] ERROR: Short code collision for %s", alias.ShortCode)
			return fmt.Errorf("%w: %s", ErrDuplicateCode, alias.ShortCode)
		}
		log.Printf("[REPOSITORY] ERROR: Failed to create alias %s: %v", alias.ShortCode, err)
		return fmt.Errorf("failed to create alias: %w", err)
	}

	log.Printf("[REPOSITORY] SUCCESS: Created alias ID=%d, ShortCode=%s", alias.ID, alias.ShortCode)
	alias.LogCreation()
	return nil
}

// GetAliasByCode retrieves an alias by its short code. Clicks are not
// populated; use ListClicks for the click history.
func (r *Repository) GetAliasByCode(ctx context.Context, shortCode string) (*models.Alias, error) {
	log.Printf("[REPOSITORY] Fetching alias by short code: %s", shortCode)

	query := `
		SELECT id, short_code, original_url, created_at, expiry_date
		FROM aliases
		WHERE short_code = $1`

	alias := &models.Alias{}
	err := r.db.QueryRowContext(ctx, query, shortCode).Scan(
		&alias.ID,
		&alias.ShortCode,
		&alias.OriginalURL,
		&alias.CreatedAt,
		&alias.ExpiryDate,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			log.Printf("[REPOSITORY] Alias not found for short code: %s", shortCode)
			return nil, fmt.Errorf("%w: %s", ErrAliasNotFound, shortCode)
		}
		log.Printf("[REPOSITORY] ERROR: Failed to fetch alias %s: %v", shortCode, err)
		return nil, fmt.Errorf("failed to fetch alias: %w", err)
	}

	log.Printf("[REPOSITORY] SUCCESS: Found alias ID=%d, ShortCode=%s", alias.ID, alias.ShortCode)
	return alias, nil
}

// AppendClick atomically appends one click event to an alias's click
// sequence. Each append is a single INSERT, so concurrent redirects
// never lose events; insertion order is preserved by the serial id.
func (r *Repository) AppendClick(ctx context.Context, shortCode string, click *models.ClickEvent) error {
	log.Printf("[REPOSITORY] Appending click for alias %s (referrer=%s, location=%s)",
		shortCode, click.Referrer, click.Location)

	query := `
		INSERT INTO clicks (alias_id, occurred_at, referrer, location)
		SELECT id, $2, $3, $4 FROM aliases WHERE short_code = $1
		RETURNING id, alias_id`

	err := r.db.QueryRowContext(ctx, query,
		shortCode,
		click.Timestamp,
		click.Referrer,
		click.Location,
	).Scan(&click.ID, &click.AliasID)

	if err != nil {
		if err == sql.ErrNoRows {
			log.Printf("[REPOSITORY] ERROR: Cannot append click, alias not found: %s", shortCode)
			return fmt.Errorf("%w: %s", ErrAliasNotFound, shortCode)
		}
		log.Printf("[REPOSITORY] ERROR: Failed to append click for %s: %v", shortCode, err)
		return fmt.Errorf("failed to append click: %w", err)
	}

	log.Printf("[REPOSITORY] SUCCESS: Appended click ID=%d for alias %s", click.ID, shortCode)
	return nil
}

// ListClicks returns the full click history for an alias in insertion order
func (r *Repository) ListClicks(ctx context.Context, shortCode string) ([]models.ClickEvent, error) {
	log.Printf("[REPOSITORY] Listing clicks for alias: %s", shortCode)

	query := `
		SELECT c.id, c.alias_id, c.occurred_at, c.referrer, c.location
		FROM clicks c
		JOIN aliases a ON a.id = c.alias_id
		WHERE a.short_code = $1
		ORDER BY c.id`

	rows, err := r.db.QueryContext(ctx, query, shortCode)
	if err != nil {
		log.Printf("[REPOSITORY] ERROR: Failed to list clicks for %s: %v", shortCode, err)
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}
	defer rows.Close()

	var clicks []models.ClickEvent
	for rows.Next() {
		var click models.ClickEvent
		err := rows.Scan(
			&click.ID,
			&click.AliasID,
			&click.Timestamp,
			&click.Referrer,
			&click.Location,
		)
		if err != nil {
			log.Printf("[REPOSITORY] ERROR: Failed to scan click row: %v", err)
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		clicks = append(clicks, click)
	}

	if err = rows.Err(); err != nil {
		log.Printf("[REPOSITORY] ERROR: Row iteration error: %v", err)
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	log.Printf("[REPOSITORY] SUCCESS: Found %d clicks for alias %s", len(clicks), shortCode)
	return clicks, nil
}

// CountClicks returns the total number of clicks recorded for an alias
func (r *Repository) CountClicks(ctx context.Context, shortCode string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM clicks c
		JOIN aliases a ON a.id = c.alias_id
		WHERE a.short_code = $1`

	var count int64
	err := r.db.QueryRowContext(ctx, query, shortCode).Scan(&count)
	if err != nil {
		log.Printf("[REPOSITORY] ERROR: Failed to count clicks for %s: %v", shortCode, err)
		return 0, fmt.Errorf("failed to count clicks: %w", err)
	}

	return count, nil
}

// Health check specific to repository
func (r *Repository) Health(ctx context.Context) error {
	query := `SELECT 1`
	var result int

	err := r.db.QueryRowContext(ctx, query).Scan(&result)
	if err != nil {
		log.Printf("[REPOSITORY] ERROR: Health check failed: %v", err)
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

// isUniqueViolation checks if an error is a unique constraint violation.
// PostgreSQL reports these with SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
