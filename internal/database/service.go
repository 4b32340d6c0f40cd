package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"backend/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

// DBConfig holds database connection configuration
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string

	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// DefaultDBConfig returns default pool settings
func DefaultDBConfig() *DBConfig {
	return &DBConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// LoadDBConfigFromEnv loads database configuration from environment variables
func LoadDBConfigFromEnv() *DBConfig {
	config := DefaultDBConfig()

	config.Host = os.Getenv("SHORTURL_DB_HOST")
	config.Port = os.Getenv("SHORTURL_DB_PORT")
	config.Username = os.Getenv("SHORTURL_DB_USERNAME")
	config.Password = os.Getenv("SHORTURL_DB_PASSWORD")
	config.Database = os.Getenv("SHORTURL_DB_DATABASE")

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if maxOpen, err := strconv.Atoi(maxOpenStr); err == nil && maxOpen > 0 {
			config.MaxOpenConns = maxOpen
			log.Printf("[DATABASE] Using custom MaxOpenConns: %d", maxOpen)
		}
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if maxIdle, err := strconv.Atoi(maxIdleStr); err == nil && maxIdle > 0 {
			config.MaxIdleConns = maxIdle
			log.Printf("[DATABASE] Using custom MaxIdleConns: %d", maxIdle)
		}
	}

	if lifetimeStr := os.Getenv("DB_CONN_MAX_LIFETIME"); lifetimeStr != "" {
		if lifetime, err := time.ParseDuration(lifetimeStr); err == nil {
			config.ConnMaxLifetime = lifetime
			log.Printf("[DATABASE] Using custom ConnMaxLifetime: %s", lifetime)
		}
	}

	if idleTimeStr := os.Getenv("DB_CONN_MAX_IDLE_TIME"); idleTimeStr != "" {
		if idleTime, err := time.ParseDuration(idleTimeStr); err == nil {
			config.ConnMaxIdleTime = idleTime
			log.Printf("[DATABASE] Using custom ConnMaxIdleTime: %s", idleTime)
		}
	}

	return config
}

// Service combines connection management and repository access. It is
// constructed explicitly at process start and closed on shutdown; there
// is no package-level connection state.
type Service interface {
	// Connection management
	Health() map[string]string
	Close() error
	EnsureSchema(ctx context.Context) error

	// Repository access - exposes all alias repository methods
	AliasRepository
}

// service implements the Service interface
type service struct {
	db         *sql.DB
	repository *Repository
	name       string
}

// New creates a new database service using environment configuration
func New() (Service, error) {
	return NewWithConfig(LoadDBConfigFromEnv())
}

// NewWithConfig creates a new database service with custom configuration
func NewWithConfig(config *DBConfig) (Service, error) {
	log.Printf("[DATABASE] Initializing database service with config: MaxOpen=%d, MaxIdle=%d",
		config.MaxOpenConns, config.MaxIdleConns)

	if config.Port == "" {
		return nil, fmt.Errorf("SHORTURL_DB_PORT environment variable is required")
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	log.Printf("[DATABASE] Connecting to database: %s@%s:%s/%s",
		config.Username, config.Host, config.Port, config.Database)

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("[DATABASE] Successfully initialized database service")
	return &service{
		db:         db,
		repository: NewRepository(db),
		name:       config.Database,
	}, nil
}

// Health checks the health of the database connection
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats := make(map[string]string)

	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Printf("[DATABASE] ERROR: Health check failed: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "Database is healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.OpenConnections > 20 {
		stats["warning"] = "High number of open connections"
		log.Printf("[DATABASE] WARNING: High connection count: %d", dbStats.OpenConnections)
	}

	return stats
}

// Close closes the database connection
func (s *service) Close() error {
	log.Printf("[DATABASE] Closing database connection to: %s", s.name)

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("[DATABASE] ERROR: Failed to close database connection: %v", err)
			return err
		}
	}

	log.Printf("[DATABASE] Successfully closed database connection")
	return nil
}

// Repository method delegation - makes Service implement AliasRepository

func (s *service) CreateAlias(ctx context.Context, alias *models.Alias) error {
	return s.repository.CreateAlias(ctx, alias)
}

func (s *service) GetAliasByCode(ctx context.Context, shortCode string) (*models.Alias, error) {
	return s.repository.GetAliasByCode(ctx, shortCode)
}

func (s *service) AppendClick(ctx context.Context, shortCode string, click *models.ClickEvent) error {
	return s.repository.AppendClick(ctx, shortCode, click)
}

func (s *service) ListClicks(ctx context.Context, shortCode string) ([]models.ClickEvent, error) {
	return s.repository.ListClicks(ctx, shortCode)
}

func (s *service) CountClicks(ctx context.Context, shortCode string) (int64, error) {
	return s.repository.CountClicks(ctx, shortCode)
}

