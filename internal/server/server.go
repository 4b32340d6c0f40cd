package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"backend/internal/database"
	"backend/internal/geo"
	"backend/internal/logsink"
	"backend/internal/shortener"
)

type Server struct {
	port int

	db      database.Service
	handler *shortener.Handler
}

// App wraps the HTTP server and its collaborators, constructed
// explicitly at startup and torn down in order on shutdown
type App struct {
	HTTPServer *http.Server

	svc  shortener.Service
	sink *logsink.Client
	db   database.Service
}

// NewApp builds the full application: database, logging sink, geo
// resolver, alias service and HTTP server
func NewApp() (*App, error) {
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Printf("[SERVER] WARNING: Invalid PORT value '%s', using default 8080: %v", portStr, err)
		port = 8080
	}

	db, err := database.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	sinkConfig := logsink.DefaultConfig()
	if url := os.Getenv("LOG_API_URL"); url != "" {
		sinkConfig.BaseURL = url
	}
	sinkConfig.AccessToken = os.Getenv("LOG_API_TOKEN")
	sink := logsink.New(sinkConfig)

	geoURL := os.Getenv("GEO_API_URL")
	if geoURL == "" {
		geoURL = "https://ipwho.is"
	}
	geoResolver := geo.NewHTTPResolver(geoURL)

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", port)
	}

	config := shortener.DefaultConfig()
	config.BaseURL = baseURL

	svc, err := shortener.NewService(db, geoResolver, sink, config)
	if err != nil {
		sink.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize shortener service: %w", err)
	}

	srv := &Server{
		port:    port,
		db:      db,
		handler: shortener.NewHandler(svc),
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.port),
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return &App{
		HTTPServer: httpServer,
		svc:        svc,
		sink:       sink,
		db:         db,
	}, nil
}

// ListenAndServe starts the HTTP server
func (a *App) ListenAndServe() error {
	return a.HTTPServer.ListenAndServe()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	log.Println("[APP] Starting graceful shutdown...")

	// Shutdown HTTP server first
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		log.Printf("[APP] HTTP server shutdown error: %v", err)
	}

	// Drain pending click appends
	if err := a.svc.Shutdown(ctx); err != nil {
		log.Printf("[APP] Shortener service shutdown error: %v", err)
	}

	// Flush the remote logging queue
	a.sink.Close()

	// Close database connection last
	if err := a.db.Close(); err != nil {
		log.Printf("[APP] Database close error: %v", err)
	}

	log.Println("[APP] Graceful shutdown complete")
	return nil
}
