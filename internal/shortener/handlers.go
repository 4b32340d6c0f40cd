package shortener

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"backend/internal/models"
)

// Handler wraps the alias service for HTTP dispatch. The routing layer
// stays thin: request decoding, status mapping and redirects only.
type Handler struct {
	service Service
}

// NewHandler creates a new HTTP handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// errorResponse is the wire shape for every error
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[HANDLER] ERROR: Failed to encode JSON response: %v", err)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// CreateShortURL handles POST /shorturls
func (h *Handler) CreateShortURL(w http.ResponseWriter, r *http.Request) {
	log.Printf("[HANDLER] CreateShortURL request from %s", r.RemoteAddr)

	var req models.CreateAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	resp, err := h.service.CreateShortURL(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidURL) || errors.Is(err, models.ErrURLTooLong):
			writeError(w, http.StatusBadRequest, "Invalid URL format")
		case errors.Is(err, models.ErrInvalidShortCode) || errors.Is(err, models.ErrShortCodeTooLong):
			writeError(w, http.StatusBadRequest, "Invalid shortcode format")
		case errors.Is(err, ErrCodeConflict):
			writeError(w, http.StatusConflict, "Shortcode already in use")
		default:
			log.Printf("[HANDLER] ERROR: CreateShortURL failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	log.Printf("[HANDLER] SUCCESS: Created short link %s", resp.ShortLink)
	writeJSON(w, http.StatusCreated, resp)
}

// RedirectURL handles GET /{shortCode}
func (h *Handler) RedirectURL(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")
	log.Printf("[HANDLER] Redirect request for: %s from %s", shortCode, r.RemoteAddr)

	alias, err := h.service.Resolve(r.Context(), shortCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "URL not found")
		case errors.Is(err, ErrExpired):
			writeError(w, http.StatusGone, "URL has expired")
		default:
			log.Printf("[HANDLER] ERROR: Resolve failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	// Analytics is advisory: the visit is recorded after the resolve
	// succeeds and the redirect does not wait for it
	h.service.RecordVisit(shortCode, ParseClickContext(r))

	log.Printf("[HANDLER] SUCCESS: Redirecting %s -> %s", shortCode, alias.OriginalURL)
	http.Redirect(w, r, alias.OriginalURL, http.StatusFound)
}

// GetStats handles GET /shorturls/{shortCode}
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")
	log.Printf("[HANDLER] GetStats request for: %s", shortCode)

	stats, err := h.service.GetStats(r.Context(), shortCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "URL not found")
		default:
			log.Printf("[HANDLER] ERROR: GetStats failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	log.Printf("[HANDLER] SUCCESS: Retrieved stats for %s (%d clicks)", shortCode, stats.TotalClicks)
	writeJSON(w, http.StatusOK, stats)
}

// RegisterRoutes registers all alias routes with the given router
func (h *Handler) RegisterRoutes(r chi.Router) {
	log.Printf("[HANDLER] Registering short URL routes")

	r.Post("/shorturls", h.CreateShortURL)
	r.Get("/shorturls/{shortCode}", h.GetStats)

	// Redirect route must be last to avoid shadowing the API routes
	r.Get("/{shortCode}", h.RedirectURL)
}
