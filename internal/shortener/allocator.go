package shortener

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	"backend/internal/database"
	"backend/internal/models"
)

const (
	// Base62 character set: a-z, A-Z, 0-9
	base62Chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// 62^7 possible codes keeps collision probability negligible at
	// expected scale
	defaultCodeLength = 7

	minCodeLength = 4
	maxCodeLength = 14
)

var ErrInvalidCodeLength = errors.New("code length must be between 4 and 14 characters")

// Generator produces URL-safe random short codes using crypto/rand
type Generator struct {
	codeLength int
}

// NewGenerator creates a generator producing codes of the given length
func NewGenerator(length int) (*Generator, error) {
	if length < minCodeLength || length > maxCodeLength {
		return nil, ErrInvalidCodeLength
	}
	return &Generator{codeLength: length}, nil
}

// Generate creates a cryptographically secure random Base62 code
func (g *Generator) Generate() (string, error) {
	alphabetSize := big.NewInt(int64(len(base62Chars)))

	var b strings.Builder
	b.Grow(g.codeLength)
	for i := 0; i < g.codeLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		b.WriteByte(base62Chars[n.Int64()])
	}

	return b.String(), nil
}

// CodeLength returns the configured code length
func (g *Generator) CodeLength() int {
	return g.codeLength
}

// Allocator resolves the short code for a new alias: it validates
// caller-supplied candidates and generates fresh codes otherwise. The
// allocator itself has no side effects; its uniqueness checks are
// advisory and the store's unique index remains the real enforcement
// point at insert time.
type Allocator struct {
	repo       database.AliasRepository
	generator  *Generator
	maxRetries int
}

// NewAllocator creates an allocator backed by the given repository
func NewAllocator(repo database.AliasRepository, generator *Generator, maxRetries int) *Allocator {
	return &Allocator{
		repo:       repo,
		generator:  generator,
		maxRetries: maxRetries,
	}
}

// Allocate returns the short code to use for a new alias. A provided
// candidate is validated and checked for availability but never
// altered; an empty candidate triggers generation with a bounded
// generate-check-retry loop.
func (a *Allocator) Allocate(ctx context.Context, candidate string) (string, error) {
	if candidate != "" {
		return a.validateCandidate(ctx, candidate)
	}
	return a.generateUnique(ctx)
}

func (a *Allocator) validateCandidate(ctx context.Context, candidate string) (string, error) {
	log.Printf("[ALLOCATOR] Validating candidate shortcode: %s", candidate)

	if err := models.ValidateShortCode(candidate); err != nil {
		log.Printf("[ALLOCATOR] ERROR: Candidate validation failed: %v", err)
		return "", err
	}

	_, err := a.repo.GetAliasByCode(ctx, candidate)
	if err == nil {
		log.Printf("[ALLOCATOR] ERROR: Candidate already in use: %s", candidate)
		return "", ErrCodeConflict
	}
	if !errors.Is(err, database.ErrAliasNotFound) {
		log.Printf("[ALLOCATOR] ERROR: Availability check failed for %s: %v", candidate, err)
		return "", fmt.Errorf("failed to check candidate availability: %w", err)
	}

	return candidate, nil
}

func (a *Allocator) generateUnique(ctx context.Context) (string, error) {
	collisions := 0

	for attempt := 0; attempt < a.maxRetries; attempt++ {
		code, err := a.generator.Generate()
		if err != nil {
			return "", err
		}

		_, err = a.repo.GetAliasByCode(ctx, code)
		if errors.Is(err, database.ErrAliasNotFound) {
			if collisions > 0 {
				log.Printf("[ALLOCATOR] SUCCESS: Generated unique code after %d collisions: %s", collisions, code)
			}
			return code, nil
		}
		if err != nil {
			log.Printf("[ALLOCATOR] ERROR: Availability check failed for %s: %v", code, err)
			return "", fmt.Errorf("failed to check code availability: %w", err)
		}

		collisions++
		log.Printf("[ALLOCATOR] WARNING: Collision %d/%d for generated code: %s",
			attempt+1, a.maxRetries, code)
	}

	log.Printf("[ALLOCATOR] ERROR: Too many collisions after %d attempts", a.maxRetries)
	return "", ErrAllocationExhausted
}
