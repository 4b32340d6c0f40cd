// Package logsink is a fire-and-forget client for the remote evaluation
// logging service. Every call is fail-open: invalid parameters cause
// the log to be silently skipped, and transport failures are observed
// locally and discarded. Callers never handle a logging error.
package logsink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Allowed parameter values. Package names are keyed by stack, with a
// shared cross-stack set.
var (
	validStacks = map[string]bool{"backend": true, "frontend": true}

	validLevels = map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}

	backendPackages = map[string]bool{
		"cache": true, "controller": true, "cron_job": true, "db": true,
		"domain": true, "handler": true, "repository": true, "route": true,
		"service": true,
	}

	frontendPackages = map[string]bool{
		"api": true, "component": true, "hook": true, "page": true,
		"state": true, "style": true,
	}

	commonPackages = map[string]bool{
		"auth": true, "config": true, "middleware": true, "utils": true,
	}
)

// Validate checks log parameters against the service contract. It is a
// pure function; Log uses it to decide whether to skip a send.
func Validate(stack, level, pkg, message string) error {
	stack = strings.ToLower(stack)
	level = strings.ToLower(level)
	pkg = strings.ToLower(pkg)

	if !validStacks[stack] {
		return fmt.Errorf("invalid stack %q: must be backend or frontend", stack)
	}

	if !validLevels[level] {
		return fmt.Errorf("invalid level %q: must be debug, info, warn, error or fatal", level)
	}

	if !commonPackages[pkg] {
		stackPackages := backendPackages
		if stack == "frontend" {
			stackPackages = frontendPackages
		}
		if !stackPackages[pkg] {
			return fmt.Errorf("invalid package %q for stack %q", pkg, stack)
		}
	}

	if message == "" {
		return fmt.Errorf("message is required")
	}

	return nil
}

type entry struct {
	Stack   string `json:"stack"`
	Level   string `json:"level"`
	Package string `json:"package"`
	Message string `json:"message"`
}

// Config holds logging sink configuration
type Config struct {
	BaseURL     string
	AccessToken string
	QueueSize   int
	SendTimeout time.Duration
}

// DefaultConfig returns the default sink configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://20.244.56.144/evaluation-service/logs",
		QueueSize:   256,
		SendTimeout: 5 * time.Second,
	}
}

// Client sends validated log entries to the remote service through a
// bounded queue drained by a single worker. A full queue drops the
// entry rather than blocking the caller.
type Client struct {
	baseURL string
	token   string
	enabled bool

	http  *http.Client
	queue chan entry
	wg    sync.WaitGroup

	// mu orders queue sends against Close: no send may start once
	// closed is set, so closing the channel is safe
	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
}

// New creates a logging sink client. A missing access token disables
// remote sends entirely; Log calls still succeed.
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultConfig().SendTimeout
	}

	c := &Client{
		baseURL: config.BaseURL,
		token:   config.AccessToken,
		enabled: config.AccessToken != "",
		http:    &http.Client{Timeout: config.SendTimeout},
		queue:   make(chan entry, config.QueueSize),
	}

	if !c.enabled {
		log.Printf("[LOGSINK] WARNING: No access token provided, remote logging disabled")
		return c
	}

	c.wg.Add(1)
	go c.worker()

	log.Printf("[LOGSINK] Remote logging enabled - endpoint: %s, queue: %d", c.baseURL, config.QueueSize)
	return c
}

// Log queues one log entry for delivery. Invalid parameters cause the
// call to be skipped; a full queue drops the entry. Neither case is an
// error the caller can observe.
func (c *Client) Log(stack, level, pkg, message string) {
	if err := Validate(stack, level, pkg, message); err != nil {
		log.Printf("[LOGSINK] WARNING: Validation failed, skipping: %v", err)
		return
	}

	if !c.enabled {
		return
	}

	e := entry{
		Stack:   strings.ToLower(stack),
		Level:   strings.ToLower(level),
		Package: strings.ToLower(pkg),
		Message: message,
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		log.Printf("[LOGSINK] WARNING: Sink closed, dropping log entry")
		return
	}

	select {
	case c.queue <- e:
	default:
		log.Printf("[LOGSINK] WARNING: Queue full, dropping log entry")
	}
}

// Close stops accepting entries and drains the queue. Log calls after
// Close drop their entries; they never fail or panic.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.queue)
	})
	if c.enabled {
		c.wg.Wait()
	}
}

// worker drains the queue, one POST per entry
func (c *Client) worker() {
	defer c.wg.Done()

	for e := range c.queue {
		c.send(e)
	}
}

func (c *Client) send(e entry) {
	body, err := json.Marshal(e)
	if err != nil {
		log.Printf("[LOGSINK] WARNING: Failed to marshal log entry: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("[LOGSINK] WARNING: Failed to build request: %v", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[LOGSINK] WARNING: No response from logging service: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[LOGSINK] WARNING: Logging service returned status %d", resp.StatusCode)
	}
}
