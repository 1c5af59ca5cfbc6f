// Package server provides the HTTP API for decision letters.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/db"
	"github.com/jonathan/decision-letters/internal/explain"
	"github.com/jonathan/decision-letters/internal/lint"
	"github.com/jonathan/decision-letters/internal/pipeline"
	"github.com/jonathan/decision-letters/internal/server/ratelimit"
	"github.com/jonathan/decision-letters/internal/types"
)

// Decisions generates decisions
type Decisions interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	GenerateBatch(ctx context.Context, req pipeline.BatchRequest) (*pipeline.BatchResult, error)
}

// Records reads stored decisions, receipts and audit entries. *db.DB satisfies it.
type Records interface {
	Ping(ctx context.Context) error
	GetDecision(ctx context.Context, id uuid.UUID) (*db.Decision, error)
	GetReceiptByDecision(ctx context.Context, decisionID uuid.UUID) (*types.ExplainableReceipt, error)
	ListAuditEntries(ctx context.Context, entityType, entityID string, limit int) ([]types.AuditEntry, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	decisions   Decisions
	records     Records
	cards       *explain.Generator
	detector    *bias.Detector
	linter      *lint.Linter
	rateLimiter *ratelimit.Limiter
}

// Config holds server configuration
type Config struct {
	Port      int
	RateLimit *ratelimit.Config
}

// Deps are the collaborators behind the routes. Detector and Linter default
// to the built-in rule tables.
type Deps struct {
	Decisions Decisions
	Records   Records
	Cards     *explain.Generator
	Detector  *bias.Detector
	Linter    *lint.Linter
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Decisions == nil {
		return nil, errors.New("server: decisions service is required")
	}
	if deps.Records == nil {
		return nil, errors.New("server: records store is required")
	}
	if deps.Cards == nil {
		return nil, errors.New("server: card generator is required")
	}
	if deps.Detector == nil {
		deps.Detector = bias.NewDetector()
	}
	if deps.Linter == nil {
		deps.Linter = lint.NewLinter(deps.Detector)
	}

	s := &Server{
		decisions:   deps.Decisions,
		records:     deps.Records,
		cards:       deps.Cards,
		detector:    deps.Detector,
		linter:      deps.Linter,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Decisions
	mux.HandleFunc("POST /v1/decisions", s.handleCreateDecision)
	mux.HandleFunc("POST /v1/decisions/stream", s.handleCreateDecisionStream)
	mux.HandleFunc("POST /v1/decisions/batch", s.handleCreateBatch)
	mux.HandleFunc("GET /v1/decisions/{id}", s.handleGetDecision)
	mux.HandleFunc("GET /v1/decisions/{id}/receipt", s.handleGetReceipt)
	mux.HandleFunc("GET /v1/decisions/{id}/audit", s.handleListAudit)

	// Stateless checks
	mux.HandleFunc("POST /v1/templates/lint", s.handleLintTemplate)
	mux.HandleFunc("POST /v1/bias/check", s.handleBiasCheck)
	mux.HandleFunc("POST /v1/receipts/verify", s.handleVerifyReceipt)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // generation runs up to the provider timeout per attempt
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped request handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for requests and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		s.rateLimiter.Stop()
		return fmt.Errorf("server error: %w", err)
	}
	log.Println("[server] shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.rateLimiter.Stop()
	log.Println("[server] stopped")
	return nil
}

// Close releases background resources without serving
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key, X-Actor")
		w.Header().Set("Access-Control-Expose-Headers", "Idempotency-Key, Retry-After")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients that exceed their route limit
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth reports server and database health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.records.Ping(ctx); err != nil {
		log.Printf("[server] health check failed: %v", err)
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[server] error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, ErrorBody{Error: message})
}

// clientID identifies the caller by the IP in RemoteAddr
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	body := ErrorBody{Error: "rate limit exceeded", Kind: "rate_limited"}
	if info.RetryAfter > 0 {
		seconds := max(int(info.RetryAfter.Seconds()), 1)
		body.RetryAfter = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}
	log.Printf("[rate-limit] limit exceeded: limit=%d reset=%s", info.Limit, info.ResetTime.Format(time.RFC3339))
	s.jsonResponse(w, http.StatusTooManyRequests, body)
}
