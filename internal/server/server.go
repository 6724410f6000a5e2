// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/exilebridge/internal/chat"
	"github.com/jeranaias/exilebridge/internal/pricecheck"
	"github.com/jeranaias/exilebridge/internal/ratelimit"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8081

	// DefaultProxyTimeout is the timeout for chat proxy requests.
	DefaultProxyTimeout = 30 * time.Second

	// MaxRequestBodySize is the maximum size for request body to prevent DoS (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxItemTextLength is the maximum length for pasted item text.
	MaxItemTextLength = 100000

	// ServiceName identifies this service in health responses.
	ServiceName = "exilebridge"

	// Version is the server version.
	Version = "1.0.0"
)

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats tracks server usage counters.
type Stats struct {
	TotalRequests   int64     `json:"total_requests"`
	PriceChecks     int64     `json:"price_checks"`
	DegradedPricing int64     `json:"degraded_pricing"`
	DegradedInsight int64     `json:"degraded_insight"`
	MarketReports   int64     `json:"market_reports"`
	ChatProxied     int64     `json:"chat_proxied"`
	Rejected        int64     `json:"rejected"`
	StartTime       time.Time `json:"start_time"`
	mu              sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		StartTime: time.Now(),
	}
}

// RecordCheck records one completed price check and its degradation markers.
func (s *Stats) RecordCheck(pricingFallback, insightFallback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalRequests++
	s.PriceChecks++
	if pricingFallback {
		s.DegradedPricing++
	}
	if insightFallback {
		s.DegradedInsight++
	}
}

// RecordMarket records one completed market report.
func (s *Stats) RecordMarket() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalRequests++
	s.MarketReports++
}

// RecordChat records one proxied chat message.
func (s *Stats) RecordChat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalRequests++
	s.ChatProxied++
}

// RecordRejected records one request rejected by admission control.
func (s *Stats) RecordRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Rejected++
}

// GetStats returns a copy of the current counters.
func (s *Stats) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		TotalRequests:   s.TotalRequests,
		PriceChecks:     s.PriceChecks,
		DegradedPricing: s.DegradedPricing,
		DegradedInsight: s.DegradedInsight,
		MarketReports:   s.MarketReports,
		ChatProxied:     s.ChatProxied,
		Rejected:        s.Rejected,
		StartTime:       s.StartTime,
	}
}

// Uptime returns the server uptime duration.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP API server for the bridge.
type Server struct {
	port   int
	router *http.ServeMux
	server *http.Server

	checker      *pricecheck.Checker
	chatClient   *chat.Client
	limiter      *ratelimit.Limiter
	stats        *Stats
	logger       *zap.Logger
	proxyTimeout time.Duration

	mu sync.RWMutex
}

// NewServer creates a new Server with the specified port.
// If port is 0, the default port (8081) is used.
func NewServer(port int, logger *zap.Logger) *Server {
	if port == 0 {
		port = DefaultPort
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		port:         port,
		router:       http.NewServeMux(),
		limiter:      ratelimit.New(ratelimit.DefaultLimit, ratelimit.DefaultWindow),
		stats:        NewStats(),
		logger:       logger,
		proxyTimeout: DefaultProxyTimeout,
	}

	s.setupRoutes()
	return s
}

// WithChecker sets the price-check orchestrator.
func (s *Server) WithChecker(checker *pricecheck.Checker) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checker = checker
	return s
}

// WithChatClient sets the chat backend client used by the proxy endpoint
// and the health probe.
func (s *Server) WithChatClient(client *chat.Client) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatClient = client
	return s
}

// WithLimiter sets a custom admission limiter.
func (s *Server) WithLimiter(limiter *ratelimit.Limiter) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter = limiter
	return s
}

// WithProxyTimeout sets the chat proxy timeout.
func (s *Server) WithProxyTimeout(d time.Duration) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.proxyTimeout = d
	}
	return s
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// Stats returns the server's usage counters.
func (s *Server) Stats() *Stats {
	return s.stats
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/price-check", s.handlePriceCheck)
	s.router.HandleFunc("GET /api/market/{league}", s.handleMarket)
	s.router.HandleFunc("POST /api/chat", s.handleChat)

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// Handler returns the fully assembled handler with the middleware chain
// applied. Exposed for tests; Start uses it for the listening server.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(DefaultCORSConfig()),
		LoggingMiddleware(s.logger),
		s.admissionMiddleware(),
	)(s.router)
}

// admissionMiddleware wraps RateLimitMiddleware so rejections are counted.
func (s *Server) admissionMiddleware() func(http.Handler) http.Handler {
	limit := RateLimitMiddleware(s.limiter, s.logger)
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newResponseWriter(w)
			limited.ServeHTTP(wrapped, r)
			if wrapped.statusCode == http.StatusTooManyRequests {
				s.stats.RecordRejected()
			}
		})
	}
}

// ============================================================================
// PRICE CHECK HANDLER
// ============================================================================

// PriceCheckRequest is the price check request payload.
type PriceCheckRequest struct {
	ItemText string `json:"itemText"`
	League   string `json:"league,omitempty"`
}

// handlePriceCheck handles POST /api/price-check.
func (s *Server) handlePriceCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req PriceCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return
		}
		s.logger.Warn("INVALID_REQUEST_BODY", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	if req.ItemText == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Item text is required",
		})
		return
	}

	if len(req.ItemText) > MaxItemTextLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Item text exceeds maximum length of %d", MaxItemTextLength))
		return
	}

	s.mu.RLock()
	checker := s.checker
	s.mu.RUnlock()

	if checker == nil {
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp, err := checker.Check(r.Context(), req.ItemText, req.League)
	if err != nil {
		// Raw item text never reaches the log.
		s.logger.Error("PRICE_CHECK_FAILED",
			zap.String("league", req.League),
			zap.Int("item_length", len(req.ItemText)),
			zap.Error(err),
		)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Price check failed",
		})
		return
	}

	s.stats.RecordCheck(resp.Pricing.Fallback, resp.AIInsights.Fallback)
	s.writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// MARKET HANDLER
// ============================================================================

// handleMarket handles GET /api/market/{league}.
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	league := r.PathValue("league")
	currency := r.URL.Query().Get("currency")

	s.mu.RLock()
	checker := s.checker
	s.mu.RUnlock()

	if checker == nil {
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	report := checker.Market(r.Context(), league, currency)

	s.stats.RecordMarket()
	s.writeJSON(w, http.StatusOK, report)
}

// ============================================================================
// CHAT PROXY HANDLER
// ============================================================================

// ChatProxyRequest is the chat proxy request payload.
type ChatProxyRequest struct {
	Message string `json:"message"`
	Context struct {
		ConversationID  string `json:"conversationId,omitempty"`
		ParentMessageID string `json:"parentMessageId,omitempty"`
		Model           string `json:"model,omitempty"`
	} `json:"context"`
}

// ChatProxyResponse wraps the backend reply for the caller.
type ChatProxyResponse struct {
	Success   bool                  `json:"success"`
	Response  *chat.MessageResponse `json:"response,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// handleChat handles POST /api/chat. The proxy has no degraded mode: the
// backend reply is the entire payload, so a backend failure is a 500.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("INVALID_REQUEST_BODY", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	if req.Message == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Message is required",
		})
		return
	}

	s.mu.RLock()
	client := s.chatClient
	timeout := s.proxyTimeout
	s.mu.RUnlock()

	if client == nil {
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp, err := client.SendMessageAs(ctx, chat.MessageRequest{
		Text:            req.Message,
		Model:           req.Context.Model,
		ConversationID:  req.Context.ConversationID,
		ParentMessageID: req.Context.ParentMessageID,
	})
	if err != nil {
		s.logger.Error("CHAT_PROXY_FAILED", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Chat backend communication failed",
		})
		return
	}

	s.stats.RecordChat()
	s.writeJSON(w, http.StatusOK, ChatProxyResponse{
		Success:   true,
		Response:  resp,
		Timestamp: time.Now().UTC(),
	})
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string    `json:"status"`
	Service    string    `json:"service"`
	Version    string    `json:"version"`
	ChatStatus string    `json:"chat_status"`
	Timestamp  time.Time `json:"timestamp"`
}

// handleHealth handles GET /health. The endpoint always answers 200: a
// failed chat backend probe degrades the reported status, not the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "healthy",
		Service:   ServiceName,
		Version:   Version,
		Timestamp: time.Now().UTC(),
	}

	s.mu.RLock()
	client := s.chatClient
	s.mu.RUnlock()

	if client != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := client.CheckHealth(ctx); err == nil {
			health.ChatStatus = "ok"
		} else {
			health.ChatStatus = "unavailable"
			health.Status = "degraded"
		}
	} else {
		health.ChatStatus = "not_configured"
	}

	s.writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// STATS HANDLER
// ============================================================================

// StatsResponse represents the usage statistics response.
type StatsResponse struct {
	TotalRequests   int64 `json:"total_requests"`
	PriceChecks     int64 `json:"price_checks"`
	DegradedPricing int64 `json:"degraded_pricing"`
	DegradedInsight int64 `json:"degraded_insight"`
	MarketReports   int64 `json:"market_reports"`
	ChatProxied     int64 `json:"chat_proxied"`
	Rejected        int64 `json:"rejected"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.GetStats()

	s.writeJSON(w, http.StatusOK, StatsResponse{
		TotalRequests:   stats.TotalRequests,
		PriceChecks:     stats.PriceChecks,
		DegradedPricing: stats.DegradedPricing,
		DegradedInsight: stats.DegradedInsight,
		MarketReports:   stats.MarketReports,
		ChatProxied:     stats.ChatProxied,
		Rejected:        stats.Rejected,
		UptimeSeconds:   int64(stats.Uptime().Seconds()),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("SERVER_START",
		zap.String("addr", addr),
		zap.String("version", Version),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("SERVER_SHUTDOWN")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
