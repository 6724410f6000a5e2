// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package trade provides the HTTP client for the upstream trade search API.
package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// UserAgent identifies this service to the trade API. The upstream requires
// a descriptive User-Agent on every request.
const UserAgent = "exilebridge/1.0"

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the trade client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeTimeout
	ErrTypeConnection
	ErrTypeBadStatus
	ErrTypeInvalidResponse
)

// ErrTimeout is returned when a search exceeds its deadline.
var ErrTimeout = &ClientError{Type: ErrTypeTimeout, Message: "trade search timed out"}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return errors.Is(err, ErrTimeout)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the trade client.
type ClientConfig struct {
	// BaseURL is the trade API base URL.
	BaseURL string

	// Timeout for search requests (default: 10s).
	Timeout time.Duration

	// MaxRPS is the outbound token bucket refill rate (default: 0.75/s).
	// The upstream publishes a hard quota; staying under it here means the
	// service cannot be blocked upstream even if admission control is
	// misconfigured.
	MaxRPS float64

	// Burst is the outbound token bucket size (default: 5).
	Burst int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "https://www.pathofexile.com/api/trade2",
		Timeout: 10 * time.Second,
		MaxRPS:  0.75,
		Burst:   5,
	}
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// SearchQuery is the query portion of a trade search.
type SearchQuery struct {
	Name   string       `json:"name,omitempty"`
	Type   string       `json:"type,omitempty"`
	Status SearchStatus `json:"status"`
}

// SearchStatus restricts which listings are searched.
type SearchStatus struct {
	Option string `json:"option"` // "online" restricts to online sellers
}

// SearchSort orders search results.
type SearchSort struct {
	Price string `json:"price"` // "asc" sorts cheapest first
}

// SearchRequest is the request body for /search/{league}.
type SearchRequest struct {
	Query SearchQuery `json:"query"`
	Sort  SearchSort  `json:"sort"`
}

// SearchResponse is the response from /search/{league}.
type SearchResponse struct {
	// ID identifies the search for later result fetches.
	ID string `json:"id"`
	// Total is the number of matching listings.
	Total int `json:"total"`
	// Result holds listing identifiers, cheapest first.
	Result []string `json:"result"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the trade search API.
//
// The Client is safe for concurrent use. Outbound requests pass through a
// token bucket so the process as a whole stays under the upstream quota no
// matter how many requests are in flight.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new trade client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new trade client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "https://www.pathofexile.com/api/trade2"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRPS == 0 {
		config.MaxRPS = 0.75
	}
	if config.Burst == 0 {
		config.Burst = 5
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.MaxRPS), config.Burst),
	}
}

// Search issues one trade search for the given item name and type in the
// given league, restricted to online listings and sorted cheapest first.
func (c *Client) Search(ctx context.Context, name, itemType, league string) (*SearchResponse, error) {
	reqBody := SearchRequest{
		Query: SearchQuery{
			Name:   name,
			Type:   itemType,
			Status: SearchStatus{Option: "online"},
		},
		Sort: SearchSort{Price: "asc"},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal search request", Cause: err}
	}

	// Pace the outbound call. Wait respects the caller's deadline, so a
	// drained bucket surfaces as a timeout rather than an unbounded stall.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, ErrTimeout
	}

	url := fmt.Sprintf("%s/search/%s", c.config.BaseURL, league)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ErrTimeout
		}
		return nil, &ClientError{Type: ErrTypeConnection, Message: "trade API unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeBadStatus,
			Message: "trade search failed: " + resp.Status,
		}
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode search response", Cause: err}
	}

	return &result, nil
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}
