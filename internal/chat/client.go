// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the HTTP client for the conversational backend.
//
// The backend speaks a LibreChat-style message API: each send posts a text
// message and receives the model's reply plus conversation identifiers. The
// client threads those identifiers into subsequent sends so the backend can
// keep conversational context across calls.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// UserAgent identifies this service to the chat backend.
const UserAgent = "exilebridge/1.0"

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the chat client.
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

// ErrTimeout is returned when the backend does not answer in time.
var ErrTimeout = &ClientError{Type: ErrTypeTimeout, Message: "chat backend timed out"}

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

// ClientConfig holds configuration options for the chat client.
type ClientConfig struct {
	// BaseURL is the chat backend base URL (default: http://localhost:3080).
	BaseURL string

	// Model is the model identifier sent with each message.
	Model string

	// Timeout for message requests (default: 30s). Generative responses
	// are slow; callers with tighter budgets pass a context deadline.
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "http://localhost:3080",
		Model:   "Multimodal Lite",
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// MessageRequest is the request body for /api/messages.
type MessageRequest struct {
	Text            string `json:"text"`
	Model           string `json:"model"`
	ConversationID  string `json:"conversationId,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
}

// MessageResponse is the response from /api/messages. Different backend
// versions answer with either "text" or "response"; Content() folds them.
type MessageResponse struct {
	Text           string `json:"text"`
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Model          string `json:"model"`
}

// Content returns the reply text, whichever field carried it.
func (r *MessageResponse) Content() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Response
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the chat backend.
//
// The Client is safe for concurrent use. Conversation identifiers from each
// response are remembered and sent with the next message so multi-turn
// context survives across calls.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client

	mu              sync.Mutex
	conversationID  string
	parentMessageID string
}

// NewClient creates a new chat client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new chat client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:3080"
	}
	if config.Model == "" {
		config.Model = "Multimodal Lite"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// SendMessage posts one message to the backend and returns its reply.
// The stored conversation context is attached and refreshed on success.
func (c *Client) SendMessage(ctx context.Context, text string) (*MessageResponse, error) {
	c.mu.Lock()
	reqBody := MessageRequest{
		Text:            text,
		Model:           c.config.Model,
		ConversationID:  c.conversationID,
		ParentMessageID: c.parentMessageID,
	}
	c.mu.Unlock()

	resp, err := c.post(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	// Refresh conversation context for continuity.
	c.mu.Lock()
	if resp.ConversationID != "" {
		c.conversationID = resp.ConversationID
	}
	if resp.MessageID != "" {
		c.parentMessageID = resp.MessageID
	}
	c.mu.Unlock()

	return resp, nil
}

// SendMessageAs posts one message with explicit conversation context and
// model, bypassing the stored context. Used by the proxy endpoint where the
// caller owns the conversation.
func (c *Client) SendMessageAs(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if req.Model == "" {
		req.Model = c.config.Model
	}
	return c.post(ctx, req)
}

func (c *Client) post(ctx context.Context, reqBody MessageRequest) (*MessageResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal message", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/messages", bytes.NewReader(body))
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
		return nil, &ClientError{Type: ErrTypeConnection, Message: "chat backend unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeBadStatus,
			Message: "chat request failed: " + resp.Status,
		}
	}

	var result MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode chat response", Cause: err}
	}

	return &result, nil
}

// CheckHealth verifies that the chat backend is reachable.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/config", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return &ClientError{Type: ErrTypeConnection, Message: "chat backend unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeBadStatus,
			Message: "unexpected status from chat backend: " + resp.Status,
		}
	}

	return nil
}

// ResetConversation clears the stored conversation context.
func (c *Client) ResetConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationID = ""
	c.parentMessageID = ""
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}
