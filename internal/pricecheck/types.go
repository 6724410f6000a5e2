// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pricecheck aggregates item parsing, trade pricing, and AI insight
// into one best-effort composed response.
package pricecheck

import (
	"time"

	"github.com/jeranaias/exilebridge/internal/item"
)

// maxSampleListings caps how many listing identifiers a pricing result
// carries. This is a deliberate payload cap, not an upstream limit.
const maxSampleListings = 10

// Confidence levels attached to insight results. These are documented
// approximations, not measured values: "medium" means the model answered
// with real pricing context, "low" means it answered without it.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// SourceAI tags insight results produced by the chat backend.
const SourceAI = "ai"

// PricingResult is the outcome of one trade search. It is always produced:
// a failed upstream call becomes an unavailable result with Fallback set,
// never an error that aborts the pipeline.
type PricingResult struct {
	SearchID string   `json:"searchId,omitempty"`
	Total    int      `json:"total,omitempty"`
	Results  []string `json:"results,omitempty"`

	// Err and Fallback mark a degraded placeholder, not authoritative data.
	Err      string `json:"error,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Available reports whether the result holds real pricing data.
func (p PricingResult) Available() bool {
	return !p.Fallback
}

// pricingUnavailable builds the degraded pricing variant.
func pricingUnavailable(reason string) PricingResult {
	return PricingResult{Err: reason, Fallback: true}
}

// InsightResult is the outcome of one insight generation call, degraded the
// same way as PricingResult when the chat backend fails.
type InsightResult struct {
	Analysis   string `json:"analysis,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Source     string `json:"source,omitempty"`

	Err      string `json:"error,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Available reports whether the result holds a real analysis.
func (i InsightResult) Available() bool {
	return !i.Fallback
}

// insightUnavailable builds the degraded insight variant.
func insightUnavailable(reason string) InsightResult {
	return InsightResult{Err: reason, Fallback: true}
}

// Response is the composed price-check payload returned to the caller.
// Success is true whenever the request was admitted and parsed; degraded
// pricing or insight never flips it to false.
type Response struct {
	Success    bool          `json:"success"`
	Item       item.Parsed   `json:"item"`
	Pricing    PricingResult `json:"pricing"`
	AIInsights InsightResult `json:"aiInsights"`
	Timestamp  time.Time     `json:"timestamp"`
}

// MarketSnapshot is the market overview for one league. Real market feeds
// are not integrated yet, so the snapshot carries placeholder data with an
// explanatory note.
type MarketSnapshot struct {
	League    string    `json:"league"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// MarketReport is the composed market payload for one league.
type MarketReport struct {
	Success   bool           `json:"success"`
	League    string         `json:"league"`
	Market    MarketSnapshot `json:"market"`
	Analysis  InsightResult  `json:"analysis"`
	Timestamp time.Time      `json:"timestamp"`
}
