// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricecheck

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/exilebridge/internal/chat"
	"github.com/jeranaias/exilebridge/internal/item"
	"github.com/jeranaias/exilebridge/internal/trade"
)

// ErrEmptyItemText is returned when a check is requested without item text.
// It is the only way Check can fail: everything past input validation
// degrades instead of erroring.
var ErrEmptyItemText = errors.New("item text is required")

// Options bound the two upstream calls. Each call carries its own timeout
// so a slow chat backend cannot eat into the pricing budget or vice versa.
type Options struct {
	// DefaultLeague is used when the caller does not name one.
	DefaultLeague string

	// TradeTimeout bounds the trade search (default: 10s).
	TradeTimeout time.Duration

	// InsightTimeout bounds insight generation (default: 15s). Longer than
	// TradeTimeout because generative responses are slower.
	InsightTimeout time.Duration
}

// DefaultOptions returns the default checker options.
func DefaultOptions() Options {
	return Options{
		DefaultLeague:  "Hardcore",
		TradeTimeout:   10 * time.Second,
		InsightTimeout: 15 * time.Second,
	}
}

func (o *Options) fillDefaults() {
	if o.DefaultLeague == "" {
		o.DefaultLeague = "Hardcore"
	}
	if o.TradeTimeout == 0 {
		o.TradeTimeout = 10 * time.Second
	}
	if o.InsightTimeout == 0 {
		o.InsightTimeout = 15 * time.Second
	}
}

// Checker orchestrates one price check: parse, price, enrich, compose.
//
// Per request the pipeline is Received -> Parsed -> Priced -> Insighted ->
// Composed; pricing and insight are independent failure domains, so either
// can fall back without failing the request. Insight consumes pricing's
// value (the listing count), not its success.
type Checker struct {
	trade  *trade.Client
	chat   *chat.Client
	opts   Options
	logger *zap.Logger
}

// NewChecker creates a Checker over the given upstream clients.
func NewChecker(tradeClient *trade.Client, chatClient *chat.Client, opts Options, logger *zap.Logger) *Checker {
	opts.fillDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		trade:  tradeClient,
		chat:   chatClient,
		opts:   opts,
		logger: logger,
	}
}

// Check runs the full pipeline for one item. It returns an error only for
// empty input; every upstream failure is absorbed into the response.
//
// The raw item text is never logged, only its length and the league.
func (c *Checker) Check(ctx context.Context, itemText, league string) (*Response, error) {
	if itemText == "" {
		return nil, ErrEmptyItemText
	}
	if league == "" {
		league = c.opts.DefaultLeague
	}

	c.logger.Info("PRICE_CHECK_START",
		zap.String("league", league),
		zap.Int("item_length", len(itemText)),
	)

	parsed := item.Parse(itemText)

	pricing := c.fetchPricing(ctx, parsed, league)
	insight := c.fetchInsight(ctx, parsed, pricing)

	return compose(parsed, pricing, insight), nil
}

// fetchPricing issues the trade search and normalizes any failure into the
// unavailable variant. Never returns an error past this boundary: the trade
// API is outside our control and commonly unreachable or access-limited.
func (c *Checker) fetchPricing(ctx context.Context, it item.Parsed, league string) PricingResult {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.TradeTimeout)
	defer cancel()

	resp, err := c.trade.Search(callCtx, it.Name, it.Type, league)
	if err != nil {
		c.logger.Warn("TRADE_API_UNAVAILABLE",
			zap.String("league", league),
			zap.Error(err),
		)
		return pricingUnavailable("Official API unavailable")
	}

	results := resp.Result
	if len(results) > maxSampleListings {
		results = results[:maxSampleListings]
	}

	return PricingResult{
		SearchID: resp.ID,
		Total:    resp.Total,
		Results:  results,
	}
}

// fetchInsight asks the chat backend for an analysis of the item plus
// whatever pricing context is available. Attempted even when pricing fell
// back. Never returns an error past this boundary.
func (c *Checker) fetchInsight(ctx context.Context, it item.Parsed, pricing PricingResult) InsightResult {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.InsightTimeout)
	defer cancel()

	resp, err := c.chat.SendMessage(callCtx, insightPrompt(it, pricing))
	if err != nil {
		c.logger.Warn("AI_INSIGHTS_UNAVAILABLE", zap.Error(err))
		return insightUnavailable("AI analysis unavailable")
	}

	return InsightResult{
		Analysis:   resp.Content(),
		Confidence: ConfidenceMedium,
		Source:     SourceAI,
	}
}

// compose merges already-resolved parts into the response envelope. Pure,
// no I/O: assembling resolved variants cannot fail. The timestamp is
// stamped here, at composition time, not at request entry.
func compose(it item.Parsed, pricing PricingResult, insight InsightResult) *Response {
	return &Response{
		Success:    true,
		Item:       it,
		Pricing:    pricing,
		AIInsights: insight,
		Timestamp:  time.Now().UTC(),
	}
}

// Market builds the market report for one league: a snapshot plus an AI
// market analysis. The analysis degrades the same way insight does; the
// snapshot itself cannot fail.
func (c *Checker) Market(ctx context.Context, league, currency string) *MarketReport {
	if league == "" {
		league = c.opts.DefaultLeague
	}
	if currency == "" {
		currency = "divine"
	}

	c.logger.Info("MARKET_FETCH",
		zap.String("league", league),
		zap.String("currency", currency),
	)

	snapshot := MarketSnapshot{
		League:    league,
		Currency:  currency,
		Timestamp: time.Now().UTC(),
		Note:      "Market data integration pending",
	}

	analysis := c.fetchMarketAnalysis(ctx, snapshot, league)

	return &MarketReport{
		Success:   true,
		League:    league,
		Market:    snapshot,
		Analysis:  analysis,
		Timestamp: time.Now().UTC(),
	}
}

// fetchMarketAnalysis asks the chat backend for a market read. Confidence
// is "low": without a real market feed behind it, the model is reasoning
// from the league name alone.
func (c *Checker) fetchMarketAnalysis(ctx context.Context, snapshot MarketSnapshot, league string) InsightResult {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.InsightTimeout)
	defer cancel()

	resp, err := c.chat.SendMessage(callCtx, marketPrompt(snapshot, league))
	if err != nil {
		c.logger.Warn("MARKET_ANALYSIS_UNAVAILABLE",
			zap.String("league", league),
			zap.Error(err),
		)
		return insightUnavailable("Market analysis unavailable")
	}

	return InsightResult{
		Analysis:   resp.Content(),
		Confidence: ConfidenceLow,
		Source:     SourceAI,
	}
}
