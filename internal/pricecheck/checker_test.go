// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricecheck

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/exilebridge/internal/chat"
	"github.com/jeranaias/exilebridge/internal/trade"
)

const rareItemText = "Rarity: Rare\nBone Sword\n---\nOne Handed Sword\n+40% increased Physical Damage\n10% increased Attack Speed"

// fakeTrade serves a canned trade search response.
func fakeTrade(t *testing.T, resp trade.SearchResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(resp)
	}))
}

// fakeChat serves a canned chat reply and captures prompts.
func fakeChat(t *testing.T, reply string, prompts *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chat.MessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		if prompts != nil {
			*prompts = append(*prompts, req.Text)
		}
		json.NewEncoder(w).Encode(chat.MessageResponse{Text: reply})
	}))
}

// downServer returns a URL nothing listens on.
func downServer(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()
	return url
}

func newChecker(tradeURL, chatURL string) *Checker {
	tc := trade.NewClientWithConfig(&trade.ClientConfig{
		BaseURL: tradeURL,
		Timeout: time.Second,
		MaxRPS:  1000,
		Burst:   1000,
	})
	cc := chat.NewClientWithConfig(&chat.ClientConfig{
		BaseURL: chatURL,
		Model:   "test-model",
		Timeout: time.Second,
	})
	return NewChecker(tc, cc, Options{
		DefaultLeague:  "Hardcore",
		TradeTimeout:   time.Second,
		InsightTimeout: time.Second,
	}, zap.NewNop())
}

func TestCheck_AllUpstreamsHealthy(t *testing.T) {
	tradeSrv := fakeTrade(t, trade.SearchResponse{
		ID:     "search-1",
		Total:  17,
		Result: []string{"a", "b", "c"},
	})
	defer tradeSrv.Close()

	var prompts []string
	chatSrv := fakeChat(t, "solid item, sell high", &prompts)
	defer chatSrv.Close()

	checker := newChecker(tradeSrv.URL, chatSrv.URL)

	resp, err := checker.Check(context.Background(), rareItemText, "Hardcore")
	require.NoError(t, err)

	require.True(t, resp.Success)
	require.Equal(t, "Rarity: Rare", resp.Item.Name)
	require.Equal(t, "Bone Sword", resp.Item.Type)

	require.True(t, resp.Pricing.Available())
	require.Equal(t, "search-1", resp.Pricing.SearchID)
	require.Equal(t, 17, resp.Pricing.Total)

	require.True(t, resp.AIInsights.Available())
	require.Equal(t, "solid item, sell high", resp.AIInsights.Analysis)
	require.Equal(t, ConfidenceMedium, resp.AIInsights.Confidence)
	require.Equal(t, SourceAI, resp.AIInsights.Source)

	require.False(t, resp.Timestamp.IsZero())

	// The prompt carries the parsed fields and the listing count.
	require.Len(t, prompts, 1)
	require.Contains(t, prompts[0], "Rarity: Rare")
	require.Contains(t, prompts[0], "Bone Sword")
	require.Contains(t, prompts[0], "+40% increased Physical Damage, 10% increased Attack Speed")
	require.Contains(t, prompts[0], "17 listings found")
}

func TestCheck_EmptyItemText(t *testing.T) {
	checker := newChecker("http://unused", "http://unused")

	_, err := checker.Check(context.Background(), "", "Hardcore")
	require.ErrorIs(t, err, ErrEmptyItemText)
}

func TestCheck_PricingDownInsightStillAttempted(t *testing.T) {
	var prompts []string
	chatSrv := fakeChat(t, "hard to say without listings", &prompts)
	defer chatSrv.Close()

	checker := newChecker(downServer(t), chatSrv.URL)

	resp, err := checker.Check(context.Background(), rareItemText, "")
	require.NoError(t, err)

	// A pricing failure degrades the pricing field only.
	require.True(t, resp.Success)
	require.True(t, resp.Pricing.Fallback)
	require.NotEmpty(t, resp.Pricing.Err)

	// Insight was still attempted, with a zero listing count.
	require.True(t, resp.AIInsights.Available())
	require.Len(t, prompts, 1)
	require.Contains(t, prompts[0], "0 listings found")
}

func TestCheck_InsightDownPricingKept(t *testing.T) {
	tradeSrv := fakeTrade(t, trade.SearchResponse{ID: "s", Total: 3, Result: []string{"x"}})
	defer tradeSrv.Close()

	checker := newChecker(tradeSrv.URL, downServer(t))

	resp, err := checker.Check(context.Background(), rareItemText, "Hardcore")
	require.NoError(t, err)

	require.True(t, resp.Success)
	require.True(t, resp.Pricing.Available())
	require.Equal(t, 3, resp.Pricing.Total)

	require.True(t, resp.AIInsights.Fallback)
	require.NotEmpty(t, resp.AIInsights.Err)
}

func TestCheck_BothUpstreamsDown(t *testing.T) {
	checker := newChecker(downServer(t), downServer(t))

	resp, err := checker.Check(context.Background(), rareItemText, "Hardcore")
	require.NoError(t, err)

	// No single (or double) upstream failure aborts the request.
	require.True(t, resp.Success)
	require.Equal(t, "Bone Sword", resp.Item.Type)
	require.True(t, resp.Pricing.Fallback)
	require.True(t, resp.AIInsights.Fallback)
}

func TestCheck_ResultsTruncatedToTen(t *testing.T) {
	many := make([]string, 25)
	for i := range many {
		many[i] = "listing"
	}
	tradeSrv := fakeTrade(t, trade.SearchResponse{ID: "s", Total: 25, Result: many})
	defer tradeSrv.Close()

	chatSrv := fakeChat(t, "ok", nil)
	defer chatSrv.Close()

	checker := newChecker(tradeSrv.URL, chatSrv.URL)

	resp, err := checker.Check(context.Background(), rareItemText, "Hardcore")
	require.NoError(t, err)

	require.Len(t, resp.Pricing.Results, 10)
	require.Equal(t, 25, resp.Pricing.Total, "total count is preserved past the cap")
}

func TestCheck_SlowTradeDoesNotBlockInsight(t *testing.T) {
	// Trade hangs beyond its budget; insight has its own timeout and must
	// still be attempted and succeed.
	slowTrade := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer slowTrade.Close()

	chatSrv := fakeChat(t, "made it", nil)
	defer chatSrv.Close()

	tc := trade.NewClientWithConfig(&trade.ClientConfig{
		BaseURL: slowTrade.URL,
		Timeout: time.Second,
		MaxRPS:  1000,
		Burst:   1000,
	})
	cc := chat.NewClientWithConfig(&chat.ClientConfig{
		BaseURL: chatSrv.URL,
		Timeout: time.Second,
	})
	checker := NewChecker(tc, cc, Options{
		TradeTimeout:   50 * time.Millisecond,
		InsightTimeout: time.Second,
	}, zap.NewNop())

	resp, err := checker.Check(context.Background(), rareItemText, "Hardcore")
	require.NoError(t, err)

	require.True(t, resp.Pricing.Fallback)
	require.Equal(t, "made it", resp.AIInsights.Analysis)
}

func TestCheck_LeagueDefaulting(t *testing.T) {
	var gotPath string
	tradeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(trade.SearchResponse{ID: "s"})
	}))
	defer tradeSrv.Close()

	chatSrv := fakeChat(t, "ok", nil)
	defer chatSrv.Close()

	checker := newChecker(tradeSrv.URL, chatSrv.URL)

	_, err := checker.Check(context.Background(), rareItemText, "")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(gotPath, "/search/Hardcore"))
}

func TestMarket(t *testing.T) {
	var prompts []string
	chatSrv := fakeChat(t, "divines trending up", &prompts)
	defer chatSrv.Close()

	checker := newChecker("http://unused", chatSrv.URL)

	report := checker.Market(context.Background(), "Standard", "chaos")

	require.True(t, report.Success)
	require.Equal(t, "Standard", report.League)
	require.Equal(t, "chaos", report.Market.Currency)

	require.True(t, report.Analysis.Available())
	require.Equal(t, "divines trending up", report.Analysis.Analysis)
	require.Equal(t, ConfidenceLow, report.Analysis.Confidence)

	require.Len(t, prompts, 1)
	require.Contains(t, prompts[0], "Standard league")
	require.Contains(t, prompts[0], "chaos currency")
}

func TestMarket_Defaults(t *testing.T) {
	chatSrv := fakeChat(t, "ok", nil)
	defer chatSrv.Close()

	checker := newChecker("http://unused", chatSrv.URL)

	report := checker.Market(context.Background(), "", "")
	require.Equal(t, "Hardcore", report.League)
	require.Equal(t, "divine", report.Market.Currency)
}

func TestMarket_ChatDown(t *testing.T) {
	checker := newChecker("http://unused", downServer(t))

	report := checker.Market(context.Background(), "Standard", "divine")

	require.True(t, report.Success, "a degraded analysis does not fail the report")
	require.True(t, report.Analysis.Fallback)
}
