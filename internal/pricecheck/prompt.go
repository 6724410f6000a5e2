// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricecheck

import (
	"fmt"
	"strings"

	"github.com/jeranaias/exilebridge/internal/item"
)

// insightPrompt renders the deterministic analysis prompt for one item.
// The listing count is zero when pricing fell back; the model still gets
// asked, just without market context.
func insightPrompt(it item.Parsed, pricing PricingResult) string {
	return fmt.Sprintf(`Analyze this Path of Exile 2 item:

Item: %s
Type: %s
Mods: %s
Price Data: %d listings found

Provide insights on:
1. Item value assessment
2. Market position
3. Trading recommendations
4. Build relevance

Keep response concise and actionable.`,
		it.Name, it.Type, strings.Join(it.Mods, ", "), pricing.Total)
}

// marketPrompt renders the market analysis prompt for one league.
func marketPrompt(snapshot MarketSnapshot, league string) string {
	return fmt.Sprintf(`Analyze Path of Exile 2 market conditions for %s league:

Current data indicates market activity for %s currency.

Provide:
1. Market trend assessment
2. Currency recommendations
3. Trading timing suggestions
4. Risk factors

Keep analysis brief and actionable.`,
		league, snapshot.Currency)
}
