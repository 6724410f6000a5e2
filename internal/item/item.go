// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package item parses clipboard item text into a structured record.
//
// The parser is a best-effort heuristic, not a grammar. It never fails: on
// unrecognized structure it returns degraded defaults instead of erroring.
// The heuristics are preserved exactly as the companion clients expect them;
// "improving" them would break behavior compatibility.
package item

import "strings"

// Parsed is the structured form of a raw item description. It is derived
// once per request and immutable afterward.
type Parsed struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Mods    []string `json:"mods"`
	RawText string   `json:"rawText"`
}

// Parse converts raw item text into a Parsed record.
//
// Heuristics:
//   - Name is the first non-blank line, verbatim. A leading "Rarity:" line is
//     NOT filtered first, so the name can be the rarity tag itself. That
//     matches the behavior downstream consumers were built against.
//   - Type is the first line that is not a rarity tag, not a "---" separator,
//     contains no colon, and is longer than 3 characters.
//   - Mods are the lines containing "%", "to ", "increased", or "Adds",
//     trimmed, in original order.
func Parse(raw string) Parsed {
	lines := splitLines(raw)

	name := "Unknown Item"
	if len(lines) > 0 {
		name = lines[0]
	}

	return Parsed{
		Name:    name,
		Type:    extractType(lines),
		Mods:    extractMods(lines),
		RawText: raw,
	}
}

// splitLines splits raw text into trimmed, non-blank lines.
func splitLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// extractType finds the item base type from common patterns.
func extractType(lines []string) string {
	for _, line := range lines {
		if strings.Contains(line, "Rarity:") {
			continue
		}
		if strings.Contains(line, "---") {
			continue
		}
		if !strings.Contains(line, ":") && len(line) > 3 {
			return line
		}
	}
	return "Unknown"
}

// extractMods collects modifier lines in original order.
func extractMods(lines []string) []string {
	var mods []string
	for _, line := range lines {
		if strings.Contains(line, "%") ||
			strings.Contains(line, "to ") ||
			strings.Contains(line, "increased") ||
			strings.Contains(line, "Adds") {
			mods = append(mods, line)
		}
	}
	return mods
}
