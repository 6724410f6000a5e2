// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the HTTP API boundary for the price-check bridge.
//
// This package implements a REST API that composes item parsing, trade
// pricing, and AI insight into aggregated responses for the desktop overlay.
//
// # Endpoints
//
//   - POST /api/price-check      - Item pricing with AI-enhanced analysis
//   - GET  /api/market/{league}  - Market intelligence for a league
//   - POST /api/chat             - Direct proxy to the chat backend
//   - GET  /health               - Health check (exempt from rate limiting)
//   - GET  /stats                - Usage statistics
//
// # Middleware
//
//   - Panic recovery with stack trace logging
//   - Security headers (X-Content-Type-Options, X-Frame-Options, etc.)
//   - CORS headers for the local overlay
//   - Request logging with generated request ids
//   - Fixed-window rate limiting keyed by validated client IP
//
// # Key Types
//
//   - Server: HTTP server with router, middleware chain, and usage counters
//   - Stats:  Mutex-guarded request counters exposed at /stats
//
// # Usage
//
//	srv := server.NewServer(8081, logger).
//		WithChecker(checker).
//		WithChatClient(chatClient).
//		WithLimiter(limiter)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
