// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package ratelimit enforces per-API-key rate limits with a token
// bucket. A go-redis-backed Limiter shares state across coordinator
// replicas; an in-process Limiter is the fallback when no Redis
// endpoint is configured.
package ratelimit

import "time"

// Limiter reports whether one more call under key is allowed right now.
// retryAfter is the caller's back-off hint when denied, surfaced to
// the client as a Retry-After header.
type Limiter interface {
	Allow(key string, tokens int, refillPerSec float64) (allowed bool, retryAfter time.Duration, err error)
}
