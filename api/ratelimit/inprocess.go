// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// InProcess is the embedded/dev-profile Limiter: one bucket per key,
// held in memory. It does not survive a restart and is not shared
// across replicas, which is the tradeoff for needing no external store.
type InProcess struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewInProcess() *InProcess {
	return &InProcess{buckets: make(map[string]*bucket)}
}

func (l *InProcess) Allow(key string, tokens int, refillPerSec float64) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tokens), lastRefill: now}
		l.buckets[key] = b
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * refillPerSec
	if b.tokens > float64(tokens) {
		b.tokens = float64(tokens)
	}
	b.lastRefill = now

	if b.tokens < 1 {
		deficit := 1 - b.tokens
		retryAfter := time.Duration(deficit/refillPerSec*1000) * time.Millisecond
		return false, retryAfter, nil
	}
	b.tokens--
	return true, 0, nil
}
