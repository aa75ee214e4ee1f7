// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package coordinator

import (
	"context"
	"time"
)

// RunBackgroundLoops starts the three periodic sweeps
// describe as background timers, each on its own ticker, until ctx is
// canceled. It returns immediately; callers run it in its own goroutine.
func (c *Context) RunBackgroundLoops(ctx context.Context) {
	go c.runLivenessLoop(ctx)
	go c.runTimeoutLoop(ctx)
	go c.runOutboxLoop(ctx)
}

func (c *Context) runLivenessLoop(ctx context.Context) {
	interval := time.Duration(c.Config.HeartbeatScanIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Registry.LivenessSweep(c.Clock.NowMs()); err != nil {
				logger.Error("liveness sweep failed", "err", err)
			}
		}
	}
}

func (c *Context) runTimeoutLoop(ctx context.Context) {
	interval := time.Duration(c.Config.TimerScanIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := c.Clock.NowMs()
			if _, err := c.Lifecycle.SweepAttemptTimeouts(now, c.Config.TimerBatchMax); err != nil {
				logger.Error("attempt-timeout sweep failed", "err", err)
			}
			if _, err := c.Lifecycle.SweepAbsoluteDeadlines(now, c.Config.TimerBatchMax); err != nil {
				logger.Error("absolute-deadline sweep failed", "err", err)
			}
		}
	}
}

// outboxFlushIntervalMs is fixed rather than configurable: outbox
// delivery latency isn't a configurable tuning knob, unlike the
// liveness and timeout scan intervals.
const outboxFlushIntervalMs = 2000

func (c *Context) runOutboxLoop(ctx context.Context) {
	ticker := time.NewTicker(outboxFlushIntervalMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Payments.FlushOutbox(c.Config.TimerBatchMax); err != nil {
				logger.Error("payment outbox flush failed", "err", err)
			}
		}
	}
}
