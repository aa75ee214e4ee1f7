// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package clock provides the coordinator's monotonic time source and id
// generator, by design. Both are injectable so Lifecycle/JobQueue
// tests can drive timers deterministically instead of sleeping.
package clock

import (
	"time"
)

// Clock exposes now_ms and a timer-future constructor. Implementations
// must be safe for concurrent use.
type Clock interface {
	NowMs() int64
	After(durationMs int64) <-chan time.Time
	AfterFunc(durationMs int64, f func()) Timer
}

// Timer is the handle returned by AfterFunc; Stop cancels a pending fire.
// Per, firing is at-least-once and handlers must be idempotent
// on state — Stop is therefore best-effort, not a correctness guarantee.
type Timer interface {
	Stop() bool
}

// System is the production Clock, backed by wall-clock time.
type System struct{}

func NewSystem() *System { return &System{} }

func (System) NowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

func (System) After(durationMs int64) <-chan time.Time {
	return time.After(time.Duration(durationMs) * time.Millisecond)
}

func (System) AfterFunc(durationMs int64, f func()) Timer {
	return time.AfterFunc(time.Duration(durationMs)*time.Millisecond, f)
}
