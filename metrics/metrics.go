// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package metrics exposes the coordinator's Prometheus instrumentation.
// Counters and histograms are package-level, registered via promauto at
// import time — the same "just grab the global and call it" ergonomics
// as log.NewModuleLogger, applied to metrics instead of logging.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "jobs_submitted_total",
		Help:      "Total number of jobs admitted via submit_job.",
	})

	JobsByTerminalStateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "jobs_by_terminal_state_total",
		Help:      "Total number of jobs reaching each terminal state.",
	}, []string{"state"})

	MinerAssignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "miner_assignments_total",
		Help:      "Total number of successful QUEUED->RUNNING assignments.",
	})

	AssignmentRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "assignment_races_total",
		Help:      "Total number of StaleState losses during dispatch.",
	})

	HeartbeatExpiriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "heartbeat_expiries_total",
		Help:      "Total number of running attempts ended by an attempt-heartbeat timeout or by their miner being lost.",
	})

	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "retries_total",
		Help:      "Total number of RUNNING->QUEUED retry transitions.",
	})

	PaymentHoldsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "payment_holds_total",
		Help:      "Total number of payment holds placed.",
	})

	PaymentReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "payment_releases_total",
		Help:      "Total number of payment holds released.",
	})

	JobQueueWaitMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coordinator",
		Name:      "job_queue_wait_ms",
		Help:      "Milliseconds a job spent QUEUED before assignment.",
		Buckets:   prometheus.ExponentialBuckets(10, 2, 16),
	})

	JobAttemptDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coordinator",
		Name:      "job_attempt_duration_ms",
		Help:      "Milliseconds from assignment to SUCCEEDED, observed for successful attempts only.",
		Buckets:   prometheus.ExponentialBuckets(10, 2, 20),
	})

	ReceiptSealDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coordinator",
		Name:      "receipt_seal_duration_ms",
		Help:      "Milliseconds spent in ReceiptService.build_and_seal.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})
)
