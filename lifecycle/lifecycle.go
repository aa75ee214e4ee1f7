// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package lifecycle owns the job state machine past assignment:
// heartbeats, result submission, timeouts, retries, and cancellation.
// JobQueue owns QUEUED->RUNNING dispatch; everything past that
// transition is Lifecycle's.
package lifecycle

import (
	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/metrics"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

var logger = log.NewModuleLogger("lifecycle")

// PaymentSettler is the narrow slice of PaymentEngine Lifecycle needs to
// resolve a job's escrow at a terminal transition.
type PaymentSettler interface {
	Release(paymentID string, settledAmount int64, payeeID string) (*model.Payment, error)
	Refund(paymentID string) (*model.Payment, error)
}

// ReceiptBuilder is the narrow slice of ReceiptService Lifecycle needs to
// seal a successful attempt.
type ReceiptBuilder interface {
	BuildAndSeal(job *model.Job, miner *model.Miner, startedMs int64, unitsConsumed int64, resultPayload []byte) (*model.Receipt, model.ErrorKind, error)
}

// Lifecycle is the concrete state machine driver.
type Lifecycle struct {
	st       store.Store
	clk      clock.Clock
	payments PaymentSettler
	receipts ReceiptBuilder

	maxAttempts      int
	attemptTimeoutMs int64
}

func New(st store.Store, clk clock.Clock, payments PaymentSettler, receipts ReceiptBuilder, maxAttempts int, attemptTimeoutMs int64) *Lifecycle {
	return &Lifecycle{
		st:               st,
		clk:              clk,
		payments:         payments,
		receipts:         receipts,
		maxAttempts:      maxAttempts,
		attemptTimeoutMs: attemptTimeoutMs,
	}
}

func (l *Lifecycle) logTransition(jobID string, from, to model.JobState, reason string, startMs int64) {
	now := l.clk.NowMs()
	logger.Info("job transition", "job_id", jobID, "from", from, "to", to, "reason", reason, "duration_ms", now-startMs)
	if err := l.st.AppendJobTransition(model.JobTransition{
		JobID: jobID, From: from, To: to, Reason: reason, AtMs: now, DurationMs: now - startMs,
	}); err != nil {
		logger.Warn("failed to append job transition", "job_id", jobID, "err", err)
	}
}

// JobHeartbeat extends a running job's per-attempt deadline. If the job
// has a pending cancel request, this is the "next miner interaction"
// resolves it on: the job finalizes to CANCELLED and refunds
// instead of re-arming the deadline. Callers inspect the returned job's
// State to decide whether to tell the miner to stop.
func (l *Lifecycle) JobHeartbeat(jobID, minerID string) (*model.Job, error) {
	job, err := l.st.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.State != model.JobRunning || job.AssignedMinerID != minerID {
		return nil, model.NewError(model.ErrStaleAssignment, "job is not running under this miner")
	}
	if job.CancelRequested {
		return l.finalizeCancelRunning(job, minerID)
	}
	now := l.clk.NowMs()
	return l.st.UpdateJobAtomic(jobID, model.JobRunning, func(j *model.Job) error {
		j.LastHeartbeatMs = now
		return nil
	})
}

// Cancel accepts a cancel request from the submitter. QUEUED cancels
// immediately; RUNNING only flags cancel_requested, resolved on the next
// heartbeat or result submission.
func (l *Lifecycle) Cancel(jobID string) (*model.Job, error) {
	job, err := l.st.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	start := job.CreatedMs
	switch job.State {
	case model.JobQueued:
		updated, err := l.st.UpdateJobAtomic(jobID, model.JobQueued, func(j *model.Job) error {
			j.State = model.JobCancelled
			return nil
		})
		if err != nil {
			return nil, err
		}
		if _, err := l.payments.Refund(updated.PaymentID); err != nil {
			logger.Error("failed to refund cancelled job", "job_id", jobID, "err", err)
		}
		l.logTransition(jobID, model.JobQueued, model.JobCancelled, "client_cancel", start)
		metrics.JobsByTerminalStateTotal.WithLabelValues(string(model.JobCancelled)).Inc()
		return updated, nil
	case model.JobRunning:
		return l.st.UpdateJobAtomic(jobID, model.JobRunning, func(j *model.Job) error {
			j.CancelRequested = true
			return nil
		})
	default:
		return job, nil
	}
}

func (l *Lifecycle) finalizeCancelRunning(job *model.Job, minerID string) (*model.Job, error) {
	start := job.CreatedMs
	updated, err := l.st.ReleaseInFlight(job.ID, model.JobRunning, minerID, func(j *model.Job) error {
		j.State = model.JobCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := l.payments.Refund(updated.PaymentID); err != nil {
		logger.Error("failed to refund cancelled job", "job_id", job.ID, "err", err)
	}
	l.logTransition(job.ID, model.JobRunning, model.JobCancelled, "client_cancel", start)
	metrics.JobsByTerminalStateTotal.WithLabelValues(string(model.JobCancelled)).Inc()
	return updated, nil
}

// OnMinerLost implements minerregistry.LostJobNotifier: the liveness scan
// already marked the miner OFFLINE, so this only needs to resolve jobID's
// side. Retriable jobs go back to QUEUED with the miner excluded;
// exhausted jobs fail and refund.
func (l *Lifecycle) OnMinerLost(jobID string) {
	if err := l.onMinerLost(jobID); err != nil {
		logger.Error("failed to resolve job after miner loss", "job_id", jobID, "err", err)
	}
}

func (l *Lifecycle) onMinerLost(jobID string) error {
	job, err := l.st.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.State != model.JobRunning {
		return nil
	}
	minerID := job.AssignedMinerID
	start := job.CreatedMs
	metrics.HeartbeatExpiriesTotal.Inc()

	if job.AttemptCount < l.maxAttempts {
		if _, err := l.st.ReleaseInFlight(jobID, model.JobRunning, minerID, func(j *model.Job) error {
			j.State = model.JobQueued
			j.AddExcludedMiner(minerID)
			j.AssignedMinerID = ""
			return nil
		}); err != nil {
			return err
		}
		metrics.RetriesTotal.Inc()
		l.logTransition(jobID, model.JobRunning, model.JobQueued, "miner_lost", start)
		return nil
	}

	updated, err := l.st.ReleaseInFlight(jobID, model.JobRunning, minerID, func(j *model.Job) error {
		j.State = model.JobFailed
		j.ErrorKind = model.ErrorKindMinerLost
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := l.payments.Refund(updated.PaymentID); err != nil {
		logger.Error("failed to refund failed job", "job_id", jobID, "err", err)
	}
	l.logTransition(jobID, model.JobRunning, model.JobFailed, "miner_lost", start)
	metrics.JobsByTerminalStateTotal.WithLabelValues(string(model.JobFailed)).Inc()
	return nil
}
