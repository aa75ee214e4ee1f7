// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package lifecycle

import (
	"github.com/aitbc-network/coordinator/metrics"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

// SweepAttemptTimeouts is the periodic timer_scan_interval_ms pass that
// finds RUNNING jobs whose per-attempt deadline has elapsed and
// resolves them: retry if attempts remain, else fail and refund. It
// examines at most batchMax jobs so a single pass cannot starve the API.
func (l *Lifecycle) SweepAttemptTimeouts(nowMs int64, batchMax int) (int, error) {
	running, err := l.st.ScanJobsByState(model.JobRunning, batchMax)
	if err != nil {
		return 0, err
	}
	touched := 0
	for _, job := range running {
		if nowMs-job.LastHeartbeatMs < l.attemptTimeoutMs {
			continue
		}
		if err := l.handleAttemptTimeout(job); err != nil {
			if store.IsStale(err) {
				continue
			}
			logger.Error("failed to handle attempt timeout", "job_id", job.ID, "err", err)
			continue
		}
		touched++
	}
	return touched, nil
}

func (l *Lifecycle) handleAttemptTimeout(job *model.Job) error {
	minerID := job.AssignedMinerID
	start := job.AssignedMs
	metrics.HeartbeatExpiriesTotal.Inc()

	if job.AttemptCount < l.maxAttempts {
		if _, err := l.st.ReleaseInFlight(job.ID, model.JobRunning, minerID, func(j *model.Job) error {
			j.State = model.JobQueued
			j.AddExcludedMiner(minerID)
			j.AssignedMinerID = ""
			return nil
		}); err != nil {
			return err
		}
		metrics.RetriesTotal.Inc()
		l.logTransition(job.ID, model.JobRunning, model.JobQueued, "attempt_timeout", start)
		return nil
	}

	updated, err := l.st.ReleaseInFlight(job.ID, model.JobRunning, minerID, func(j *model.Job) error {
		j.State = model.JobFailed
		j.ErrorKind = model.ErrorKindAttemptTimeout
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := l.payments.Refund(updated.PaymentID); err != nil {
		logger.Error("failed to refund job after attempt timeout", "job_id", job.ID, "err", err)
	}
	l.logTransition(job.ID, model.JobRunning, model.JobFailed, "attempt_timeout", start)
	metrics.JobsByTerminalStateTotal.WithLabelValues(string(model.JobFailed)).Inc()
	return nil
}

// SweepAbsoluteDeadlines is the periodic pass over
// scan_jobs_expiring_before(now): the absolute job deadline,
// unlike the per-attempt one, is never extended and applies in any
// non-terminal state.
func (l *Lifecycle) SweepAbsoluteDeadlines(nowMs int64, batchMax int) (int, error) {
	expiring, err := l.st.ScanJobsExpiringBefore(nowMs, batchMax)
	if err != nil {
		return 0, err
	}
	touched := 0
	for _, job := range expiring {
		if err := l.expireJob(job); err != nil {
			if store.IsStale(err) {
				continue
			}
			logger.Error("failed to expire job", "job_id", job.ID, "err", err)
			continue
		}
		touched++
	}
	return touched, nil
}

func (l *Lifecycle) expireJob(job *model.Job) error {
	start := job.CreatedMs
	var updated *model.Job
	var err error

	switch job.State {
	case model.JobQueued:
		updated, err = l.st.UpdateJobAtomic(job.ID, model.JobQueued, func(j *model.Job) error {
			j.State = model.JobExpired
			return nil
		})
	case model.JobRunning:
		updated, err = l.st.ReleaseInFlight(job.ID, model.JobRunning, job.AssignedMinerID, func(j *model.Job) error {
			j.State = model.JobExpired
			return nil
		})
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := l.payments.Refund(updated.PaymentID); err != nil {
		logger.Error("failed to refund expired job", "job_id", job.ID, "err", err)
	}
	l.logTransition(job.ID, job.State, model.JobExpired, "deadline", start)
	metrics.JobsByTerminalStateTotal.WithLabelValues(string(model.JobExpired)).Inc()
	return nil
}
