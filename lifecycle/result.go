// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package lifecycle

import (
	"github.com/aitbc-network/coordinator/metrics"
	"github.com/aitbc-network/coordinator/model"
)

// SubmitResult handles a miner's submit_result call. expectedAttempt
// guards against a late submission from a miner that already lost the
// job to a timeout retry.
func (l *Lifecycle) SubmitResult(jobID, minerID string, expectedAttempt int, unitsConsumed int64, resultPayload []byte) (*model.Job, *model.Receipt, error) {
	job, err := l.st.GetJob(jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.State != model.JobRunning || job.AssignedMinerID != minerID || job.AttemptCount != expectedAttempt {
		// A receipt already sealed for this (job, attempt) means this is a
		// replayed submit_result, not a stale one: return the first
		// receipt instead of erroring.
		if receipt, rerr := l.st.GetReceiptByJobAttempt(jobID, expectedAttempt); rerr == nil && receipt != nil {
			return job, receipt, nil
		}
		return nil, nil, model.NewError(model.ErrStaleAssignment, "job is not running this attempt under this miner")
	}
	if job.CancelRequested {
		cancelled, err := l.finalizeCancelRunning(job, minerID)
		return cancelled, nil, err
	}

	start := job.AssignedMs
	finalizing, err := l.st.UpdateJobAtomic(jobID, model.JobRunning, func(j *model.Job) error {
		j.State = model.JobFinalizing
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	l.logTransition(jobID, model.JobRunning, model.JobFinalizing, "result_ok", start)

	miner, err := l.st.GetMiner(minerID)
	if err != nil {
		return nil, nil, err
	}

	receipt, errKind, sealErr := l.receipts.BuildAndSeal(finalizing, miner, job.AssignedMs, unitsConsumed, resultPayload)
	if sealErr != nil {
		failed, err := l.st.ReleaseInFlight(jobID, model.JobFinalizing, minerID, func(j *model.Job) error {
			j.State = model.JobFailed
			j.ErrorKind = model.ErrorKindSignerUnavail
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		if _, err := l.payments.Refund(failed.PaymentID); err != nil {
			logger.Error("failed to refund after seal failure", "job_id", jobID, "err", err)
		}
		l.logTransition(jobID, model.JobFinalizing, model.JobFailed, "seal_fail", start)
		metrics.JobsByTerminalStateTotal.WithLabelValues(string(model.JobFailed)).Inc()
		return failed, nil, sealErr
	}

	succeeded, err := l.st.ReleaseInFlight(jobID, model.JobFinalizing, minerID, func(j *model.Job) error {
		j.State = model.JobSucceeded
		j.ErrorKind = errKind
		j.ResultPayload = nil
		j.ReceiptID = receipt.ReceiptID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if _, err := l.payments.Release(succeeded.PaymentID, receipt.AmountCharged, miner.ID); err != nil {
		logger.Error("failed to release payment after success", "job_id", jobID, "err", err)
	}
	l.logTransition(jobID, model.JobFinalizing, model.JobSucceeded, "seal", start)
	metrics.JobsByTerminalStateTotal.WithLabelValues(string(model.JobSucceeded)).Inc()
	metrics.JobAttemptDurationMs.Observe(float64(l.clk.NowMs() - start))
	return succeeded, receipt, nil
}

// SubmitError handles a miner-reported failure (submit_result with
// error set), result_err transition: retriable while
// attempts remain, terminal FAILED otherwise.
func (l *Lifecycle) SubmitError(jobID, minerID string, expectedAttempt int, errMsg string) (*model.Job, error) {
	job, err := l.st.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.State != model.JobRunning || job.AssignedMinerID != minerID || job.AttemptCount != expectedAttempt {
		return nil, model.NewError(model.ErrStaleAssignment, "job is not running this attempt under this miner")
	}
	if job.CancelRequested {
		return l.finalizeCancelRunning(job, minerID)
	}

	start := job.AssignedMs
	if job.AttemptCount < l.maxAttempts {
		updated, err := l.st.ReleaseInFlight(jobID, model.JobRunning, minerID, func(j *model.Job) error {
			j.State = model.JobQueued
			j.AddExcludedMiner(minerID)
			j.AssignedMinerID = ""
			return nil
		})
		if err != nil {
			return nil, err
		}
		metrics.RetriesTotal.Inc()
		l.logTransition(jobID, model.JobRunning, model.JobQueued, "result_err", start)
		return updated, nil
	}

	updated, err := l.st.ReleaseInFlight(jobID, model.JobRunning, minerID, func(j *model.Job) error {
		j.State = model.JobFailed
		j.ErrorKind = model.ErrorKindResultError
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := l.payments.Refund(updated.PaymentID); err != nil {
		logger.Error("failed to refund job after result error", "job_id", jobID, "err", err)
	}
	l.logTransition(jobID, model.JobRunning, model.JobFailed, "result_err", start)
	metrics.JobsByTerminalStateTotal.WithLabelValues(string(model.JobFailed)).Inc()
	return updated, nil
}
