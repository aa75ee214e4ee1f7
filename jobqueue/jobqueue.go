// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package jobqueue owns the pending-set index and the miner-poll
// contract: admission (submit_job) and at-most-once
// QUEUED->RUNNING dispatch. State transitions past RUNNING belong to
// lifecycle.
package jobqueue

import (
	"sort"

	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/metrics"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

var logger = log.NewModuleLogger("jobqueue")

// PaymentHolder is the narrow slice of PaymentEngine the queue needs to
// place a hold at admission time.
type PaymentHolder interface {
	Hold(jobID, payerID string, amount int64) (*model.Payment, error)
}

// pollScanLimit bounds how many QUEUED jobs a single poll call
// examines before giving up, mirroring the timer sweep's
// timer_batch_max back-pressure valve applied to dispatch.
const pollScanLimit = 1000

// Queue is the concrete JobQueue.
type Queue struct {
	st       store.Store
	clk      clock.Clock
	idGen    clock.IDGen
	payments PaymentHolder

	maxJobPayloadBytes int
	tenantOpenJobsMax  int
	livenessTimeoutMs  int64
}

// New builds a Queue. maxJobPayloadBytes and tenantOpenJobsMax are the
// configuration surface's max_job_payload_bytes / tenant_open_jobs_max.
// livenessTimeoutMs is miner_liveness_timeout_ms: Poll rejects a miner
// whose last heartbeat is older than this even if the liveness sweep
// hasn't yet caught up and flipped it OFFLINE.
func New(st store.Store, clk clock.Clock, idGen clock.IDGen, payments PaymentHolder, maxJobPayloadBytes, tenantOpenJobsMax int, livenessTimeoutMs int64) *Queue {
	return &Queue{
		st:                 st,
		clk:                clk,
		idGen:              idGen,
		payments:           payments,
		maxJobPayloadBytes: maxJobPayloadBytes,
		tenantOpenJobsMax:  tenantOpenJobsMax,
		livenessTimeoutMs:  livenessTimeoutMs,
	}
}

var openJobStates = []model.JobState{model.JobQueued, model.JobRunning, model.JobFinalizing}

func (q *Queue) countOpenJobs(tenantID string) (int, error) {
	count := 0
	for _, st := range openJobStates {
		jobs, err := q.st.ScanJobsByState(st, 0)
		if err != nil {
			return 0, err
		}
		for _, j := range jobs {
			if j.TenantID == tenantID {
				count++
			}
		}
	}
	return count, nil
}

// Submit admits a new job: validates payload size and the tenant's
// open-job quota, places a payment hold for max_price, then creates the
// job QUEUED with attempt_count = 0.
func (q *Queue) Submit(tenantID, submitterID string, req model.CapabilityRequirement, payload []byte, maxPrice int64, ttlMs int64) (*model.Job, *model.Payment, error) {
	if len(payload) > q.maxJobPayloadBytes {
		return nil, nil, model.NewError(model.ErrPayloadTooLarge, "payload exceeds max_job_payload_bytes")
	}
	open, err := q.countOpenJobs(tenantID)
	if err != nil {
		return nil, nil, err
	}
	if open >= q.tenantOpenJobsMax {
		return nil, nil, model.NewError(model.ErrQuotaExceeded, "tenant open-job quota exceeded")
	}

	id := clock.MustNewID(q.idGen)
	now := q.clk.NowMs()

	payment, err := q.payments.Hold(id, submitterID, maxPrice)
	if err != nil {
		return nil, nil, err
	}

	job := &model.Job{
		ID:                    id,
		TenantID:              tenantID,
		SubmitterID:           submitterID,
		CapabilityRequirement: req,
		Payload:               payload,
		MaxPrice:              maxPrice,
		DeadlineMs:            now + ttlMs,
		TTLMs:                 ttlMs,
		CreatedMs:             now,
		State:                 model.JobQueued,
		PaymentID:             payment.ID,
	}
	if err := q.st.CreateJob(job); err != nil {
		return nil, nil, err
	}
	if err := q.st.AppendJobTransition(model.JobTransition{
		JobID: id, From: "", To: model.JobQueued, Reason: "submit_job", AtMs: now,
	}); err != nil {
		logger.Warn("failed to append job transition", "job_id", id, "err", err)
	}
	metrics.JobsSubmittedTotal.Inc()
	logger.Info("job submitted", "job_id", id, "tenant_id", tenantID, "max_price", maxPrice)
	return job, payment, nil
}

// Poll selects up to min(maxJobs, miner capacity) QUEUED jobs the miner
// satisfies, FIFO by created_ms then id, and atomically assigns each
// one. Losing a race on a candidate consumes no retry budget: the
// candidate is simply skipped.
func (q *Queue) Poll(minerID string, capabilities []model.Capability, maxJobs int) ([]*model.Job, error) {
	miner, err := q.st.GetMiner(minerID)
	if err != nil {
		return nil, err
	}
	if miner.Status != model.MinerActive {
		return nil, model.NewError(model.ErrMinerNotActive, "miner is not active")
	}
	if q.clk.NowMs()-miner.LastHeartbeatMs > q.livenessTimeoutMs {
		return nil, model.NewError(model.ErrMinerNotActive, "miner heartbeat is stale")
	}
	capacity := miner.MaxConcurrency - len(miner.InFlightJobs)
	if capacity <= 0 {
		return nil, nil
	}
	want := maxJobs
	if capacity < want {
		want = capacity
	}
	if want <= 0 {
		return nil, nil
	}

	candidates, err := q.st.ScanJobsByState(model.JobQueued, pollScanLimit)
	if err != nil {
		return nil, err
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedMs != candidates[j].CreatedMs {
			return candidates[i].CreatedMs < candidates[j].CreatedMs
		}
		return candidates[i].ID < candidates[j].ID
	})

	now := q.clk.NowMs()
	var assigned []*model.Job
	for _, c := range candidates {
		if len(assigned) >= want {
			break
		}
		if c.IsExcluded(minerID) {
			continue
		}
		if !minerSatisfiesAny(capabilities, c.CapabilityRequirement) {
			continue
		}
		job, err := q.st.AssignJob(c.ID, minerID, now)
		if err != nil {
			if store.IsStale(err) {
				metrics.AssignmentRacesTotal.Inc()
				continue
			}
			return nil, err
		}
		if err := q.st.AppendJobTransition(model.JobTransition{
			JobID: job.ID, From: model.JobQueued, To: model.JobRunning, Reason: "assign", AtMs: now,
		}); err != nil {
			logger.Warn("failed to append job transition", "job_id", job.ID, "err", err)
		}
		metrics.MinerAssignmentsTotal.Inc()
		metrics.JobQueueWaitMs.Observe(float64(now - c.CreatedMs))
		assigned = append(assigned, job)
	}
	return assigned, nil
}

func minerSatisfiesAny(caps []model.Capability, req model.CapabilityRequirement) bool {
	for _, c := range caps {
		if c.Satisfies(req) {
			return true
		}
	}
	return false
}
