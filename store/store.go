// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package store defines the coordinator's persistence contract.
// Concrete backends (sqlstore, kvstore) are chosen once at startup —
// no runtime type switching.
package store

import (
	"github.com/aitbc-network/coordinator/model"
)

// JobMutator mutates a job in place as part of an atomic transition,
// including setting j.State to the resulting state; the Store persists
// the mutated job. It must not change j.ID. A non-nil error aborts the
// transition and nothing is written.
type JobMutator func(j *model.Job) error

// Store is the coordinator's durable persistence contract. Every method
// that spans more than one entity (AssignJob, ReleaseInFlight) executes
// in a single serializable
// transaction: either every row changes or none do.
type Store interface {
	CreateJob(job *model.Job) error
	GetJob(id string) (*model.Job, error)

	// UpdateJobAtomic loads the job, checks state == expectedState, runs
	// mutator, and persists the result — all within one transaction. On
	// a concurrent winner it returns *model.CoordError{Code: StaleState}.
	UpdateJobAtomic(id string, expectedState model.JobState, mutator JobMutator) (*model.Job, error)

	// AssignJob performs the QUEUED->RUNNING transition and adds jobID to
	// the miner's in_flight_jobs in one transaction.
	AssignJob(jobID string, minerID string, nowMs int64) (*model.Job, error)

	// ReleaseInFlight removes jobID from the miner's in_flight_jobs in the
	// same transaction as a job state transition performed by mutator
	// (miner lost, result submitted, cancelled, expired).
	ReleaseInFlight(jobID string, expectedState model.JobState, minerID string, mutator JobMutator) (*model.Job, error)

	AppendJobTransition(t model.JobTransition) error
	GetJobTransitions(jobID string) ([]model.JobTransition, error)

	RegisterMiner(m *model.Miner) error
	GetMiner(id string) (*model.Miner, error)
	GetMinerByPublicKey(tenantID string, publicKey []byte) (*model.Miner, error)
	TouchMinerHeartbeat(id string, nowMs int64) error
	SetMinerStatus(id string, status model.MinerStatus, expectedPrev model.MinerStatus) error
	ListMinersByStatus(status model.MinerStatus) ([]*model.Miner, error)
	ListAllMiners() ([]*model.Miner, error)

	CreatePayment(p *model.Payment) error
	GetPayment(id string) (*model.Payment, error)
	TransitionPayment(id string, expected, newState model.PaymentState, settledAmount int64, payeeID string) (*model.Payment, error)

	CreateReceipt(r *model.Receipt) (created bool, err error)
	GetReceipt(id string) (*model.Receipt, error)
	GetReceiptByJobAttempt(jobID string, attempt int) (*model.Receipt, error)
	ListReceiptsByTenant(tenantID string, limit, offset int) ([]*model.Receipt, error)

	ScanJobsByState(state model.JobState, limit int) ([]*model.Job, error)
	ScanJobsExpiringBefore(ts int64, limit int) ([]*model.Job, error)

	AppendPaymentEvent(e *model.PaymentEvent) error
	ListUndeliveredPaymentEvents(limit int) ([]*model.PaymentEvent, error)
	MarkPaymentEventDelivered(id string) error

	Close() error
}

// IsStale reports whether err is a StaleState CoordError, the signal
// every optimistic-transition caller checks before retrying or giving up.
func IsStale(err error) bool {
	return model.CodeOf(err) == model.ErrStaleState
}
