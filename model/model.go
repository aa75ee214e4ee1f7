// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package model holds the coordinator's core entities (Job, Miner,
// Receipt, Payment) and the invariants that bind them, by design.
package model

// JobState is one of the job lifecycle states a Job moves through.
type JobState string

const (
	JobQueued     JobState = "QUEUED"
	JobRunning    JobState = "RUNNING"
	JobFinalizing JobState = "FINALIZING"
	JobSucceeded  JobState = "SUCCEEDED"
	JobFailed     JobState = "FAILED"
	JobExpired    JobState = "EXPIRED"
	JobCancelled  JobState = "CANCELLED"
)

// IsTerminal reports whether a job state never transitions again.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobExpired, JobCancelled:
		return true
	default:
		return false
	}
}

// ErrorKind classifies why a job ended up FAILED/EXPIRED, surfaced to
// clients by design ("User-visible behavior").
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindAttemptTimeout ErrorKind = "AttemptTimeout"
	ErrorKindMinerLost      ErrorKind = "MinerLost"
	ErrorKindResultError    ErrorKind = "ResultError"
	ErrorKindSignerUnavail  ErrorKind = "SignerUnavailable"
	ErrorKindPriceClamped   ErrorKind = "PriceClamped"
	ErrorKindDeadline       ErrorKind = "DeadlineExceeded"
)

// maxExcludeMiners is the soft cap on Job.ExcludeMiners: FIFO eviction
// once the set is full.
const maxExcludeMiners = 8

// CapabilityRequirement describes what a job needs from a miner.
type CapabilityRequirement struct {
	Model       string
	MinMemBytes uint64
	Region      string // optional, empty means "any"
	Features    []string
}

// Capability describes what a miner can offer.
type Capability struct {
	Model     string
	MemBytes  uint64
	Region    string
	Features  []string
}

// Satisfies reports whether a capability meets or exceeds a requirement,
// per the GLOSSARY definition.
func (c Capability) Satisfies(req CapabilityRequirement) bool {
	if c.Model != req.Model {
		return false
	}
	if c.MemBytes < req.MinMemBytes {
		return false
	}
	if req.Region != "" && c.Region != req.Region {
		return false
	}
	for _, f := range req.Features {
		if !containsStr(c.Features, f) {
			return false
		}
	}
	return true
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Job is one unit of compute work, by design.
type Job struct {
	ID                    string
	TenantID              string
	SubmitterID           string
	CapabilityRequirement CapabilityRequirement
	Payload               []byte
	MaxPrice              int64
	DeadlineMs            int64
	TTLMs                 int64
	CreatedMs             int64
	State                 JobState
	AssignedMinerID       string
	AssignedMs            int64
	LastHeartbeatMs       int64
	AttemptCount          int
	ExcludeMiners         []string
	CancelRequested       bool
	ResultPayload         []byte
	ErrorKind             ErrorKind
	ReceiptID             string
	PaymentID             string
}

// AddExcludedMiner appends a miner id to ExcludeMiners, FIFO-evicting the
// oldest entry once the soft cap of 8 is reached.
func (j *Job) AddExcludedMiner(minerID string) {
	for _, m := range j.ExcludeMiners {
		if m == minerID {
			return
		}
	}
	j.ExcludeMiners = append(j.ExcludeMiners, minerID)
	if len(j.ExcludeMiners) > maxExcludeMiners {
		j.ExcludeMiners = j.ExcludeMiners[len(j.ExcludeMiners)-maxExcludeMiners:]
	}
}

// IsExcluded reports whether minerID is in the job's exclusion set.
func (j *Job) IsExcluded(minerID string) bool {
	return containsStr(j.ExcludeMiners, minerID)
}

// MinerStatus is a Miner's availability state, by design.
type MinerStatus string

const (
	MinerActive   MinerStatus = "ACTIVE"
	MinerDraining MinerStatus = "DRAINING"
	MinerOffline  MinerStatus = "OFFLINE"
)

// Miner is a registered compute provider, by design.
type Miner struct {
	ID              string
	TenantID        string
	PublicKey       []byte
	Capabilities    []Capability
	PricePerUnit    int64
	Status          MinerStatus
	RegisteredMs    int64
	LastHeartbeatMs int64
	InFlightJobs    map[string]struct{}
	MaxConcurrency  int
}

// CanAcceptMore reports whether the miner has free concurrency slots.
func (m *Miner) CanAcceptMore() bool {
	return len(m.InFlightJobs) < m.MaxConcurrency
}

// Satisfies reports whether any of the miner's capabilities satisfies req.
func (m *Miner) Satisfies(req CapabilityRequirement) bool {
	for _, c := range m.Capabilities {
		if c.Satisfies(req) {
			return true
		}
	}
	return false
}

// PaymentState is one of the payment lifecycle states a Payment moves through.
type PaymentState string

const (
	PaymentHeld      PaymentState = "HELD"
	PaymentReleased  PaymentState = "RELEASED"
	PaymentRefunded  PaymentState = "REFUNDED"
	PaymentVoided    PaymentState = "VOIDED"
)

// Payment is a monetary hold/settlement tied to a job, by design.
type Payment struct {
	ID            string
	JobID         string
	PayerID       string
	PayeeID       string
	AmountHeld    int64
	AmountSettled int64
	HasSettled    bool
	State         PaymentState
	CreatedMs     int64
	SettledMs     int64
}

// PaymentEvent is the outbox record delivered to the LedgerSink at least
// once by design (the payment_events table).
type PaymentEvent struct {
	ID        string
	PaymentID string
	JobID     string
	State     PaymentState
	Amount    int64
	PayeeID   string
	CreatedMs int64
	Delivered bool
}

// Receipt is evidence that a job completed, by design. Field order
// here mirrors declaration order for readability; the wire-exact order is
// enforced separately by the signer package's canonicalizer, not by
// struct field order (Go does not guarantee JSON marshal order from
// struct tags alone without a custom encoder).
type Receipt struct {
	ReceiptID      string
	JobID          string
	Attempt        int
	TenantID       string
	MinerID        string
	SubmitterID    string
	UnitsConsumed  int64
	UnitRate       int64
	AmountCharged  int64
	StartedMs      int64
	CompletedMs    int64
	ResultHash     string
	Model          string
	KeyID          string
	Signature      string
	Attestation    []byte
}

// JobTransition is one row of the append-only per-job audit trail kept by
// Store. Lifecycle and JobQueue append one after each state transition
// they complete; a rejected or failed update appends nothing.
type JobTransition struct {
	JobID      string
	From       JobState
	To         JobState
	Reason     string
	AtMs       int64
	DurationMs int64
}
