// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package sqlstore

import (
	"encoding/json"

	"github.com/aitbc-network/coordinator/model"
)

// jobRow is the gorm row shape for the jobs table. Nested/variable-length
// fields (capability requirement, exclude set) are stored as JSON text
// columns rather than normalized tables: none of them are queried on
// their own, only read back whole alongside the owning job.
type jobRow struct {
	ID                  string `gorm:"primary_key;size:64"`
	TenantID            string `gorm:"index;size:64"`
	SubmitterID         string `gorm:"size:64"`
	CapRequirementJSON  string `gorm:"type:text"`
	Payload             []byte `gorm:"type:mediumblob"`
	MaxPrice            int64
	DeadlineMs          int64
	TTLMs               int64
	CreatedMs           int64 `gorm:"index"`
	State               string `gorm:"index;size:16"`
	AssignedMinerID     string `gorm:"index;size:64"`
	AssignedMs          int64
	LastHeartbeatMs     int64
	AttemptCount        int
	ExcludeMinersJSON   string `gorm:"type:text"`
	CancelRequested     bool
	ResultPayload       []byte `gorm:"type:mediumblob"`
	ErrorKind           string `gorm:"size:32"`
	ReceiptID           string `gorm:"size:64"`
	PaymentID           string `gorm:"size:64"`
}

func (jobRow) TableName() string { return "jobs" }

func toJobRow(j *model.Job) (*jobRow, error) {
	capJSON, err := json.Marshal(j.CapabilityRequirement)
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, "encode capability requirement", err)
	}
	exJSON, err := json.Marshal(j.ExcludeMiners)
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, "encode exclude miners", err)
	}
	return &jobRow{
		ID:                 j.ID,
		TenantID:           j.TenantID,
		SubmitterID:        j.SubmitterID,
		CapRequirementJSON: string(capJSON),
		Payload:            j.Payload,
		MaxPrice:           j.MaxPrice,
		DeadlineMs:         j.DeadlineMs,
		TTLMs:              j.TTLMs,
		CreatedMs:          j.CreatedMs,
		State:              string(j.State),
		AssignedMinerID:    j.AssignedMinerID,
		AssignedMs:         j.AssignedMs,
		LastHeartbeatMs:    j.LastHeartbeatMs,
		AttemptCount:       j.AttemptCount,
		ExcludeMinersJSON:  string(exJSON),
		CancelRequested:    j.CancelRequested,
		ResultPayload:      j.ResultPayload,
		ErrorKind:          string(j.ErrorKind),
		ReceiptID:          j.ReceiptID,
		PaymentID:          j.PaymentID,
	}, nil
}

func fromJobRow(r *jobRow) (*model.Job, error) {
	j := &model.Job{
		ID:              r.ID,
		TenantID:        r.TenantID,
		SubmitterID:     r.SubmitterID,
		Payload:         r.Payload,
		MaxPrice:        r.MaxPrice,
		DeadlineMs:      r.DeadlineMs,
		TTLMs:           r.TTLMs,
		CreatedMs:       r.CreatedMs,
		State:           model.JobState(r.State),
		AssignedMinerID: r.AssignedMinerID,
		AssignedMs:      r.AssignedMs,
		LastHeartbeatMs: r.LastHeartbeatMs,
		AttemptCount:    r.AttemptCount,
		CancelRequested: r.CancelRequested,
		ResultPayload:   r.ResultPayload,
		ErrorKind:       model.ErrorKind(r.ErrorKind),
		ReceiptID:       r.ReceiptID,
		PaymentID:       r.PaymentID,
	}
	if r.CapRequirementJSON != "" {
		if err := json.Unmarshal([]byte(r.CapRequirementJSON), &j.CapabilityRequirement); err != nil {
			return nil, model.WrapError(model.ErrInternal, "decode capability requirement", err)
		}
	}
	if r.ExcludeMinersJSON != "" {
		if err := json.Unmarshal([]byte(r.ExcludeMinersJSON), &j.ExcludeMiners); err != nil {
			return nil, model.WrapError(model.ErrInternal, "decode exclude miners", err)
		}
	}
	return j, nil
}

type jobTransitionRow struct {
	SeqID      uint64 `gorm:"primary_key;auto_increment"`
	JobID      string `gorm:"index;size:64"`
	FromState  string `gorm:"size:16"`
	ToState    string `gorm:"size:16"`
	Reason     string `gorm:"size:256"`
	AtMs       int64
	DurationMs int64
}

func (jobTransitionRow) TableName() string { return "job_transitions" }

func toTransitionRow(t *model.JobTransition) *jobTransitionRow {
	return &jobTransitionRow{
		JobID:      t.JobID,
		FromState:  string(t.From),
		ToState:    string(t.To),
		Reason:     t.Reason,
		AtMs:       t.AtMs,
		DurationMs: t.DurationMs,
	}
}

func fromTransitionRow(r *jobTransitionRow) *model.JobTransition {
	return &model.JobTransition{
		JobID:      r.JobID,
		From:       model.JobState(r.FromState),
		To:         model.JobState(r.ToState),
		Reason:     r.Reason,
		AtMs:       r.AtMs,
		DurationMs: r.DurationMs,
	}
}

// minerRow is the gorm row shape for the miners table.
type minerRow struct {
	ID                string `gorm:"primary_key;size:64"`
	TenantID          string `gorm:"index;size:64"`
	PublicKeyHex      string `gorm:"index:idx_miner_pubkey;size:128"`
	CapabilitiesJSON  string `gorm:"type:text"`
	PricePerUnit      int64
	Status            string `gorm:"index;size:16"`
	RegisteredMs      int64
	LastHeartbeatMs   int64
	InFlightJobsJSON  string `gorm:"type:text"`
	MaxConcurrency    int
}

func (minerRow) TableName() string { return "miners" }

func toMinerRow(m *model.Miner) (*minerRow, error) {
	capJSON, err := json.Marshal(m.Capabilities)
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, "encode capabilities", err)
	}
	inflightIDs := make([]string, 0, len(m.InFlightJobs))
	for id := range m.InFlightJobs {
		inflightIDs = append(inflightIDs, id)
	}
	inflightJSON, err := json.Marshal(inflightIDs)
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, "encode in-flight jobs", err)
	}
	return &minerRow{
		ID:               m.ID,
		TenantID:         m.TenantID,
		PublicKeyHex:     hexEncode(m.PublicKey),
		CapabilitiesJSON: string(capJSON),
		PricePerUnit:     m.PricePerUnit,
		Status:           string(m.Status),
		RegisteredMs:     m.RegisteredMs,
		LastHeartbeatMs:  m.LastHeartbeatMs,
		InFlightJobsJSON: string(inflightJSON),
		MaxConcurrency:   m.MaxConcurrency,
	}, nil
}

func fromMinerRow(r *minerRow) (*model.Miner, error) {
	m := &model.Miner{
		ID:              r.ID,
		TenantID:        r.TenantID,
		PricePerUnit:    r.PricePerUnit,
		Status:          model.MinerStatus(r.Status),
		RegisteredMs:    r.RegisteredMs,
		LastHeartbeatMs: r.LastHeartbeatMs,
		MaxConcurrency:  r.MaxConcurrency,
		InFlightJobs:    map[string]struct{}{},
	}
	pk, err := hexDecode(r.PublicKeyHex)
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, "decode public key", err)
	}
	m.PublicKey = pk
	if r.CapabilitiesJSON != "" {
		if err := json.Unmarshal([]byte(r.CapabilitiesJSON), &m.Capabilities); err != nil {
			return nil, model.WrapError(model.ErrInternal, "decode capabilities", err)
		}
	}
	var inflightIDs []string
	if r.InFlightJobsJSON != "" {
		if err := json.Unmarshal([]byte(r.InFlightJobsJSON), &inflightIDs); err != nil {
			return nil, model.WrapError(model.ErrInternal, "decode in-flight jobs", err)
		}
	}
	for _, id := range inflightIDs {
		m.InFlightJobs[id] = struct{}{}
	}
	return m, nil
}

type paymentRow struct {
	ID            string `gorm:"primary_key;size:64"`
	JobID         string `gorm:"index;size:64"`
	PayerID       string `gorm:"size:64"`
	PayeeID       string `gorm:"size:64"`
	AmountHeld    int64
	AmountSettled int64
	HasSettled    bool
	State         string `gorm:"index;size:16"`
	CreatedMs     int64
	SettledMs     int64
}

func (paymentRow) TableName() string { return "payments" }

func toPaymentRow(p *model.Payment) *paymentRow {
	return &paymentRow{
		ID: p.ID, JobID: p.JobID, PayerID: p.PayerID, PayeeID: p.PayeeID,
		AmountHeld: p.AmountHeld, AmountSettled: p.AmountSettled, HasSettled: p.HasSettled,
		State: string(p.State), CreatedMs: p.CreatedMs, SettledMs: p.SettledMs,
	}
}

func fromPaymentRow(r *paymentRow) *model.Payment {
	return &model.Payment{
		ID: r.ID, JobID: r.JobID, PayerID: r.PayerID, PayeeID: r.PayeeID,
		AmountHeld: r.AmountHeld, AmountSettled: r.AmountSettled, HasSettled: r.HasSettled,
		State: model.PaymentState(r.State), CreatedMs: r.CreatedMs, SettledMs: r.SettledMs,
	}
}

type paymentEventRow struct {
	ID        string `gorm:"primary_key;size:64"`
	PaymentID string `gorm:"index;size:64"`
	JobID     string `gorm:"size:64"`
	State     string `gorm:"size:16"`
	Amount    int64
	PayeeID   string `gorm:"size:64"`
	CreatedMs int64
	Delivered bool `gorm:"index"`
}

func (paymentEventRow) TableName() string { return "payment_events" }

func toPaymentEventRow(e *model.PaymentEvent) *paymentEventRow {
	return &paymentEventRow{
		ID: e.ID, PaymentID: e.PaymentID, JobID: e.JobID, State: string(e.State),
		Amount: e.Amount, PayeeID: e.PayeeID, CreatedMs: e.CreatedMs, Delivered: e.Delivered,
	}
}

func fromPaymentEventRow(r *paymentEventRow) *model.PaymentEvent {
	return &model.PaymentEvent{
		ID: r.ID, PaymentID: r.PaymentID, JobID: r.JobID, State: model.PaymentState(r.State),
		Amount: r.Amount, PayeeID: r.PayeeID, CreatedMs: r.CreatedMs, Delivered: r.Delivered,
	}
}

type receiptRow struct {
	ReceiptID     string `gorm:"primary_key;size:64"`
	JobID         string `gorm:"index:idx_receipt_job_attempt;size:64"`
	Attempt       int    `gorm:"index:idx_receipt_job_attempt"`
	TenantID      string `gorm:"index;size:64"`
	MinerID       string `gorm:"size:64"`
	SubmitterID   string `gorm:"size:64"`
	UnitsConsumed int64
	UnitRate      int64
	AmountCharged int64
	StartedMs     int64
	CompletedMs   int64 `gorm:"index"`
	ResultHash    string `gorm:"size:128"`
	Model         string `gorm:"size:64"`
	KeyID         string `gorm:"size:64"`
	Signature     string `gorm:"size:256"`
	Attestation   []byte `gorm:"type:mediumblob"`
}

func (receiptRow) TableName() string { return "receipts" }

func toReceiptRow(r *model.Receipt) *receiptRow {
	return &receiptRow{
		ReceiptID: r.ReceiptID, JobID: r.JobID, Attempt: r.Attempt, TenantID: r.TenantID,
		MinerID: r.MinerID, SubmitterID: r.SubmitterID, UnitsConsumed: r.UnitsConsumed,
		UnitRate: r.UnitRate, AmountCharged: r.AmountCharged, StartedMs: r.StartedMs,
		CompletedMs: r.CompletedMs, ResultHash: r.ResultHash, Model: r.Model,
		KeyID: r.KeyID, Signature: r.Signature, Attestation: r.Attestation,
	}
}

func fromReceiptRow(r *receiptRow) *model.Receipt {
	return &model.Receipt{
		ReceiptID: r.ReceiptID, JobID: r.JobID, Attempt: r.Attempt, TenantID: r.TenantID,
		MinerID: r.MinerID, SubmitterID: r.SubmitterID, UnitsConsumed: r.UnitsConsumed,
		UnitRate: r.UnitRate, AmountCharged: r.AmountCharged, StartedMs: r.StartedMs,
		CompletedMs: r.CompletedMs, ResultHash: r.ResultHash, Model: r.Model,
		KeyID: r.KeyID, Signature: r.Signature, Attestation: r.Attestation,
	}
}
