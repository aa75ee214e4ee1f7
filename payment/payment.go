// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package payment is the PaymentEngine: per-job monetary
// holds and their terminal settlement, with at-least-once PaymentEvent
// delivery to an external LedgerSink via a Store-backed outbox.
package payment

import (
	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/metrics"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

var logger = log.NewModuleLogger("payment")

// LedgerSink is the external, durable consumer of settlement events
//. Record returns nil on ack, any error on a retryable
// failure — the outbox retains the event and retries on the next flush.
type LedgerSink interface {
	Record(e *model.PaymentEvent) error
}

// Engine is the concrete PaymentEngine.
type Engine struct {
	st    store.Store
	clk   clock.Clock
	idGen clock.IDGen
	sink  LedgerSink
}

func New(st store.Store, clk clock.Clock, idGen clock.IDGen, sink LedgerSink) *Engine {
	return &Engine{st: st, clk: clk, idGen: idGen, sink: sink}
}

// Hold places a HELD payment of amount for jobID, payable by payerID.
func (e *Engine) Hold(jobID, payerID string, amount int64) (*model.Payment, error) {
	p := &model.Payment{
		ID:         clock.MustNewID(e.idGen),
		JobID:      jobID,
		PayerID:    payerID,
		AmountHeld: amount,
		State:      model.PaymentHeld,
		CreatedMs:  e.clk.NowMs(),
	}
	if err := e.st.CreatePayment(p); err != nil {
		return nil, err
	}
	metrics.PaymentHoldsTotal.Inc()
	logger.Info("payment held", "payment_id", p.ID, "job_id", jobID, "amount", amount)
	return p, nil
}

// Release settles a HELD payment as RELEASED, idempotent by
// (payment_id, new state) by design.
func (e *Engine) Release(paymentID string, settledAmount int64, payeeID string) (*model.Payment, error) {
	p, err := e.st.TransitionPayment(paymentID, model.PaymentHeld, model.PaymentReleased, settledAmount, payeeID)
	if err != nil {
		return nil, err
	}
	metrics.PaymentReleasesTotal.Inc()
	e.emit(p)
	logger.Info("payment released", "payment_id", paymentID, "settled_amount", settledAmount, "payee_id", payeeID)
	return p, nil
}

// Refund settles a HELD payment as REFUNDED.
func (e *Engine) Refund(paymentID string) (*model.Payment, error) {
	p, err := e.st.TransitionPayment(paymentID, model.PaymentHeld, model.PaymentRefunded, 0, "")
	if err != nil {
		return nil, err
	}
	e.emit(p)
	logger.Info("payment refunded", "payment_id", paymentID)
	return p, nil
}

// Void is reserved for administrative voids (HELD->VOIDED).
func (e *Engine) Void(paymentID string) (*model.Payment, error) {
	p, err := e.st.TransitionPayment(paymentID, model.PaymentHeld, model.PaymentVoided, 0, "")
	if err != nil {
		return nil, err
	}
	e.emit(p)
	logger.Info("payment voided", "payment_id", paymentID)
	return p, nil
}

// emit appends a PaymentEvent to the durable outbox after a terminal
// transition; FlushOutbox is responsible for actually delivering it to
// the LedgerSink, possibly much later and possibly more than once.
func (e *Engine) emit(p *model.Payment) {
	ev := &model.PaymentEvent{
		ID:        clock.MustNewID(e.idGen),
		PaymentID: p.ID,
		JobID:     p.JobID,
		State:     p.State,
		Amount:    p.AmountSettled,
		PayeeID:   p.PayeeID,
		CreatedMs: e.clk.NowMs(),
	}
	if err := e.st.AppendPaymentEvent(ev); err != nil {
		logger.Error("failed to append payment event", "payment_id", p.ID, "err", err)
	}
}

// FlushOutbox delivers up to limit undelivered PaymentEvents to the
// sink, marking each delivered on ack. A sink error leaves the event
// undelivered for the next call — at-least-once, by design.
func (e *Engine) FlushOutbox(limit int) (delivered int, err error) {
	events, err := e.st.ListUndeliveredPaymentEvents(limit)
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		if err := e.sink.Record(ev); err != nil {
			logger.Warn("ledger sink rejected payment event, will retry", "event_id", ev.ID, "err", err)
			continue
		}
		if err := e.st.MarkPaymentEventDelivered(ev.ID); err != nil {
			logger.Error("failed to mark payment event delivered", "event_id", ev.ID, "err", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}
