// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

// Package noopsink is the payment.LedgerSink used by the embedded/dev
// profile: it acks every event immediately without writing it anywhere
// durable, so FlushOutbox always drains.
package noopsink

import "github.com/aitbc-network/coordinator/model"

type Sink struct{}

func New() *Sink { return &Sink{} }

func (Sink) Record(e *model.PaymentEvent) error { return nil }
