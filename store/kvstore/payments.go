// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package kvstore

import "github.com/aitbc-network/coordinator/model"

func (s *KVStore) CreatePayment(p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(paymentKey(p.ID), p)
}

func (s *KVStore) GetPayment(id string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p model.Payment
	ok, err := s.getLocked(paymentKey(id), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.ErrNotFound, "payment not found: "+id)
	}
	return &p, nil
}

func (s *KVStore) TransitionPayment(id string, expected, newState model.PaymentState, settledAmount int64, payeeID string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p model.Payment
	ok, err := s.getLocked(paymentKey(id), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.ErrNotFound, "payment not found: "+id)
	}
	if p.State != expected {
		// Idempotent: replaying the same terminal transition is a no-op
		// success rather than an error ("idempotent by
		// (payment_id, new state)").
		if p.State == newState {
			return &p, nil
		}
		return nil, model.NewError(model.ErrStaleState, "payment state changed since read")
	}
	p.State = newState
	p.AmountSettled = settledAmount
	p.HasSettled = true
	p.PayeeID = payeeID
	return &p, s.putLocked(paymentKey(id), &p)
}

func (s *KVStore) AppendPaymentEvent(e *model.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(paymentEventKey(e.ID), e)
}

func (s *KVStore) ListUndeliveredPaymentEvents(limit int) ([]*model.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []*model.PaymentEvent
	for iter.Next() {
		key := string(iter.Key())
		if len(key) < 9 || key[:9] != "payevent:" {
			continue
		}
		var e model.PaymentEvent
		if err := decodeInto(iter.Value(), &e); err != nil {
			continue
		}
		if !e.Delivered {
			ec := e
			out = append(out, &ec)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *KVStore) MarkPaymentEventDelivered(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var e model.PaymentEvent
	ok, err := s.getLocked(paymentEventKey(id), &e)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	e.Delivered = true
	return s.putLocked(paymentEventKey(id), &e)
}
