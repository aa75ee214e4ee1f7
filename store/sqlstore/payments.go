// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package sqlstore

import "github.com/aitbc-network/coordinator/model"

func (s *SQLStore) CreatePayment(p *model.Payment) error {
	if err := s.db.Create(toPaymentRow(p)).Error; err != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: create payment failed", err)
	}
	return nil
}

func (s *SQLStore) GetPayment(id string) (*model.Payment, error) {
	var row paymentRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		if isNoRows(err) {
			return nil, model.NewError(model.ErrNotFound, "payment not found: "+id)
		}
		return nil, model.WrapError(model.ErrInternal, "sqlstore: get payment failed", err)
	}
	return fromPaymentRow(&row), nil
}

// TransitionPayment is idempotent by (payment_id, new state): replaying a
// transition already applied returns the current row rather than erroring,
// by design.
func (s *SQLStore) TransitionPayment(id string, expected, newState model.PaymentState, settledAmount int64, payeeID string) (*model.Payment, error) {
	res := s.db.Model(&paymentRow{}).
		Where("id = ? AND state = ?", id, string(expected)).
		Updates(map[string]interface{}{
			"state":          string(newState),
			"amount_settled": settledAmount,
			"has_settled":    true,
			"payee_id":       payeeID,
		})
	if res.Error != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: transition payment failed", res.Error)
	}
	if res.RowsAffected == 0 {
		var row paymentRow
		if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
			if isNoRows(err) {
				return nil, model.NewError(model.ErrNotFound, "payment not found: "+id)
			}
			return nil, model.WrapError(model.ErrInternal, "sqlstore: get payment failed", err)
		}
		if row.State == string(newState) {
			return fromPaymentRow(&row), nil
		}
		return nil, model.NewError(model.ErrStaleState, "payment state changed since read")
	}
	return s.GetPayment(id)
}

func (s *SQLStore) AppendPaymentEvent(e *model.PaymentEvent) error {
	if err := s.db.Create(toPaymentEventRow(e)).Error; err != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: append payment event failed", err)
	}
	return nil
}

func (s *SQLStore) ListUndeliveredPaymentEvents(limit int) ([]*model.PaymentEvent, error) {
	q := s.db.Where("delivered = ?", false).Order("created_ms asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []paymentEventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: list undelivered events failed", err)
	}
	out := make([]*model.PaymentEvent, 0, len(rows))
	for i := range rows {
		out = append(out, fromPaymentEventRow(&rows[i]))
	}
	return out, nil
}

func (s *SQLStore) MarkPaymentEventDelivered(id string) error {
	if err := s.db.Model(&paymentEventRow{}).Where("id = ?", id).Update("delivered", true).Error; err != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: mark event delivered failed", err)
	}
	return nil
}
