// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package sqlstore

import "github.com/aitbc-network/coordinator/model"

// CreateReceipt is idempotent on ReceiptID, by design: inserting a
// receipt that already exists is a no-op success rather than a unique-key
// violation, matching kvstore's contract for replayed submit_result calls.
func (s *SQLStore) CreateReceipt(r *model.Receipt) (bool, error) {
	var existing receiptRow
	err := s.db.Where("receipt_id = ?", r.ReceiptID).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !isNoRows(err) {
		return false, model.WrapError(model.ErrInternal, "sqlstore: check receipt failed", err)
	}
	if err := s.db.Create(toReceiptRow(r)).Error; err != nil {
		return false, model.WrapError(model.ErrInternal, "sqlstore: create receipt failed", err)
	}
	return true, nil
}

func (s *SQLStore) GetReceipt(id string) (*model.Receipt, error) {
	var row receiptRow
	if err := s.db.Where("receipt_id = ?", id).First(&row).Error; err != nil {
		if isNoRows(err) {
			return nil, model.NewError(model.ErrNotFound, "receipt not found: "+id)
		}
		return nil, model.WrapError(model.ErrInternal, "sqlstore: get receipt failed", err)
	}
	return fromReceiptRow(&row), nil
}

func (s *SQLStore) GetReceiptByJobAttempt(jobID string, attempt int) (*model.Receipt, error) {
	var row receiptRow
	err := s.db.Where("job_id = ? AND attempt = ?", jobID, attempt).First(&row).Error
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, model.WrapError(model.ErrInternal, "sqlstore: get receipt by attempt failed", err)
	}
	return fromReceiptRow(&row), nil
}

func (s *SQLStore) ListReceiptsByTenant(tenantID string, limit, offset int) ([]*model.Receipt, error) {
	q := s.db.Where("tenant_id = ?", tenantID).Order("completed_ms asc")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []receiptRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: list receipts failed", err)
	}
	out := make([]*model.Receipt, 0, len(rows))
	for i := range rows {
		out = append(out, fromReceiptRow(&rows[i]))
	}
	return out, nil
}
