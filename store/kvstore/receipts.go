// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package kvstore

import "github.com/aitbc-network/coordinator/model"

// CreateReceipt is idempotent on ReceiptID, by design: a second
// create for an id that already exists is a no-op success, not an error,
// so replayed submit_result calls don't fail the second time around.
func (s *KVStore) CreateReceipt(r *model.Receipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing model.Receipt
	ok, err := s.getLocked(receiptKey(r.ReceiptID), &existing)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := s.putLocked(receiptKey(r.ReceiptID), r); err != nil {
		return false, err
	}
	if err := s.putLocked(receiptByAttemptKey(r.JobID, r.Attempt), r.ReceiptID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *KVStore) GetReceipt(id string) (*model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var r model.Receipt
	ok, err := s.getLocked(receiptKey(id), &r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.ErrNotFound, "receipt not found: "+id)
	}
	return &r, nil
}

func (s *KVStore) GetReceiptByJobAttempt(jobID string, attempt int) (*model.Receipt, error) {
	s.mu.Lock()
	var receiptID string
	ok, err := s.getLocked(receiptByAttemptKey(jobID, attempt), &receiptID)
	s.mu.Unlock()
	if err != nil || !ok {
		return nil, err
	}
	return s.GetReceipt(receiptID)
}

func (s *KVStore) ListReceiptsByTenant(tenantID string, limit, offset int) ([]*model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []*model.Receipt
	for iter.Next() {
		key := string(iter.Key())
		if len(key) < 8 || key[:8] != "receipt:" {
			continue
		}
		var r model.Receipt
		if err := decodeInto(iter.Value(), &r); err != nil {
			continue
		}
		if r.TenantID != tenantID {
			continue
		}
		rc := r
		out = append(out, &rc)
	}
	sortReceiptsByCompleted(out)
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortReceiptsByCompleted(rs []*model.Receipt) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].CompletedMs < rs[j-1].CompletedMs; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}
