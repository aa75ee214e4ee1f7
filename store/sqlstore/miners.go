// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package sqlstore

import "github.com/aitbc-network/coordinator/model"

func (s *SQLStore) RegisterMiner(m *model.Miner) error {
	if m.InFlightJobs == nil {
		m.InFlightJobs = map[string]struct{}{}
	}
	row, err := toMinerRow(m)
	if err != nil {
		return err
	}
	if err := s.db.Save(row).Error; err != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: register miner failed", err)
	}
	return nil
}

func (s *SQLStore) GetMiner(id string) (*model.Miner, error) {
	var row minerRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		if isNoRows(err) {
			return nil, model.NewError(model.ErrUnknownMiner, "miner not found: "+id)
		}
		return nil, model.WrapError(model.ErrInternal, "sqlstore: get miner failed", err)
	}
	return fromMinerRow(&row)
}

func (s *SQLStore) GetMinerByPublicKey(tenantID string, publicKey []byte) (*model.Miner, error) {
	var row minerRow
	err := s.db.Where("tenant_id = ? AND public_key_hex = ?", tenantID, hexEncode(publicKey)).First(&row).Error
	if err != nil {
		if isNoRows(err) {
			return nil, model.NewError(model.ErrUnknownMiner, "miner not found for public key")
		}
		return nil, model.WrapError(model.ErrInternal, "sqlstore: get miner by key failed", err)
	}
	return fromMinerRow(&row)
}

func (s *SQLStore) TouchMinerHeartbeat(id string, nowMs int64) error {
	res := s.db.Model(&minerRow{}).Where("id = ?", id).Update("last_heartbeat_ms", nowMs)
	if res.Error != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: touch heartbeat failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NewError(model.ErrUnknownMiner, "miner not found: "+id)
	}
	return nil
}

func (s *SQLStore) SetMinerStatus(id string, status model.MinerStatus, expectedPrev model.MinerStatus) error {
	res := s.db.Model(&minerRow{}).Where("id = ? AND status = ?", id, string(expectedPrev)).Update("status", string(status))
	if res.Error != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: set miner status failed", res.Error)
	}
	if res.RowsAffected == 0 {
		var row minerRow
		if err := s.db.Where("id = ?", id).First(&row).Error; isNoRows(err) {
			return model.NewError(model.ErrUnknownMiner, "miner not found: "+id)
		}
		return model.NewError(model.ErrStaleState, "miner status changed since read")
	}
	return nil
}

func (s *SQLStore) ListMinersByStatus(status model.MinerStatus) ([]*model.Miner, error) {
	var rows []minerRow
	if err := s.db.Where("status = ?", string(status)).Find(&rows).Error; err != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: list miners failed", err)
	}
	return minersFromRows(rows)
}

func (s *SQLStore) ListAllMiners() ([]*model.Miner, error) {
	var rows []minerRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: list all miners failed", err)
	}
	return minersFromRows(rows)
}

func minersFromRows(rows []minerRow) ([]*model.Miner, error) {
	out := make([]*model.Miner, 0, len(rows))
	for i := range rows {
		m, err := fromMinerRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
