// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package kvstore

import (
	"encoding/hex"

	"github.com/aitbc-network/coordinator/model"
)

func (s *KVStore) RegisterMiner(m *model.Miner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.InFlightJobs == nil {
		m.InFlightJobs = map[string]struct{}{}
	}
	if err := s.putLocked(minerKey(m.ID), m); err != nil {
		return err
	}
	return s.putLocked(minerByPubKeyKey(m.TenantID, hex.EncodeToString(m.PublicKey)), m.ID)
}

func (s *KVStore) GetMiner(id string) (*model.Miner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m model.Miner
	ok, err := s.getLocked(minerKey(id), &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.ErrUnknownMiner, "miner not found: "+id)
	}
	return &m, nil
}

func (s *KVStore) GetMinerByPublicKey(tenantID string, publicKey []byte) (*model.Miner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id string
	ok, err := s.getLocked(minerByPubKeyKey(tenantID, hex.EncodeToString(publicKey)), &id)
	if err != nil || !ok {
		return nil, err
	}
	var m model.Miner
	ok, err = s.getLocked(minerKey(id), &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

func (s *KVStore) TouchMinerHeartbeat(id string, nowMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m model.Miner
	ok, err := s.getLocked(minerKey(id), &m)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewError(model.ErrUnknownMiner, "miner not found: "+id)
	}
	m.LastHeartbeatMs = nowMs
	return s.putLocked(minerKey(id), &m)
}

func (s *KVStore) SetMinerStatus(id string, status model.MinerStatus, expectedPrev model.MinerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m model.Miner
	ok, err := s.getLocked(minerKey(id), &m)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewError(model.ErrUnknownMiner, "miner not found: "+id)
	}
	if m.Status != expectedPrev {
		return model.NewError(model.ErrStaleState, "miner status changed since read")
	}
	m.Status = status
	return s.putLocked(minerKey(id), &m)
}

func (s *KVStore) ListMinersByStatus(status model.MinerStatus) ([]*model.Miner, error) {
	all, err := s.ListAllMiners()
	if err != nil {
		return nil, err
	}
	var out []*model.Miner
	for _, m := range all {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *KVStore) ListAllMiners() ([]*model.Miner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []*model.Miner
	for iter.Next() {
		key := string(iter.Key())
		if len(key) < 6 || key[:6] != "miner:" {
			continue
		}
		var m model.Miner
		if err := decodeInto(iter.Value(), &m); err != nil {
			continue
		}
		mc := m
		out = append(out, &mc)
	}
	return out, nil
}
