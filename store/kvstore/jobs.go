// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package kvstore

import (
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

func (s *KVStore) CreateJob(job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(jobKey(job.ID), job)
}

func (s *KVStore) GetJob(id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var j model.Job
	ok, err := s.getLocked(jobKey(id), &j)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.ErrNotFound, "job not found: "+id)
	}
	return &j, nil
}

func (s *KVStore) UpdateJobAtomic(id string, expectedState model.JobState, mutator store.JobMutator) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var j model.Job
	ok, err := s.getLocked(jobKey(id), &j)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.ErrNotFound, "job not found: "+id)
	}
	if j.State != expectedState {
		return nil, model.NewError(model.ErrStaleState, "job state changed since read")
	}
	if err := mutator(&j); err != nil {
		return nil, err
	}
	if err := s.putLocked(jobKey(id), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *KVStore) AssignJob(jobID string, minerID string, nowMs int64) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var j model.Job
	ok, err := s.getLocked(jobKey(jobID), &j)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.ErrNotFound, "job not found: "+jobID)
	}
	if j.State != model.JobQueued {
		return nil, model.NewError(model.ErrStaleState, "job no longer queued")
	}

	var m model.Miner
	ok, err = s.getLocked(minerKey(minerID), &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.ErrUnknownMiner, "miner not found: "+minerID)
	}
	if m.InFlightJobs == nil {
		m.InFlightJobs = map[string]struct{}{}
	}
	if !m.CanAcceptMore() {
		return nil, model.NewError(model.ErrStaleState, "miner has no free concurrency")
	}

	j.State = model.JobRunning
	j.AssignedMinerID = minerID
	j.AssignedMs = nowMs
	j.LastHeartbeatMs = nowMs
	j.AttemptCount++

	m.InFlightJobs[jobID] = struct{}{}

	if err := s.putLocked(jobKey(jobID), &j); err != nil {
		return nil, err
	}
	if err := s.putLocked(minerKey(minerID), &m); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *KVStore) ReleaseInFlight(jobID string, expectedState model.JobState, minerID string, mutator store.JobMutator) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var j model.Job
	ok, err := s.getLocked(jobKey(jobID), &j)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewError(model.ErrNotFound, "job not found: "+jobID)
	}
	if j.State != expectedState {
		return nil, model.NewError(model.ErrStaleState, "job state changed since read")
	}
	if err := mutator(&j); err != nil {
		return nil, err
	}

	if minerID != "" {
		var m model.Miner
		ok, err := s.getLocked(minerKey(minerID), &m)
		if err != nil {
			return nil, err
		}
		if ok {
			delete(m.InFlightJobs, jobID)
			if err := s.putLocked(minerKey(minerID), &m); err != nil {
				return nil, err
			}
		}
	}

	if err := s.putLocked(jobKey(jobID), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *KVStore) AppendJobTransition(t model.JobTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []model.JobTransition
	_, err := s.getLocked(transitionsKey(t.JobID), &list)
	if err != nil {
		return err
	}
	list = append(list, t)
	return s.putLocked(transitionsKey(t.JobID), list)
}

func (s *KVStore) GetJobTransitions(jobID string) ([]model.JobTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []model.JobTransition
	_, err := s.getLocked(transitionsKey(jobID), &list)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *KVStore) ScanJobsByState(state model.JobState, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []*model.Job
	for iter.Next() {
		key := string(iter.Key())
		if len(key) < 4 || key[:4] != "job:" {
			continue
		}
		var j model.Job
		if err := decodeInto(iter.Value(), &j); err != nil {
			continue
		}
		if j.State == state {
			jc := j
			out = append(out, &jc)
		}
	}
	sortJobsByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *KVStore) ScanJobsExpiringBefore(ts int64, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []*model.Job
	for iter.Next() {
		key := string(iter.Key())
		if len(key) < 4 || key[:4] != "job:" {
			continue
		}
		var j model.Job
		if err := decodeInto(iter.Value(), &j); err != nil {
			continue
		}
		if j.State.IsTerminal() {
			continue
		}
		deadline := j.CreatedMs + j.TTLMs
		if deadline <= ts {
			jc := j
			out = append(out, &jc)
		}
	}
	sortJobsByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortJobsByCreated(jobs []*model.Job) {
	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && lessJob(jobs[j], jobs[j-1]); j-- {
			jobs[j], jobs[j-1] = jobs[j-1], jobs[j]
		}
	}
}

func lessJob(a, b *model.Job) bool {
	if a.CreatedMs != b.CreatedMs {
		return a.CreatedMs < b.CreatedMs
	}
	return a.ID < b.ID
}
