// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package sqlstore

import (
	"github.com/jinzhu/gorm"

	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

func (s *SQLStore) CreateJob(j *model.Job) error {
	row, err := toJobRow(j)
	if err != nil {
		return err
	}
	if err := s.db.Create(row).Error; err != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: create job failed", err)
	}
	return nil
}

func (s *SQLStore) getJobTx(tx *gorm.DB, id string) (*jobRow, error) {
	var row jobRow
	if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
		if isNoRows(err) {
			return nil, model.NewError(model.ErrNotFound, "job not found: "+id)
		}
		return nil, model.WrapError(model.ErrInternal, "sqlstore: get job failed", err)
	}
	return &row, nil
}

func (s *SQLStore) GetJob(id string) (*model.Job, error) {
	row, err := s.getJobTx(s.db, id)
	if err != nil {
		return nil, err
	}
	return fromJobRow(row)
}

// UpdateJobAtomic loads the job, checks it is still in expectedState,
// runs mutator, and writes it back inside one SERIALIZABLE transaction.
// The write itself is additionally guarded by `WHERE state = ?` so a
// concurrent writer that committed between the read and this statement
// is caught as model.ErrStaleState even under weaker isolation settings.
func (s *SQLStore) UpdateJobAtomic(id string, expectedState model.JobState, mutator store.JobMutator) (*model.Job, error) {
	var result *model.Job
	err := s.withSerializableTx(func(tx *gorm.DB) error {
		row, err := s.getJobTx(tx, id)
		if err != nil {
			return err
		}
		if model.JobState(row.State) != expectedState {
			return model.NewError(model.ErrStaleState, "job state changed since read")
		}
		job, err := fromJobRow(row)
		if err != nil {
			return err
		}
		if err := mutator(job); err != nil {
			return err
		}
		newRow, err := toJobRow(job)
		if err != nil {
			return err
		}
		res := tx.Model(&jobRow{}).Where("id = ? AND state = ?", id, string(expectedState)).Updates(newRow)
		if err := affectedOrStale(res, "job state changed since read"); err != nil {
			return err
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AssignJob atomically moves a QUEUED job to RUNNING under a specific
// miner and reserves a concurrency slot on that miner, in one
// transaction — either both rows change or neither does.
func (s *SQLStore) AssignJob(jobID, minerID string, nowMs int64) (*model.Job, error) {
	var result *model.Job
	err := s.withSerializableTx(func(tx *gorm.DB) error {
		jobRowVal, err := s.getJobTx(tx, jobID)
		if err != nil {
			return err
		}
		if model.JobState(jobRowVal.State) != model.JobQueued {
			return model.NewError(model.ErrStaleState, "job is no longer queued")
		}
		var minerRowVal minerRow
		if err := tx.Where("id = ?", minerID).First(&minerRowVal).Error; err != nil {
			if isNoRows(err) {
				return model.NewError(model.ErrUnknownMiner, "miner not found: "+minerID)
			}
			return model.WrapError(model.ErrInternal, "sqlstore: get miner failed", err)
		}
		miner, err := fromMinerRow(&minerRowVal)
		if err != nil {
			return err
		}
		if !miner.CanAcceptMore() {
			return model.NewError(model.ErrStaleState, "miner has no free concurrency")
		}

		job, err := fromJobRow(jobRowVal)
		if err != nil {
			return err
		}
		job.State = model.JobRunning
		job.AssignedMinerID = minerID
		job.AssignedMs = nowMs
		job.LastHeartbeatMs = nowMs
		job.AttemptCount++
		newJobRow, err := toJobRow(job)
		if err != nil {
			return err
		}
		res := tx.Model(&jobRow{}).Where("id = ? AND state = ?", jobID, string(model.JobQueued)).Updates(newJobRow)
		if err := affectedOrStale(res, "job is no longer queued"); err != nil {
			return err
		}

		miner.InFlightJobs[jobID] = struct{}{}
		newMinerRow, err := toMinerRow(miner)
		if err != nil {
			return err
		}
		if err := tx.Model(&minerRow{}).Where("id = ?", minerID).Updates(newMinerRow).Error; err != nil {
			return model.WrapError(model.ErrInternal, "sqlstore: update miner failed", err)
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseInFlight removes jobID from minerID's in-flight set and applies
// mutator to the job, in one transaction, used whenever a job leaves
// RUNNING (finalized, expired, cancelled, lost-miner requeue).
func (s *SQLStore) ReleaseInFlight(jobID string, expectedState model.JobState, minerID string, mutator store.JobMutator) (*model.Job, error) {
	var result *model.Job
	err := s.withSerializableTx(func(tx *gorm.DB) error {
		jobRowVal, err := s.getJobTx(tx, jobID)
		if err != nil {
			return err
		}
		if model.JobState(jobRowVal.State) != expectedState {
			return model.NewError(model.ErrStaleState, "job state changed since read")
		}
		job, err := fromJobRow(jobRowVal)
		if err != nil {
			return err
		}
		if err := mutator(job); err != nil {
			return err
		}
		newJobRow, err := toJobRow(job)
		if err != nil {
			return err
		}
		res := tx.Model(&jobRow{}).Where("id = ? AND state = ?", jobID, string(expectedState)).Updates(newJobRow)
		if err := affectedOrStale(res, "job state changed since read"); err != nil {
			return err
		}

		if minerID != "" {
			var minerRowVal minerRow
			if err := tx.Where("id = ?", minerID).First(&minerRowVal).Error; err != nil {
				if !isNoRows(err) {
					return model.WrapError(model.ErrInternal, "sqlstore: get miner failed", err)
				}
			} else {
				miner, err := fromMinerRow(&minerRowVal)
				if err != nil {
					return err
				}
				delete(miner.InFlightJobs, jobID)
				newMinerRow, err := toMinerRow(miner)
				if err != nil {
					return err
				}
				if err := tx.Model(&minerRow{}).Where("id = ?", minerID).Updates(newMinerRow).Error; err != nil {
					return model.WrapError(model.ErrInternal, "sqlstore: update miner failed", err)
				}
			}
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLStore) AppendJobTransition(t model.JobTransition) error {
	if err := s.db.Create(toTransitionRow(&t)).Error; err != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: append transition failed", err)
	}
	return nil
}

func (s *SQLStore) GetJobTransitions(jobID string) ([]model.JobTransition, error) {
	var rows []jobTransitionRow
	if err := s.db.Where("job_id = ?", jobID).Order("seq_id asc").Find(&rows).Error; err != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: list transitions failed", err)
	}
	out := make([]model.JobTransition, 0, len(rows))
	for i := range rows {
		out = append(out, *fromTransitionRow(&rows[i]))
	}
	return out, nil
}

func (s *SQLStore) ScanJobsByState(state model.JobState, limit int) ([]*model.Job, error) {
	q := s.db.Where("state = ?", string(state)).Order("created_ms asc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []jobRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: scan jobs failed", err)
	}
	return jobsFromRows(rows)
}

func (s *SQLStore) ScanJobsExpiringBefore(ts int64, limit int) ([]*model.Job, error) {
	q := s.db.Where("state NOT IN (?) AND (created_ms + ttl_ms) <= ?",
		[]string{string(model.JobSucceeded), string(model.JobFailed), string(model.JobExpired), string(model.JobCancelled)}, ts).
		Order("created_ms asc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []jobRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: scan expiring jobs failed", err)
	}
	return jobsFromRows(rows)
}

func jobsFromRows(rows []jobRow) ([]*model.Job, error) {
	out := make([]*model.Job, 0, len(rows))
	for i := range rows {
		j, err := fromJobRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}
