// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package kvstore

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aitbc-network/coordinator/model"
)

func newTestStore(t *testing.T) (*KVStore, func()) {
	dir, err := ioutil.TempDir("", "coordinator-kvstore-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("cannot open kvstore: %v", err)
	}
	return st, func() {
		st.Close()
		os.RemoveAll(dir)
	}
}

func TestKVStore_CreateAndGetJob(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	job := &model.Job{ID: "job-1", TenantID: "tenant-1", State: model.JobQueued, CreatedMs: 1}
	assert.NoError(t, st.CreateJob(job))

	got, err := st.GetJob("job-1")
	assert.NoError(t, err)
	assert.Equal(t, job.TenantID, got.TenantID)
}

func TestKVStore_GetJob_NotFound(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	_, err := st.GetJob("missing")
	assert.Error(t, err)
	cerr, ok := err.(*model.CoordError)
	assert.True(t, ok)
	assert.Equal(t, model.ErrNotFound, cerr.Code)
}

func TestKVStore_UpdateJobAtomic_RejectsStaleState(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	job := &model.Job{ID: "job-1", State: model.JobQueued, CreatedMs: 1}
	assert.NoError(t, st.CreateJob(job))

	_, err := st.UpdateJobAtomic("job-1", model.JobRunning, func(j *model.Job) error {
		j.State = model.JobSucceeded
		return nil
	})
	assert.Error(t, err)
	cerr, ok := err.(*model.CoordError)
	assert.True(t, ok)
	assert.Equal(t, model.ErrStaleState, cerr.Code)
}

func TestKVStore_AssignJob_MovesJobAndTracksInFlight(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	assert.NoError(t, st.CreateJob(&model.Job{ID: "job-1", State: model.JobQueued, CreatedMs: 1}))
	assert.NoError(t, st.RegisterMiner(&model.Miner{ID: "miner-1", Status: model.MinerActive, MaxConcurrency: 2}))

	job, err := st.AssignJob("job-1", "miner-1", 1000)
	assert.NoError(t, err)
	assert.Equal(t, model.JobRunning, job.State)
	assert.Equal(t, "miner-1", job.AssignedMinerID)

	miner, err := st.GetMiner("miner-1")
	assert.NoError(t, err)
	_, inFlight := miner.InFlightJobs["job-1"]
	assert.True(t, inFlight)
}

func TestKVStore_AssignJob_RejectsFullMiner(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	assert.NoError(t, st.CreateJob(&model.Job{ID: "job-1", State: model.JobQueued, CreatedMs: 1}))
	assert.NoError(t, st.CreateJob(&model.Job{ID: "job-2", State: model.JobQueued, CreatedMs: 2}))
	assert.NoError(t, st.RegisterMiner(&model.Miner{ID: "miner-1", Status: model.MinerActive, MaxConcurrency: 1}))

	_, err := st.AssignJob("job-1", "miner-1", 1000)
	assert.NoError(t, err)

	_, err = st.AssignJob("job-2", "miner-1", 1000)
	assert.Error(t, err)
	cerr, ok := err.(*model.CoordError)
	assert.True(t, ok)
	assert.Equal(t, model.ErrStaleState, cerr.Code)
}

func TestKVStore_ReleaseInFlight_ClearsMinerSlot(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	assert.NoError(t, st.CreateJob(&model.Job{ID: "job-1", State: model.JobQueued, CreatedMs: 1}))
	assert.NoError(t, st.RegisterMiner(&model.Miner{ID: "miner-1", Status: model.MinerActive, MaxConcurrency: 1}))
	_, err := st.AssignJob("job-1", "miner-1", 1000)
	assert.NoError(t, err)

	job, err := st.ReleaseInFlight("job-1", model.JobRunning, "miner-1", func(j *model.Job) error {
		j.State = model.JobSucceeded
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, model.JobSucceeded, job.State)

	miner, err := st.GetMiner("miner-1")
	assert.NoError(t, err)
	assert.True(t, miner.CanAcceptMore())
}

func TestKVStore_ScanJobsByState(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	assert.NoError(t, st.CreateJob(&model.Job{ID: "job-1", State: model.JobQueued, CreatedMs: 2}))
	assert.NoError(t, st.CreateJob(&model.Job{ID: "job-2", State: model.JobQueued, CreatedMs: 1}))
	assert.NoError(t, st.CreateJob(&model.Job{ID: "job-3", State: model.JobRunning, CreatedMs: 3}))

	queued, err := st.ScanJobsByState(model.JobQueued, 0)
	assert.NoError(t, err)
	assert.Len(t, queued, 2)
	// FIFO by created_ms then id.
	assert.Equal(t, "job-2", queued[0].ID)
	assert.Equal(t, "job-1", queued[1].ID)
}

func TestKVStore_AppendAndGetJobTransitions(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	assert.NoError(t, st.AppendJobTransition(model.JobTransition{JobID: "job-1", To: model.JobQueued, AtMs: 1}))
	assert.NoError(t, st.AppendJobTransition(model.JobTransition{JobID: "job-1", From: model.JobQueued, To: model.JobRunning, AtMs: 2}))

	transitions, err := st.GetJobTransitions("job-1")
	assert.NoError(t, err)
	assert.Len(t, transitions, 2)
	assert.Equal(t, model.JobRunning, transitions[1].To)
}

func TestKVStore_PaymentLifecycle(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	p := &model.Payment{ID: "pay-1", PayerID: "tenant-1", State: model.PaymentHeld, AmountHeld: 500}
	assert.NoError(t, st.CreatePayment(p))

	got, err := st.GetPayment("pay-1")
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentHeld, got.State)

	released, err := st.TransitionPayment("pay-1", model.PaymentHeld, model.PaymentReleased, 400, "miner-1")
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentReleased, released.State)
	assert.Equal(t, int64(400), released.AmountSettled)
}

func TestKVStore_ReceiptCreateIsIdempotent(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()

	r := &model.Receipt{ReceiptID: "receipt-1", JobID: "job-1", Attempt: 1, TenantID: "tenant-1"}
	created, err := st.CreateReceipt(r)
	assert.NoError(t, err)
	assert.True(t, created)

	createdAgain, err := st.CreateReceipt(r)
	assert.NoError(t, err)
	assert.False(t, createdAgain)

	byAttempt, err := st.GetReceiptByJobAttempt("job-1", 1)
	assert.NoError(t, err)
	assert.Equal(t, "receipt-1", byAttempt.ReceiptID)
}
