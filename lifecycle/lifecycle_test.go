// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package lifecycle

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
	"github.com/aitbc-network/coordinator/store/kvstore"
)

type fakeSettler struct {
	released []string
	refunded []string
}

func (f *fakeSettler) Release(paymentID string, settledAmount int64, payeeID string) (*model.Payment, error) {
	f.released = append(f.released, paymentID)
	return &model.Payment{ID: paymentID, State: model.PaymentReleased, AmountSettled: settledAmount}, nil
}

func (f *fakeSettler) Refund(paymentID string) (*model.Payment, error) {
	f.refunded = append(f.refunded, paymentID)
	return &model.Payment{ID: paymentID, State: model.PaymentRefunded}, nil
}

type fakeReceiptBuilder struct {
	fail bool
}

func (f *fakeReceiptBuilder) BuildAndSeal(job *model.Job, miner *model.Miner, startedMs int64, unitsConsumed int64, resultPayload []byte) (*model.Receipt, model.ErrorKind, error) {
	if f.fail {
		return nil, model.ErrorKindNone, model.NewError(model.ErrSignerUnavailable, "no active key")
	}
	return &model.Receipt{
		ReceiptID:     job.ID + "-r",
		JobID:         job.ID,
		Attempt:       job.AttemptCount,
		AmountCharged: unitsConsumed * miner.PricePerUnit / 1000,
	}, model.ErrorKindNone, nil
}

func newTestLifecycle(t *testing.T, maxAttempts int, attemptTimeoutMs int64, failSeal bool) (*Lifecycle, store.Store, *fakeSettler, func()) {
	dir, err := ioutil.TempDir("", "coordinator-lifecycle-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	st, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("cannot open kvstore: %v", err)
	}
	clk := clock.NewManual(1_000_000)
	settler := &fakeSettler{}
	l := New(st, clk, settler, &fakeReceiptBuilder{fail: failSeal}, maxAttempts, attemptTimeoutMs)
	return l, st, settler, func() {
		st.Close()
		os.RemoveAll(dir)
	}
}

func seedRunningJob(t *testing.T, st store.Store, attempt int, lastHeartbeatMs, assignedMs, ttlMs int64) *model.Job {
	job := &model.Job{
		ID: "job-1", TenantID: "tenant-1", SubmitterID: "submitter-1",
		MaxPrice: 1000, CreatedMs: 900_000, TTLMs: ttlMs,
		State: model.JobRunning, AssignedMinerID: "miner-1",
		AssignedMs: assignedMs, LastHeartbeatMs: lastHeartbeatMs,
		AttemptCount: attempt, PaymentID: "pay-1",
	}
	assert.NoError(t, st.CreateJob(job))
	miner := &model.Miner{
		ID: "miner-1", TenantID: "tenant-1", Status: model.MinerActive,
		MaxConcurrency: 2, PricePerUnit: 100,
		InFlightJobs: map[string]struct{}{"job-1": {}},
	}
	assert.NoError(t, st.RegisterMiner(miner))
	return job
}

func TestLifecycle_SubmitResult_SucceedsAndReleasesPayment(t *testing.T) {
	l, st, settler, cleanup := newTestLifecycle(t, 3, 120_000, false)
	defer cleanup()
	seedRunningJob(t, st, 1, 1_000_000, 1_000_000, 300_000)

	job, receipt, err := l.SubmitResult("job-1", "miner-1", 1, 5, []byte("result"))
	assert.NoError(t, err)
	assert.Equal(t, model.JobSucceeded, job.State)
	assert.NotNil(t, receipt)
	assert.Contains(t, settler.released, "pay-1")

	miner, err := st.GetMiner("miner-1")
	assert.NoError(t, err)
	assert.NotContains(t, miner.InFlightJobs, "job-1")
}

func TestLifecycle_SubmitResult_SealFailureFailsAndRefunds(t *testing.T) {
	l, st, settler, cleanup := newTestLifecycle(t, 3, 120_000, true)
	defer cleanup()
	seedRunningJob(t, st, 1, 1_000_000, 1_000_000, 300_000)

	job, receipt, err := l.SubmitResult("job-1", "miner-1", 1, 5, []byte("result"))
	assert.Error(t, err)
	assert.Nil(t, receipt)
	assert.Equal(t, model.JobFailed, job.State)
	assert.Equal(t, model.ErrorKindSignerUnavail, job.ErrorKind)
	assert.Contains(t, settler.refunded, "pay-1")
}

func TestLifecycle_SubmitResult_RejectsStaleAttempt(t *testing.T) {
	l, st, _, cleanup := newTestLifecycle(t, 3, 120_000, false)
	defer cleanup()
	seedRunningJob(t, st, 2, 1_000_000, 1_000_000, 300_000)

	_, _, err := l.SubmitResult("job-1", "miner-1", 1, 5, []byte("result"))
	assert.Error(t, err)
	assert.Equal(t, model.ErrStaleAssignment, err.(*model.CoordError).Code)
}

func TestLifecycle_SubmitError_RetriesUnderMaxAttempts(t *testing.T) {
	l, st, _, cleanup := newTestLifecycle(t, 3, 120_000, false)
	defer cleanup()
	seedRunningJob(t, st, 1, 1_000_000, 1_000_000, 300_000)

	job, err := l.SubmitError("job-1", "miner-1", 1, "boom")
	assert.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.State)
	assert.Contains(t, job.ExcludeMiners, "miner-1")
}

func TestLifecycle_SubmitError_FailsAtMaxAttempts(t *testing.T) {
	l, st, settler, cleanup := newTestLifecycle(t, 1, 120_000, false)
	defer cleanup()
	seedRunningJob(t, st, 1, 1_000_000, 1_000_000, 300_000)

	job, err := l.SubmitError("job-1", "miner-1", 1, "boom")
	assert.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.State)
	assert.Equal(t, model.ErrorKindResultError, job.ErrorKind)
	assert.Contains(t, settler.refunded, "pay-1")
}

func TestLifecycle_Cancel_QueuedIsImmediate(t *testing.T) {
	l, st, settler, cleanup := newTestLifecycle(t, 3, 120_000, false)
	defer cleanup()
	job := &model.Job{ID: "job-2", State: model.JobQueued, PaymentID: "pay-2", CreatedMs: 900_000}
	assert.NoError(t, st.CreateJob(job))

	updated, err := l.Cancel("job-2")
	assert.NoError(t, err)
	assert.Equal(t, model.JobCancelled, updated.State)
	assert.Contains(t, settler.refunded, "pay-2")
}

func TestLifecycle_Cancel_RunningFlagsThenHeartbeatFinalizes(t *testing.T) {
	l, st, settler, cleanup := newTestLifecycle(t, 3, 120_000, false)
	defer cleanup()
	seedRunningJob(t, st, 1, 1_000_000, 1_000_000, 300_000)

	flagged, err := l.Cancel("job-1")
	assert.NoError(t, err)
	assert.True(t, flagged.CancelRequested)
	assert.Equal(t, model.JobRunning, flagged.State)

	finalized, err := l.JobHeartbeat("job-1", "miner-1")
	assert.NoError(t, err)
	assert.Equal(t, model.JobCancelled, finalized.State)
	assert.Contains(t, settler.refunded, "pay-1")

	miner, _ := st.GetMiner("miner-1")
	assert.NotContains(t, miner.InFlightJobs, "job-1")
}

func TestLifecycle_JobHeartbeat_ExtendsDeadline(t *testing.T) {
	l, st, _, cleanup := newTestLifecycle(t, 3, 120_000, false)
	defer cleanup()
	seedRunningJob(t, st, 1, 1_000_000, 1_000_000, 300_000)

	updated, err := l.JobHeartbeat("job-1", "miner-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(1_000_000), updated.LastHeartbeatMs)
}

func TestLifecycle_OnMinerLost_FailsAtMaxAttempts(t *testing.T) {
	l, st, settler, cleanup := newTestLifecycle(t, 1, 120_000, false)
	defer cleanup()
	seedRunningJob(t, st, 1, 1_000_000, 1_000_000, 300_000)

	l.OnMinerLost("job-1")
	job, err := st.GetJob("job-1")
	assert.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.State)
	assert.Equal(t, model.ErrorKindMinerLost, job.ErrorKind)
	assert.Contains(t, settler.refunded, "pay-1")
}

func TestLifecycle_SweepAttemptTimeouts_RetriesStaleHeartbeat(t *testing.T) {
	l, st, _, cleanup := newTestLifecycle(t, 3, 120_000, false)
	defer cleanup()
	seedRunningJob(t, st, 1, 1_000_000, 1_000_000, 300_000)

	touched, err := l.SweepAttemptTimeouts(1_000_000+120_000, 100)
	assert.NoError(t, err)
	assert.Equal(t, 1, touched)

	job, err := st.GetJob("job-1")
	assert.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.State)
	assert.Contains(t, job.ExcludeMiners, "miner-1")
}

func TestLifecycle_SweepAbsoluteDeadlines_ExpiresRunningJob(t *testing.T) {
	l, st, settler, cleanup := newTestLifecycle(t, 3, 120_000, false)
	defer cleanup()
	seedRunningJob(t, st, 1, 1_000_000, 1_000_000, 100_000)

	touched, err := l.SweepAbsoluteDeadlines(900_000+100_000, 100)
	assert.NoError(t, err)
	assert.Equal(t, 1, touched)

	job, err := st.GetJob("job-1")
	assert.NoError(t, err)
	assert.Equal(t, model.JobExpired, job.State)
	assert.Contains(t, settler.refunded, "pay-1")
}
