// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package jobqueue

import (
	"fmt"
	"io/ioutil"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store/kvstore"
)

type fakePaymentHolder struct {
	holds []string
}

func (f *fakePaymentHolder) Hold(jobID, payerID string, amount int64) (*model.Payment, error) {
	f.holds = append(f.holds, jobID)
	return &model.Payment{ID: "pay-" + jobID, JobID: jobID, PayerID: payerID, AmountHeld: amount, State: model.PaymentHeld}, nil
}

func newTestQueue(t *testing.T) (*Queue, func()) {
	dir, err := ioutil.TempDir("", "coordinator-jobqueue-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	st, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("cannot open kvstore: %v", err)
	}
	clk := clock.NewManual(1_000_000)
	q := New(st, clk, clock.NewRandomIDGen(), &fakePaymentHolder{}, 65536, 1000, 30_000)
	return q, func() {
		st.Close()
		os.RemoveAll(dir)
	}
}

func TestQueue_Submit_CreatesQueuedJobAndHold(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()

	req := model.CapabilityRequirement{Model: "m1", MinMemBytes: 1000}
	job, payment, err := q.Submit("tenant-a", "sub-1", req, []byte("payload"), 1000, 60000)
	assert.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.State)
	assert.Equal(t, payment.ID, job.PaymentID)
	assert.Equal(t, int64(1000), payment.AmountHeld)
}

func TestQueue_Submit_RejectsOversizedPayload(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()

	big := make([]byte, 65537)
	_, _, err := q.Submit("tenant-a", "sub-1", model.CapabilityRequirement{}, big, 10, 1000)
	assert.Error(t, err)
	assert.Equal(t, model.ErrPayloadTooLarge, model.CodeOf(err))
}

func TestQueue_Submit_RejectsOverQuota(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()
	q.tenantOpenJobsMax = 1

	req := model.CapabilityRequirement{Model: "m1"}
	_, _, err := q.Submit("tenant-a", "sub-1", req, nil, 10, 1000)
	assert.NoError(t, err)

	_, _, err = q.Submit("tenant-a", "sub-1", req, nil, 10, 1000)
	assert.Error(t, err)
	assert.Equal(t, model.ErrQuotaExceeded, model.CodeOf(err))
}

func TestQueue_Poll_AssignsMatchingJobsFIFO(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()

	req := model.CapabilityRequirement{Model: "m1", MinMemBytes: 1000}
	j1, _, _ := q.Submit("tenant-a", "sub-1", req, nil, 10, 60000)
	j2, _, _ := q.Submit("tenant-a", "sub-1", req, nil, 10, 60000)

	miner := &model.Miner{
		ID: "miner-1", Status: model.MinerActive, MaxConcurrency: 2,
		InFlightJobs: map[string]struct{}{}, LastHeartbeatMs: 1_000_000,
	}
	assert.NoError(t, q.st.RegisterMiner(miner))

	caps := []model.Capability{{Model: "m1", MemBytes: 2000}}
	assigned, err := q.Poll("miner-1", caps, 5)
	assert.NoError(t, err)
	assert.Len(t, assigned, 2)
	assert.Equal(t, j1.ID, assigned[0].ID)
	assert.Equal(t, j2.ID, assigned[1].ID)
	for _, j := range assigned {
		assert.Equal(t, model.JobRunning, j.State)
		assert.Equal(t, "miner-1", j.AssignedMinerID)
	}
}

func TestQueue_Poll_SkipsExcludedMiner(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()

	req := model.CapabilityRequirement{Model: "m1"}
	j1, _, _ := q.Submit("tenant-a", "sub-1", req, nil, 10, 60000)

	miner := &model.Miner{
		ID: "miner-1", Status: model.MinerActive, MaxConcurrency: 1,
		InFlightJobs: map[string]struct{}{}, LastHeartbeatMs: 1_000_000,
	}
	assert.NoError(t, q.st.RegisterMiner(miner))

	j1.AddExcludedMiner("miner-1")
	_, err := q.st.UpdateJobAtomic(j1.ID, model.JobQueued, func(j *model.Job) error {
		j.ExcludeMiners = j1.ExcludeMiners
		return nil
	})
	assert.NoError(t, err)

	caps := []model.Capability{{Model: "m1"}}
	assigned, err := q.Poll("miner-1", caps, 5)
	assert.NoError(t, err)
	assert.Empty(t, assigned)
}

func TestQueue_Poll_RejectsStaleHeartbeat(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()

	req := model.CapabilityRequirement{Model: "m1"}
	_, _, _ = q.Submit("tenant-a", "sub-1", req, nil, 10, 60000)

	miner := &model.Miner{
		ID: "miner-1", Status: model.MinerActive, MaxConcurrency: 1,
		InFlightJobs: map[string]struct{}{}, LastHeartbeatMs: 1_000_000 - 30_001,
	}
	assert.NoError(t, q.st.RegisterMiner(miner))

	caps := []model.Capability{{Model: "m1"}}
	_, err := q.Poll("miner-1", caps, 5)
	assert.Error(t, err)
	cerr, ok := err.(*model.CoordError)
	assert.True(t, ok)
	assert.Equal(t, model.ErrMinerNotActive, cerr.Code)
}

// TestQueue_Poll_ConcurrentMinersAssignEachJobExactlyOnce races N miners'
// goroutines against the same store.Store-backed Queue, each repeatedly
// polling for work, until every one of M QUEUED jobs has been claimed.
// AssignJob's optimistic-concurrency check (store.IsStale) must ensure no
// job is ever handed to two miners at once.
func TestQueue_Poll_ConcurrentMinersAssignEachJobExactlyOnce(t *testing.T) {
	q, cleanup := newTestQueue(t)
	defer cleanup()

	const numMiners = 8
	const numJobs = 50

	req := model.CapabilityRequirement{Model: "m1", MinMemBytes: 1000}
	jobIDs := make(map[string]struct{}, numJobs)
	for i := 0; i < numJobs; i++ {
		job, _, err := q.Submit("tenant-a", "sub-1", req, nil, 10, 600000)
		assert.NoError(t, err)
		jobIDs[job.ID] = struct{}{}
	}

	caps := []model.Capability{{Model: "m1", MemBytes: 2000}}
	for i := 0; i < numMiners; i++ {
		miner := &model.Miner{
			ID: fmt.Sprintf("miner-%d", i), Status: model.MinerActive, MaxConcurrency: numJobs,
			InFlightJobs: map[string]struct{}{}, LastHeartbeatMs: 1_000_000,
		}
		assert.NoError(t, q.st.RegisterMiner(miner))
	}

	var mu sync.Mutex
	winners := make(map[string]string, numJobs) // jobID -> minerID that won it
	var wg sync.WaitGroup
	for i := 0; i < numMiners; i++ {
		minerID := fmt.Sprintf("miner-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < numJobs; round++ {
				assigned, err := q.Poll(minerID, caps, 1)
				if err != nil || len(assigned) == 0 {
					continue
				}
				mu.Lock()
				for _, j := range assigned {
					if existing, ok := winners[j.ID]; ok {
						t.Errorf("job %s assigned to both %s and %s", j.ID, existing, minerID)
					}
					winners[j.ID] = minerID
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, winners, numJobs)
	for id := range jobIDs {
		_, ok := winners[id]
		assert.True(t, ok, "job %s was never assigned to any miner", id)
	}
}
