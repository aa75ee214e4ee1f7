// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package payment

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store/kvstore"
)

type recordingSink struct {
	recorded []*model.PaymentEvent
	fail     bool
}

func (s *recordingSink) Record(e *model.PaymentEvent) error {
	if s.fail {
		return assert.AnError
	}
	s.recorded = append(s.recorded, e)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *recordingSink, func()) {
	dir, err := ioutil.TempDir("", "coordinator-payment-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	st, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("cannot open kvstore: %v", err)
	}
	sink := &recordingSink{}
	clk := clock.NewManual(1_000_000)
	e := New(st, clk, clock.NewRandomIDGen(), sink)
	return e, sink, func() {
		st.Close()
		os.RemoveAll(dir)
	}
}

func TestEngine_HoldReleaseFlushesOutbox(t *testing.T) {
	e, sink, cleanup := newTestEngine(t)
	defer cleanup()

	p, err := e.Hold("job-1", "submitter-1", 100)
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentHeld, p.State)

	released, err := e.Release(p.ID, 42, "miner-1")
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentReleased, released.State)
	assert.Equal(t, int64(42), released.AmountSettled)

	delivered, err := e.FlushOutbox(10)
	assert.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Len(t, sink.recorded, 1)
	assert.Equal(t, p.ID, sink.recorded[0].PaymentID)
}

func TestEngine_Release_IsIdempotentByPaymentIDAndState(t *testing.T) {
	e, _, cleanup := newTestEngine(t)
	defer cleanup()

	p, _ := e.Hold("job-1", "submitter-1", 100)
	_, err := e.Release(p.ID, 42, "miner-1")
	assert.NoError(t, err)

	again, err := e.Release(p.ID, 42, "miner-1")
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentReleased, again.State)
}

func TestEngine_FlushOutbox_RetriesOnSinkFailure(t *testing.T) {
	e, sink, cleanup := newTestEngine(t)
	defer cleanup()
	sink.fail = true

	p, _ := e.Hold("job-1", "submitter-1", 100)
	_, err := e.Refund(p.ID)
	assert.NoError(t, err)

	delivered, err := e.FlushOutbox(10)
	assert.NoError(t, err)
	assert.Equal(t, 0, delivered)

	sink.fail = false
	delivered, err = e.FlushOutbox(10)
	assert.NoError(t, err)
	assert.Equal(t, 1, delivered)
}
