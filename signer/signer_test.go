// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aitbc-network/coordinator/model"
)

func testReceipt() *model.Receipt {
	return &model.Receipt{
		ReceiptID:     "receipt-1",
		JobID:         "job-1",
		Attempt:       1,
		TenantID:      "tenant-1",
		MinerID:       "miner-1",
		SubmitterID:   "submitter-1",
		UnitsConsumed: 5,
		UnitRate:      100,
		AmountCharged: 500,
		StartedMs:     1_000,
		CompletedMs:   2_000,
		ResultHash:    "deadbeef",
		Model:         "llama-7b",
	}
}

func TestSigner_SealThenVerify(t *testing.T) {
	s := New()
	k, err := GenerateKey("key-1")
	assert.NoError(t, err)
	s.SetCurrentKey(k)

	r := testReceipt()
	assert.NoError(t, s.Seal(r))
	assert.Equal(t, "key-1", r.KeyID)
	assert.NotEmpty(t, r.Signature)

	ok, err := s.Verify(r)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestSigner_SealFailsWithNoActiveKey(t *testing.T) {
	s := New()
	err := s.Seal(testReceipt())
	assert.Error(t, err)
	cerr, ok := err.(*model.CoordError)
	assert.True(t, ok)
	assert.Equal(t, model.ErrSignerUnavailable, cerr.Code)
	assert.False(t, s.HasActiveKey())
}

func TestSigner_VerifyAgainstRetiredKeyAfterRotation(t *testing.T) {
	s := New()
	oldKey, err := GenerateKey("key-1")
	assert.NoError(t, err)
	s.SetCurrentKey(oldKey)

	r := testReceipt()
	assert.NoError(t, s.Seal(r))

	newKey, err := GenerateKey("key-2")
	assert.NoError(t, err)
	s.SetCurrentKey(newKey)

	// A receipt sealed under the retired key must still verify: rotation
	// never invalidates a past signature.
	ok, err := s.Verify(r)
	assert.NoError(t, err)
	assert.True(t, ok)

	r2 := testReceipt()
	r2.ReceiptID = "receipt-2"
	assert.NoError(t, s.Seal(r2))
	assert.Equal(t, "key-2", r2.KeyID)
}

func TestSigner_VerifyRejectsTamperedReceipt(t *testing.T) {
	s := New()
	k, err := GenerateKey("key-1")
	assert.NoError(t, err)
	s.SetCurrentKey(k)

	r := testReceipt()
	assert.NoError(t, s.Seal(r))
	r.AmountCharged = 999_999

	ok, err := s.Verify(r)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_VerifyUnknownKeyID(t *testing.T) {
	s := New()
	k, err := GenerateKey("key-1")
	assert.NoError(t, err)
	s.SetCurrentKey(k)

	r := testReceipt()
	r.KeyID = "key-does-not-exist"
	r.Signature = "not-checked"
	_, err = s.Verify(r)
	assert.Error(t, err)
	cerr, ok := err.(*model.CoordError)
	assert.True(t, ok)
	assert.Equal(t, model.ErrSignerUnavailable, cerr.Code)
}
