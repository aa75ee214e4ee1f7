// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package receipt is the ReceiptService: computes the
// result hash and charge, seals the receipt through the Signer, and
// persists it idempotently on (job_id, attempt_count).
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/metrics"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/signer"
	"github.com/aitbc-network/coordinator/store"
)

var logger = log.NewModuleLogger("receipt")

// idempotencyCacheBytes sizes the fastcache idempotency index; a miss
// just falls through to Store.GetReceiptByJobAttempt, so this is an
// optimization, not a correctness dependency.
const idempotencyCacheBytes = 8 * 1024 * 1024

// Service is the concrete ReceiptService.
type Service struct {
	st     store.Store
	signer *signer.Signer
	clk    clock.Clock

	// failOnPriceClamp selects the policy for units_consumed*price
	// exceeding job.max_price: false (default) clamps and succeeds with
	// error_kind=PriceClamped; true fails the attempt with
	// InsufficientFunds instead, by design Open Question 1.
	failOnPriceClamp bool

	idemCache *fastcache.Cache
}

func New(st store.Store, sg *signer.Signer, clk clock.Clock, failOnPriceClamp bool) *Service {
	return &Service{
		st:               st,
		signer:           sg,
		clk:              clk,
		failOnPriceClamp: failOnPriceClamp,
		idemCache:        fastcache.New(idempotencyCacheBytes),
	}
}

func receiptIDFor(jobID string, attempt int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", jobID, attempt)))
	return hex.EncodeToString(sum[:])
}

// BuildAndSeal computes, signs, and persists the Receipt for one
// completed attempt. If a receipt for (job.ID, job.AttemptCount)
// already exists, it is returned unchanged — replayed submit_result
// calls are idempotent.
func (s *Service) BuildAndSeal(job *model.Job, miner *model.Miner, startedMs int64, unitsConsumed int64, resultPayload []byte) (*model.Receipt, model.ErrorKind, error) {
	start := time.Now()
	defer func() {
		metrics.ReceiptSealDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	receiptID := receiptIDFor(job.ID, job.AttemptCount)

	if cached := s.idemCache.Get(nil, []byte(receiptID)); len(cached) > 0 {
		if existing, err := s.st.GetReceipt(receiptID); err == nil {
			return existing, model.ErrorKindNone, nil
		}
	}
	if existing, err := s.st.GetReceiptByJobAttempt(job.ID, job.AttemptCount); err == nil && existing != nil {
		s.idemCache.Set([]byte(receiptID), []byte{1})
		return existing, model.ErrorKindNone, nil
	}

	sum := sha256.Sum256(resultPayload)
	resultHash := hex.EncodeToString(sum[:])

	amountCharged := unitsConsumed * miner.PricePerUnit / 1000
	errorKind := model.ErrorKindNone
	if amountCharged > job.MaxPrice {
		if s.failOnPriceClamp {
			return nil, model.ErrorKindNone, model.NewError(model.ErrInsufficientFunds,
				"computed charge exceeds job max_price and clamp policy is disabled")
		}
		amountCharged = job.MaxPrice
		errorKind = model.ErrorKindPriceClamped
	}

	now := s.clk.NowMs()
	r := &model.Receipt{
		ReceiptID:     receiptID,
		JobID:         job.ID,
		Attempt:       job.AttemptCount,
		TenantID:      job.TenantID,
		MinerID:       miner.ID,
		SubmitterID:   job.SubmitterID,
		UnitsConsumed: unitsConsumed,
		UnitRate:      miner.PricePerUnit,
		AmountCharged: amountCharged,
		StartedMs:     startedMs,
		CompletedMs:   now,
		ResultHash:    resultHash,
		Model:         job.CapabilityRequirement.Model,
	}
	if err := s.signer.Seal(r); err != nil {
		return nil, model.ErrorKindSignerUnavail, err
	}

	created, err := s.st.CreateReceipt(r)
	if err != nil {
		return nil, errorKind, err
	}
	if !created {
		if existing, err := s.st.GetReceipt(receiptID); err == nil {
			return existing, model.ErrorKindNone, nil
		}
	}
	s.idemCache.Set([]byte(receiptID), []byte{1})
	logger.Info("receipt sealed", "receipt_id", receiptID, "job_id", job.ID, "amount_charged", amountCharged)
	return r, errorKind, nil
}
