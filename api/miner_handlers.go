// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/aitbc-network/coordinator/model"
)

// pollRetryInterval is how often a long-poll with no jobs yet retries
// Queue.Poll while wait_ms hasn't elapsed.
const pollRetryInterval = 200 * time.Millisecond

type registerMinerRequest struct {
	PublicKey      []byte             `json:"public_key"`
	Capabilities   []model.Capability `json:"capabilities"`
	PricePerUnit   int64              `json:"price_per_unit"`
	MaxConcurrency int                `json:"max_concurrency"`
}

type registerMinerResponse struct {
	MinerID      string `json:"miner_id"`
	SessionToken string `json:"session_token"`
}

func (s *Server) handleRegisterMiner(w http.ResponseWriter, r *http.Request, _ httprouter.Params, tc *TenantContext) {
	var req registerMinerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	minerID, token, err := s.registry.Register(tc.TenantID, req.PublicKey, req.Capabilities, req.PricePerUnit, req.MaxConcurrency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerMinerResponse{MinerID: minerID, SessionToken: token})
}

type heartbeatRequest struct {
	Nonce       string `json:"nonce"`        // base64url
	SignedNonce string `json:"signed_nonce"` // base64url
}

type heartbeatResponse struct {
	ExpiresAtMs int64 `json:"expires_at_ms"`
}

func (s *Server) handleMinerHeartbeat(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	nonce, err := base64.URLEncoding.DecodeString(req.Nonce)
	if err != nil {
		writeError(w, model.NewError(model.ErrInvalidRequest, "nonce is not valid base64url"))
		return
	}
	signed, err := base64.URLEncoding.DecodeString(req.SignedNonce)
	if err != nil {
		writeError(w, model.NewError(model.ErrInvalidRequest, "signed_nonce is not valid base64url"))
		return
	}
	expiresAt, err := s.registry.Heartbeat(p.ByName("miner_id"), nonce, signed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, heartbeatResponse{ExpiresAtMs: expiresAt})
}

type pollRequest struct {
	Capabilities []model.Capability `json:"capabilities"`
	MaxJobs      int                `json:"max_jobs"`
	WaitMs       int64              `json:"wait_ms"`
}

// handlePoll implements bounded long-polling: if the first Poll finds
// nothing, it retries on pollRetryInterval until a job shows up, wait_ms
// elapses (clamped to poll_long_wait_ms_max), or the client disconnects.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	var req pollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	waitMs := req.WaitMs
	if waitMs > s.pollLongWaitMsMax {
		waitMs = s.pollLongWaitMsMax
	}
	if waitMs < 0 {
		waitMs = 0
	}
	minerID := p.ByName("miner_id")

	deadline := time.Now().Add(time.Duration(waitMs) * time.Millisecond)
	for {
		jobs, err := s.queue.Poll(minerID, req.Capabilities, req.MaxJobs)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(jobs) > 0 || waitMs == 0 || !time.Now().Before(deadline) {
			writeJSON(w, http.StatusOK, jobs)
			return
		}

		timer := time.NewTimer(pollRetryInterval)
		select {
		case <-r.Context().Done():
			timer.Stop()
			writeJSON(w, http.StatusOK, []*model.Job{})
			return
		case <-timer.C:
		}
	}
}

func (s *Server) handleJobHeartbeat(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	minerID := r.URL.Query().Get("miner_id")
	job, err := s.life.JobHeartbeat(p.ByName("job_id"), minerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type submitResultRequest struct {
	MinerID       string `json:"miner_id"`
	Attempt       int    `json:"attempt"`
	UnitsConsumed int64  `json:"units_consumed"`
	ResultPayload []byte `json:"result_payload"`
}

type submitResultResponse struct {
	Job     *model.Job     `json:"job"`
	Receipt *model.Receipt `json:"receipt,omitempty"`
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	var req submitResultRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	job, receipt, err := s.life.SubmitResult(p.ByName("job_id"), req.MinerID, req.Attempt, req.UnitsConsumed, req.ResultPayload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResultResponse{Job: job, Receipt: receipt})
}

type submitErrorRequest struct {
	MinerID string `json:"miner_id"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error"`
}

func (s *Server) handleSubmitError(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	var req submitErrorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	job, err := s.life.SubmitError(p.ByName("job_id"), req.MinerID, req.Attempt, req.Error)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
