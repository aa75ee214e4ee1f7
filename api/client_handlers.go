// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package api

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/aitbc-network/coordinator/model"
)

type submitJobRequest struct {
	CapabilityRequirement model.CapabilityRequirement `json:"capability_requirement"`
	Payload               []byte                      `json:"payload"`
	MaxPrice              int64                       `json:"max_price"`
	TTLMs                 int64                       `json:"ttl_ms"`
}

type submitJobResponse struct {
	JobID     string `json:"job_id"`
	PaymentID string `json:"payment_id"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request, _ httprouter.Params, tc *TenantContext) {
	var req submitJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	job, pay, err := s.queue.Submit(tc.TenantID, tc.KeyID, req.CapabilityRequirement, req.Payload, req.MaxPrice, req.TTLMs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitJobResponse{JobID: job.ID, PaymentID: pay.ID})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	jobID := p.ByName("job_id")
	job, err := s.store.GetJob(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.TenantID != tc.TenantID {
		writeError(w, model.NewError(model.ErrNotFound, "job not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	jobID := p.ByName("job_id")
	job, err := s.store.GetJob(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.TenantID != tc.TenantID {
		writeError(w, model.NewError(model.ErrNotFound, "job not found"))
		return
	}
	updated, err := s.life.Cancel(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request, _ httprouter.Params, tc *TenantContext) {
	limit, offset := paginationParams(r)
	receipts, err := s.store.ListReceiptsByTenant(tc.TenantID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
