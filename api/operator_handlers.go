// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/aitbc-network/coordinator/model"
)

func (s *Server) handleDrainMiner(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	if err := s.registry.Drain(p.ByName("miner_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResumeMiner(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	if err := s.registry.Resume(p.ByName("miner_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var statsJobStates = []model.JobState{
	model.JobQueued, model.JobRunning, model.JobFinalizing,
	model.JobSucceeded, model.JobFailed, model.JobExpired, model.JobCancelled,
}

var statsMinerStatuses = []model.MinerStatus{
	model.MinerActive, model.MinerDraining, model.MinerOffline,
}

// statsScanLimit bounds the per-state scan used for the stats counters;
// it is a snapshot, not an exact count, above this cap.
const statsScanLimit = 10000

type statsResponse struct {
	JobsByState    map[model.JobState]int    `json:"jobs_by_state"`
	MinersByStatus map[model.MinerStatus]int `json:"miners_by_status"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params, tc *TenantContext) {
	resp := statsResponse{
		JobsByState:    make(map[model.JobState]int),
		MinersByStatus: make(map[model.MinerStatus]int),
	}
	for _, st := range statsJobStates {
		jobs, err := s.store.ScanJobsByState(st, statsScanLimit)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.JobsByState[st] = len(jobs)
	}
	for _, ms := range statsMinerStatuses {
		miners, err := s.store.ListMinersByStatus(ms)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.MinersByStatus[ms] = len(miners)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJobHistory(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext) {
	transitions, err := s.store.GetJobTransitions(p.ByName("job_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}
