// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/aitbc-network/coordinator/model"
)

// handleLiveness reports only that the process is up; it
// never touches the store so a degraded backend can't mask a healthy
// process as unreachable.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadiness checks the two preconditions calls out for
// serving traffic: the store is reachable and the signer has an active
// key to seal receipts with.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.signer.HasActiveKey() {
		writeError(w, model.NewError(model.ErrSignerUnavailable, "signer has no active key"))
		return
	}
	if _, err := s.store.ScanJobsByState(model.JobQueued, 1); err != nil {
		writeError(w, model.NewError(model.ErrInternal, "store unreachable: "+err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
