// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/model"
)

var logger = log.NewModuleLogger("api")

// errorEnvelope is the stable wire shape of: {"error":{"code",
// "message","details"}}.
type errorEnvelope struct {
	Error struct {
		Code    model.ErrorCode        `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

var codeToStatus = map[model.ErrorCode]int{
	model.ErrAuthRequired:          http.StatusUnauthorized,
	model.ErrAuthFailed:            http.StatusUnauthorized,
	model.ErrForbidden:             http.StatusForbidden,
	model.ErrNotFound:              http.StatusNotFound,
	model.ErrUnknownMiner:          http.StatusNotFound,
	model.ErrInvalidRequest:        http.StatusBadRequest,
	model.ErrPayloadTooLarge:       http.StatusRequestEntityTooLarge,
	model.ErrQuotaExceeded:         http.StatusTooManyRequests,
	model.ErrRateLimited:           http.StatusTooManyRequests,
	model.ErrStaleState:            http.StatusConflict,
	model.ErrStaleAssignment:       http.StatusConflict,
	model.ErrMinerNotActive:        http.StatusConflict,
	model.ErrCapabilityUnavailable: http.StatusConflict,
	model.ErrInsufficientFunds:     http.StatusPaymentRequired,
	model.ErrSignerUnavailable:     http.StatusServiceUnavailable,
	model.ErrInternal:              http.StatusInternalServerError,
}

// writeError translates any domain error to the stable envelope and an
// appropriate status code. Non-CoordError values map to
// Internal, matching model.CodeOf's default.
func writeError(w http.ResponseWriter, err error) {
	code := model.CodeOf(err)
	status, ok := codeToStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	env := errorEnvelope{}
	env.Error.Code = code
	env.Error.Message = err.Error()
	if ce, ok := err.(*model.CoordError); ok {
		env.Error.Message = ce.Message
		env.Error.Details = ce.Details
	}
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response body", "err", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewError(model.ErrInvalidRequest, "malformed JSON body: "+err.Error())
	}
	return nil
}
