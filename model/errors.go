// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

package model

import "fmt"

// ErrorCode is one of the coordinator's stable error codes. It is the
// wire-visible identifier returned in the error envelope.
type ErrorCode string

const (
	ErrAuthRequired          ErrorCode = "AuthRequired"
	ErrAuthFailed            ErrorCode = "AuthFailed"
	ErrForbidden             ErrorCode = "Forbidden"
	ErrNotFound              ErrorCode = "NotFound"
	ErrInvalidRequest        ErrorCode = "InvalidRequest"
	ErrPayloadTooLarge       ErrorCode = "PayloadTooLarge"
	ErrQuotaExceeded         ErrorCode = "QuotaExceeded"
	ErrRateLimited           ErrorCode = "RateLimited"
	ErrStaleState            ErrorCode = "StaleState"
	ErrStaleAssignment       ErrorCode = "StaleAssignment"
	ErrMinerNotActive        ErrorCode = "MinerNotActive"
	ErrCapabilityUnavailable ErrorCode = "CapabilityUnavailable"
	ErrInsufficientFunds     ErrorCode = "InsufficientFunds"
	ErrSignerUnavailable     ErrorCode = "SignerUnavailable"
	ErrInternal              ErrorCode = "Internal"

	// UnknownMiner is not part of the wire-stable code list but is
	// surfaced by MinerRegistry.heartbeat by design; the API sends it
	// under its own code with HTTP status 404.
	ErrUnknownMiner ErrorCode = "UnknownMiner"
)

// CoordError is the typed error every domain operation returns instead of
// an opaque error, carrying a stable code plus a human message and
// optional structured details for the wire envelope.
type CoordError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *CoordError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CoordError) Unwrap() error { return e.cause }

// NewError builds a CoordError with no wrapped cause.
func NewError(code ErrorCode, message string) *CoordError {
	return &CoordError{Code: code, Message: message}
}

// WrapError builds a CoordError wrapping a lower-level cause (e.g. a Store
// transport failure), preserving it for logs while keeping the wire code
// stable.
func WrapError(code ErrorCode, message string, cause error) *CoordError {
	return &CoordError{Code: code, Message: message, cause: cause}
}

// WithDetails attaches structured detail fields to the error envelope.
func (e *CoordError) WithDetails(details map[string]interface{}) *CoordError {
	e.Details = details
	return e
}

// CodeOf extracts the stable error code from any error, defaulting to
// Internal for errors that did not originate as a CoordError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*CoordError); ok {
		return ce.Code
	}
	return ErrInternal
}
