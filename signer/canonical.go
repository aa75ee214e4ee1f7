// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package signer produces the byte-exact canonical form of a Receipt used
// as the Ed25519 signing input, and signs/verifies it. The canonical form
// is hand-written rather than delegated to a JSON library, by design
// and §9's Design Notes: field order is fixed and is part of the wire
// protocol, not an implementation detail a generic marshaler may reorder.
package signer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aitbc-network/coordinator/model"
)

// CanonicalFields lists, in the mandatory order of, the
// receipt fields that make up the signing input. key_id and signature are
// appended on the wire but excluded from the signing input
// itself.
var CanonicalFields = []string{
	"receipt_id", "job_id", "miner_id", "submitter_id", "units_consumed",
	"unit_rate", "amount_charged", "started_ms", "completed_ms",
	"result_hash", "model",
}

// Canonicalize serializes r's signing fields as UTF-8 JSON with keys in
// the fixed order above, no whitespace, bare decimal integers, and
// minimal-escape strings — the exact byte sequence that gets signed.
// CanonicalizationError (via CoordError) is returned if a required string
// field is empty.
func Canonicalize(r *model.Receipt) ([]byte, error) {
	if r.ReceiptID == "" || r.JobID == "" || r.MinerID == "" || r.SubmitterID == "" || r.ResultHash == "" || r.Model == "" {
		return nil, model.NewError("CanonicalizationError", "required receipt field is empty")
	}

	var b strings.Builder
	b.WriteByte('{')
	writeField(&b, "receipt_id", r.ReceiptID, true)
	writeField(&b, "job_id", r.JobID, true)
	writeField(&b, "miner_id", r.MinerID, true)
	writeField(&b, "submitter_id", r.SubmitterID, true)
	writeIntField(&b, "units_consumed", r.UnitsConsumed)
	writeIntField(&b, "unit_rate", r.UnitRate)
	writeIntField(&b, "amount_charged", r.AmountCharged)
	writeIntField(&b, "started_ms", r.StartedMs)
	writeIntField(&b, "completed_ms", r.CompletedMs)
	writeField(&b, "result_hash", r.ResultHash, true)
	writeField(&b, "model", r.Model, false)
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func writeField(b *strings.Builder, key, value string, comma bool) {
	b.WriteByte('"')
	b.WriteString(key)
	b.WriteString(`":`)
	writeJSONString(b, value)
	if comma {
		b.WriteByte(',')
	}
}

func writeIntField(b *strings.Builder, key string, value int64) {
	b.WriteByte('"')
	b.WriteString(key)
	b.WriteString(`":`)
	b.WriteString(strconv.FormatInt(value, 10))
	b.WriteByte(',')
}

// writeJSONString writes a minimally-escaped JSON string literal: only
// '"', '\\', and control characters are escaped, matching
// ("minimal escapes"). No library es unicode-normalizes or re-orders
// runes; this is a direct byte/rune walk.
func writeJSONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// CanonicalWireJSON renders a sealed Receipt's full wire form (adds
// key_id and signature at the end). Nothing in this repository calls it.
func CanonicalWireJSON(r *model.Receipt) []byte {
	var b strings.Builder
	b.WriteByte('{')
	writeField(&b, "receipt_id", r.ReceiptID, true)
	writeField(&b, "job_id", r.JobID, true)
	writeField(&b, "miner_id", r.MinerID, true)
	writeField(&b, "submitter_id", r.SubmitterID, true)
	writeIntField(&b, "units_consumed", r.UnitsConsumed)
	writeIntField(&b, "unit_rate", r.UnitRate)
	writeIntField(&b, "amount_charged", r.AmountCharged)
	writeIntField(&b, "started_ms", r.StartedMs)
	writeIntField(&b, "completed_ms", r.CompletedMs)
	writeField(&b, "result_hash", r.ResultHash, true)
	writeField(&b, "model", r.Model, true)
	writeField(&b, "key_id", r.KeyID, true)
	writeField(&b, "signature", r.Signature, false)
	b.WriteByte('}')
	return []byte(b.String())
}
