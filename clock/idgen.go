// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package clock

import (
	"encoding/base32"
	"strings"

	"github.com/hashicorp/go-uuid"
)

// base32Enc is a URL-safe, unpadded base32 alphabet, matching // "URL-safe base32 strings" requirement. The teacher pulls random bytes
// for ids via hashicorp/go-uuid (datasync/chaindatafetcher/event/kafka);
// IDGen reuses that source but re-encodes as base32, not UUID text form,
// since the design fixes the wire shape.
var base32Enc = base32.StdEncoding.WithPadding(base32.NoPadding)

// IDGen produces opaque, unique identifiers with >=120 bits of entropy,
// by design.
type IDGen interface {
	NewID() (string, error)
}

// RandomIDGen is the production IDGen: 128 random bits from a CSPRNG,
// base32-encoded.
type RandomIDGen struct{}

func NewRandomIDGen() *RandomIDGen { return &RandomIDGen{} }

func (RandomIDGen) NewID() (string, error) {
	raw, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return "", err
	}
	return strings.ToLower(base32Enc.EncodeToString(raw)), nil
}

// MustNewID panics on generator failure; used at call sites where a
// failed CSPRNG read is already a fatal startup condition.
func MustNewID(g IDGen) string {
	id, err := g.NewID()
	if err != nil {
		panic(err)
	}
	return id
}
