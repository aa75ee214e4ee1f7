// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package signer

import (
	"encoding/hex"
	"errors"
	"io/ioutil"
	"strings"

	"golang.org/x/crypto/ed25519"
)

var errBadSeedLength = errors.New("signer: key file must contain a 32-byte hex-encoded ed25519 seed")

// LoadKeyFromFile reads a hex-encoded ed25519 seed from path and derives
// the full keypair, for config.SigningKeyPath/SigningKeyID at startup.
func LoadKeyFromFile(path, keyID string) (*Key, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errBadSeedLength
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Key{
		ID:      keyID,
		Public:  priv.Public().(ed25519.PublicKey),
		Private: priv,
	}, nil
}
