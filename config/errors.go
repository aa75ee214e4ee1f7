// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package config

import "errors"

var errMissingSigningKey = errors.New("config: SigningKeyPath and SigningKeyID are required")
