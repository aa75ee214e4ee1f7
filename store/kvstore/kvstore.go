// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package kvstore is the embedded, single-process Store backend, used
// for the "embedded" profile of the configuration surface (dev, tests,
// small single-node deployments). It is grounded on
// storage/database/leveldb_database.go's backend shape: one goleveldb
// handle, a per-db logger, a Close that flushes cleanly. Because it runs
// in a single process, a process-wide mutex gives the same serializable
// semantics requires of a relational engine — no cross-process
// coordination is needed.
package kvstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

var logger = log.NewModuleLogger("store.kvstore")

// KVStore implements store.Store over a goleveldb handle guarded by a
// single mutex. All cross-entity operations (AssignJob, ReleaseInFlight)
// hold the mutex for their full read-modify-write, matching the
// "SERIALIZABLE" contract of by construction.
type KVStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (or creates, or recovers) a goleveldb database at dir.
func Open(dir string) (*KVStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("opened embedded store", "dir", dir)
	return &KVStore{db: db}, nil
}

func (s *KVStore) Close() error {
	logger.Info("closing embedded store")
	return s.db.Close()
}

// --- generic get/put helpers ---

func (s *KVStore) getLocked(key string, v interface{}) (bool, error) {
	raw, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, model.WrapError(model.ErrInternal, "store read failed", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, model.WrapError(model.ErrInternal, "store decode failed", err)
	}
	return true, nil
}

func (s *KVStore) putLocked(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return model.WrapError(model.ErrInternal, "store encode failed", err)
	}
	if err := s.db.Put([]byte(key), raw, nil); err != nil {
		return model.WrapError(model.ErrInternal, "store write failed", err)
	}
	return nil
}

func jobKey(id string) string     { return "job:" + id }
func minerKey(id string) string   { return "miner:" + id }
func paymentKey(id string) string { return "payment:" + id }
func receiptKey(id string) string { return "receipt:" + id }
func receiptByAttemptKey(jobID string, attempt int) string {
	return fmt.Sprintf("receipt-attempt:%s:%d", jobID, attempt)
}
func transitionsKey(jobID string) string  { return "transitions:" + jobID }
func paymentEventKey(id string) string    { return "payevent:" + id }
func minerByPubKeyKey(tenant, pk string) string { return "miner-pk:" + tenant + ":" + pk }

func decodeInto(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

var _ store.Store = (*KVStore)(nil)
