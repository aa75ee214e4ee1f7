// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package sqlstore is the primary, production store.Store backend: gorm
// over MySQL, with cross-entity operations (AssignJob, ReleaseInFlight)
// run inside a SERIALIZABLE transaction and single-entity state
// transitions enforced with an optimistic `WHERE state = ?` update,
// exactly the isolation contract asks of a relational engine.
package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

var logger = log.NewModuleLogger("store.sqlstore")

// SQLStore implements store.Store over a gorm *DB handle.
type SQLStore struct {
	db *gorm.DB
}

// Open dials MySQL at dsn and runs AutoMigrate for every row type this
// package owns.
func Open(dsn string, maxOpenConns, maxIdleConns int) (*SQLStore, error) {
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: dial failed", err)
	}
	db.DB().SetMaxOpenConns(maxOpenConns)
	db.DB().SetMaxIdleConns(maxIdleConns)
	db.LogMode(false)

	if err := db.AutoMigrate(
		&jobRow{}, &jobTransitionRow{}, &minerRow{}, &paymentRow{},
		&paymentEventRow{}, &receiptRow{},
	).Error; err != nil {
		return nil, model.WrapError(model.ErrInternal, "sqlstore: migrate failed", err)
	}
	logger.Info("opened sql store")
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	logger.Info("closing sql store")
	return s.db.Close()
}

// withSerializableTx runs fn inside a transaction whose isolation level
// is bumped to SERIALIZABLE, by design. gorm's Begin() opens a plain
// InnoDB REPEATABLE-READ transaction by default; the explicit SET
// statement tightens it before any statement executes.
func (s *SQLStore) withSerializableTx(fn func(tx *gorm.DB) error) error {
	tx := s.db.Begin()
	if tx.Error != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: begin failed", tx.Error)
	}
	if err := tx.Exec("SET TRANSACTION ISOLATION LEVEL SERIALIZABLE").Error; err != nil {
		tx.Rollback()
		return model.WrapError(model.ErrInternal, "sqlstore: set isolation failed", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: commit failed", tx.Commit().Error)
	}
	return nil
}

// affectedOrStale inspects an UPDATE ... WHERE state = ? result: zero
// rows affected means the row moved out from under the caller between
// read and write, which the Store contract reports as model.ErrStaleState.
func affectedOrStale(res *gorm.DB, notFoundMsg string) error {
	if res.Error != nil {
		return model.WrapError(model.ErrInternal, "sqlstore: update failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NewError(model.ErrStaleState, notFoundMsg)
	}
	return nil
}

func isNoRows(err error) bool {
	return err == gorm.ErrRecordNotFound || err == sql.ErrNoRows
}

var _ store.Store = (*SQLStore)(nil)

// dsn builds a go-sql-driver/mysql DSN from discrete config fields; kept
// here rather than in config so callers (tests included) can build one
// without importing the config package.
func DSN(user, pass, host string, port int, dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC", user, pass, host, port, dbName)
}
