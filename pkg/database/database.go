// Medialib Core
// Copyright (c) 2026 The Medialib Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Medialib Core.
//
// Medialib Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Medialib Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Medialib Core.  If not, see <http://www.gnu.org/licenses/>.

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MediaLibProject/medialib-core/pkg/helpers/syncutil"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound      = errors.New("entity not found")
	ErrConflict      = errors.New("constraint conflict")
	ErrDeviceRemoved = errors.New("device is not present")
	ErrNullSQL       = errors.New("database is not connected")
)

// Write-optimized WAL connection: synchronous=NORMAL is safe with WAL,
// busy_timeout backs the retry loop below.
const sqliteConnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000" +
	"&_cache_size=-65536&_temp_store=MEMORY&_foreign_keys=ON&_recursive_triggers=ON"

const (
	busyRetryAttempts  = 5
	busyRetryBaseDelay = 50 * time.Millisecond
)

// DB wraps the single logical SQLite connection. Readers run in
// parallel; every write transaction takes the exclusive lock so
// multi-row invariants only ever race with triggers, never with each
// other.
type DB struct {
	sql    *sql.DB
	dbPath string
	mu     syncutil.RWMutex
}

// Open opens (creating if needed) the library database at dbPath.
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	sqlInstance, err := sql.Open("sqlite3", dbPath+sqliteConnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY between our own writers.
	sqlInstance.SetMaxOpenConns(1)
	return &DB{sql: sqlInstance, dbPath: dbPath}, nil
}

// OpenInMemory is used by tests.
func OpenInMemory() (*DB, error) {
	sqlInstance, err := sql.Open("sqlite3", ":memory:?_foreign_keys=ON&_recursive_triggers=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlInstance.SetMaxOpenConns(1)
	return &DB{sql: sqlInstance, dbPath: ":memory:"}, nil
}

func (db *DB) Close() error {
	if db.sql == nil {
		return nil
	}
	if err := db.sql.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (db *DB) Path() string {
	return db.dbPath
}

// UnsafeGetSQLDb exposes the raw handle for migrations and tests.
func (db *DB) UnsafeGetSQLDb() *sql.DB {
	return db.sql
}

// IsConflict reports whether err is a uniqueness or foreign key
// violation, surfaced to callers as ErrConflict.
func IsConflict(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// withBusyRetry reruns fn on SQLITE_BUSY/LOCKED with exponential
// backoff, up to busyRetryAttempts.
func withBusyRetry(fn func() error) error {
	delay := busyRetryBaseDelay
	var err error
	for attempt := range busyRetryAttempts {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		log.Debug().Err(err).Msgf("database busy, retrying (attempt %d)", attempt+1)
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

// Read runs fn under the shared lock.
func (db *DB) Read(fn func(q *sql.DB) error) error {
	if db.sql == nil {
		return ErrNullSQL
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(db.sql)
}

// Exec runs a single write statement under the exclusive lock with busy
// retry.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	var res sql.Result
	err := withBusyRetry(func() error {
		var execErr error
		res, execErr = db.sql.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		if IsConflict(err) {
			return nil, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return nil, err
	}
	return res, nil
}

// Transaction runs fn inside an exclusive write transaction. Any error
// rolls the transaction back; conflicts are wrapped as ErrConflict so
// callers can turn them into a no-change failure.
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if db.sql == nil {
		return ErrNullSQL
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	return withBusyRetry(func() error {
		tx, err := db.sql.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Warn().Err(rbErr).Msg("failed to roll back transaction")
			}
			if IsConflict(err) && !errors.Is(err, ErrConflict) {
				return fmt.Errorf("%w: %w", ErrConflict, err)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}
