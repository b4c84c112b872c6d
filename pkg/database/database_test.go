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
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return &DB{sql: raw, dbPath: "mock"}, mock
}

// Busy errors are retried with backoff until the statement goes
// through.
func TestExecRetriesOnBusy(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	mock.ExpectExec("UPDATE Media").WillReturnError(busy)
	mock.ExpectExec("UPDATE Media").WillReturnError(busy)
	mock.ExpectExec("UPDATE Media").WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := db.Exec(context.Background(), "UPDATE Media SET Title = ?", "x")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// After the retry budget is spent the busy error surfaces.
func TestExecGivesUpEventually(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	for range busyRetryAttempts {
		mock.ExpectExec("UPDATE Media").WillReturnError(busy)
	}

	_, err := db.Exec(context.Background(), "UPDATE Media SET Title = ?", "x")
	require.Error(t, err)
	var sqliteErr sqlite3.Error
	require.ErrorAs(t, err, &sqliteErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Constraint violations come back as ErrConflict, not as raw driver
// errors.
func TestExecMapsConstraintToConflict(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO Bookmark").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint})

	_, err := db.Exec(context.Background(), "INSERT INTO Bookmark VALUES (?)", 1)
	require.ErrorIs(t, err, ErrConflict)
}

// A failing transaction rolls back and reports the cause.
func TestTransactionRollsBackOnError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO Folder").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	sentinel := errors.New("boom")
	err := db.Transaction(context.Background(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec("INSERT INTO Folder (Path) VALUES (?)", "x")
		require.NoError(t, execErr)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsConflict(t *testing.T) {
	t.Parallel()
	assert.True(t, IsConflict(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.True(t, IsConflict(ErrConflict))
	assert.False(t, IsConflict(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.False(t, IsConflict(errors.New("other")))
}
