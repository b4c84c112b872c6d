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

package medialibdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/MediaLibProject/medialib-core/pkg/database"
)

const taskColumns = `DBID, Type, MRL, FileDBID, FolderDBID, PlaylistDBID,
	LinkToDBID, Steps, Retries, CreationDate`

func scanTask(row interface{ Scan(...any) error }) (database.Task, error) {
	var t database.Task
	err := row.Scan(&t.ID, &t.Type, &t.MRL, &t.FileID, &t.FolderID,
		&t.PlaylistID, &t.LinkToID, &t.Steps, &t.Retries, &t.CreationDate)
	return t, err
}

// CreateTask persists a parser task. A task already queued for the same
// target is a conflict, surfaced so the caller can discard the
// duplicate.
func (m *MediaLibDB) CreateTask(t database.Task) (database.Task, error) {
	now := m.clock.Now().Unix()
	t.CreationDate = now
	res, err := m.db.Exec(m.ctx,
		`INSERT INTO Task (Type, MRL, FileDBID, FolderDBID, PlaylistDBID,
			LinkToDBID, Steps, Retries, CreationDate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Type, t.MRL, t.FileID, t.FolderID, t.PlaylistID, t.LinkToID,
		t.Steps, t.Retries, t.CreationDate)
	if err != nil {
		if database.IsConflict(err) {
			return database.Task{}, database.ErrConflict
		}
		return database.Task{}, fmt.Errorf("failed to create task for %s: %w", t.MRL, err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return database.Task{}, fmt.Errorf("failed to get task insert ID: %w", err)
	}
	return t, nil
}

// PendingTasks loads every persisted task, the restart working set.
func (m *MediaLibDB) PendingTasks() ([]database.Task, error) {
	var tasks []database.Task
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT `+taskColumns+` FROM Task ORDER BY DBID`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTaskSteps records a completed step so a restart resumes at the
// first missing one.
func (m *MediaLibDB) UpdateTaskSteps(id int64, steps database.TaskStep) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Task SET Steps = ? WHERE DBID = ?`, steps, id)
	if err != nil {
		return fmt.Errorf("failed to update task steps: %w", err)
	}
	return nil
}

func (m *MediaLibDB) IncrementTaskRetries(id int64) (int, error) {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Task SET Retries = Retries + 1 WHERE DBID = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment task retries: %w", err)
	}
	var retries int
	err = m.db.Read(func(q *sql.DB) error {
		return q.QueryRowContext(m.ctx,
			`SELECT Retries FROM Task WHERE DBID = ?`, id).Scan(&retries)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, database.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read task retries: %w", err)
	}
	return retries, nil
}

func (m *MediaLibDB) DeleteTask(id int64) error {
	_, err := m.db.Exec(m.ctx, `DELETE FROM Task WHERE DBID = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// MarkTaskFatal pins the retry counter at the cap so the task is not
// reloaded on the next start.
func (m *MediaLibDB) MarkTaskFatal(id int64, maxRetries int) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Task SET Retries = ? WHERE DBID = ?`, maxRetries, id)
	if err != nil {
		return fmt.Errorf("failed to mark task fatal: %w", err)
	}
	return nil
}

// ResetTaskRetries reopens every fatal task, the force-retry escape
// hatch.
func (m *MediaLibDB) ResetTaskRetries() error {
	_, err := m.db.Exec(m.ctx, `UPDATE Task SET Retries = 0`)
	if err != nil {
		return fmt.Errorf("failed to reset task retries: %w", err)
	}
	return nil
}
