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
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

var migrationMutex sync.Mutex

// gooseZerologAdapter implements goose.Logger to redirect goose output
// to zerolog instead of stdout.
type gooseZerologAdapter struct{}

func (*gooseZerologAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (*gooseZerologAdapter) Fatalf(format string, v ...any) {
	log.Fatal().Msgf(format, v...)
}

// MigrateUp provides thread-safe database migration using goose. It
// locks access to goose's global state to prevent race conditions
// between multiple databases setting their migration filesystems.
// Each migration file runs in its own transaction; foreign keys are off
// for the connection duration of a migration run and re-enabled after,
// so table rebuilds can shuffle rows freely.
func MigrateUp(db *sql.DB, migrationFiles embed.FS, migrationDir string) error {
	migrationMutex.Lock()
	defer migrationMutex.Unlock()

	goose.SetLogger(&gooseZerologAdapter{})
	goose.SetBaseFS(migrationFiles)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("error setting goose dialect: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("error disabling foreign keys for migration: %w", err)
	}
	defer func() {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			log.Error().Err(err).Msg("failed to re-enable foreign keys after migration")
		}
	}()

	if err := goose.Up(db, migrationDir); err != nil {
		return fmt.Errorf("error running migrations up: %w", err)
	}

	return nil
}

// MigrationVersion reports the current goose version of the database, 0
// when no migration has ever run.
func MigrationVersion(db *sql.DB, migrationFiles embed.FS, migrationDir string) (int64, error) {
	migrationMutex.Lock()
	defer migrationMutex.Unlock()

	goose.SetLogger(&gooseZerologAdapter{})
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("error setting goose dialect: %w", err)
	}
	version, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("error reading migration version: %w", err)
	}
	return version, nil
}

// DropAllTables wipes every table, index, trigger and view so a schema
// reset can recreate everything from the migration history.
func DropAllTables(db *sql.DB) error {
	rows, err := db.Query(
		`SELECT type, name FROM sqlite_master
		 WHERE name NOT LIKE 'sqlite_%' AND type IN ('table', 'view')`)
	if err != nil {
		return fmt.Errorf("error listing schema objects: %w", err)
	}
	type object struct{ kind, name string }
	var objects []object
	for rows.Next() {
		var o object
		if err := rows.Scan(&o.kind, &o.name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("error scanning schema object: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("error iterating schema objects: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("error closing schema rows: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("error disabling foreign keys for reset: %w", err)
	}
	for _, o := range objects {
		stmt := "DROP TABLE IF EXISTS "
		if o.kind == "view" {
			stmt = "DROP VIEW IF EXISTS "
		}
		if _, err := db.Exec(stmt + `"` + o.name + `"`); err != nil {
			return fmt.Errorf("error dropping %s %s: %w", o.kind, o.name, err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("error re-enabling foreign keys after reset: %w", err)
	}
	return nil
}

// SchemaObjects returns the sorted names of tables, indexes and
// triggers, the shape compared against expected lists after migrating.
func SchemaObjects(db *sql.DB, kind string) ([]string, error) {
	rows, err := db.Query(
		`SELECT name FROM sqlite_master
		 WHERE type = ? AND name NOT LIKE 'sqlite_%' AND name NOT LIKE 'goose_%'
		 ORDER BY name`, kind)
	if err != nil {
		return nil, fmt.Errorf("error listing %s objects: %w", kind, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close schema rows")
		}
	}()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning %s name: %w", kind, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s names: %w", kind, err)
	}
	return names, nil
}
