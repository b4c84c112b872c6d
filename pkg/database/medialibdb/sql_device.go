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

const deviceColumns = `DBID, UUID, Scheme, IsRemovable, IsNetwork, IsPresent, LastSeen`

func scanDevice(row interface{ Scan(...any) error }) (database.Device, error) {
	var d database.Device
	err := row.Scan(&d.ID, &d.UUID, &d.Scheme, &d.IsRemovable, &d.IsNetwork,
		&d.IsPresent, &d.LastSeen)
	return d, err
}

// InsertDevice records a device if it is not already known and returns
// the stored row either way. Identity is the (uuid, scheme) pair.
func (m *MediaLibDB) InsertDevice(uuid, scheme string, removable, network bool) (database.Device, error) {
	now := m.clock.Now().Unix()
	_, err := m.db.Exec(m.ctx,
		`INSERT INTO Device (UUID, Scheme, IsRemovable, IsNetwork, IsPresent, LastSeen)
		 VALUES (?, ?, ?, ?, 0, ?)
		 ON CONFLICT (UUID, Scheme) DO UPDATE SET LastSeen = excluded.LastSeen`,
		uuid, scheme, removable, network, now)
	if err != nil {
		return database.Device{}, fmt.Errorf("failed to insert device %s: %w", uuid, err)
	}
	return m.DeviceByUUID(uuid, scheme)
}

func (m *MediaLibDB) DeviceByUUID(uuid, scheme string) (database.Device, error) {
	var d database.Device
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		d, scanErr = scanDevice(q.QueryRowContext(m.ctx,
			`SELECT `+deviceColumns+` FROM Device WHERE UUID = ? AND Scheme = ?`,
			uuid, scheme))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Device{}, database.ErrNotFound
	}
	if err != nil {
		return database.Device{}, fmt.Errorf("failed to load device %s: %w", uuid, err)
	}
	return d, nil
}

func (m *MediaLibDB) DeviceByID(id int64) (database.Device, error) {
	var d database.Device
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		d, scanErr = scanDevice(q.QueryRowContext(m.ctx,
			`SELECT `+deviceColumns+` FROM Device WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Device{}, database.ErrNotFound
	}
	if err != nil {
		return database.Device{}, fmt.Errorf("failed to load device %d: %w", id, err)
	}
	return d, nil
}

func (m *MediaLibDB) AllDevices() ([]database.Device, error) {
	var devices []database.Device
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT `+deviceColumns+` FROM Device ORDER BY DBID`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			d, err := scanDevice(rows)
			if err != nil {
				return err
			}
			devices = append(devices, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// SetDevicePresent flips the presence flag; the trigger cascade marks
// every folder and media on the device along with it.
func (m *MediaLibDB) SetDevicePresent(id int64, present bool) error {
	now := m.clock.Now().Unix()
	_, err := m.db.Exec(m.ctx,
		`UPDATE Device SET IsPresent = ?, LastSeen = ? WHERE DBID = ?`,
		present, now, id)
	if err != nil {
		return fmt.Errorf("failed to update device presence: %w", err)
	}
	return nil
}

// AddMountpoint records a mountpoint sighting. Mountpoints are only
// ever added; ordering for lookups comes from LastSeen.
func (m *MediaLibDB) AddMountpoint(deviceID int64, mountpoint string, lastSeen int64) error {
	_, err := m.db.Exec(m.ctx,
		`INSERT INTO DeviceMountpoint (DeviceDBID, Mountpoint, LastSeen)
		 VALUES (?, ?, ?)
		 ON CONFLICT (DeviceDBID, Mountpoint) DO UPDATE SET LastSeen = excluded.LastSeen`,
		deviceID, mountpoint, lastSeen)
	if err != nil {
		return fmt.Errorf("failed to record mountpoint: %w", err)
	}
	return nil
}

// Mountpoints lists a device's known mountpoints, most recently seen
// first.
func (m *MediaLibDB) Mountpoints(deviceID int64) ([]database.DeviceMountpoint, error) {
	var mounts []database.DeviceMountpoint
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT DeviceDBID, Mountpoint, LastSeen FROM DeviceMountpoint
			 WHERE DeviceDBID = ? ORDER BY LastSeen DESC`, deviceID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var mp database.DeviceMountpoint
			if err := rows.Scan(&mp.DeviceID, &mp.Mountpoint, &mp.LastSeen); err != nil {
				return err
			}
			mounts = append(mounts, mp)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list mountpoints: %w", err)
	}
	return mounts, nil
}

// AllMountpoints returns every known (device, mountpoint) pair, used to
// warm the registry on startup.
func (m *MediaLibDB) AllMountpoints() ([]database.DeviceMountpoint, error) {
	var mounts []database.DeviceMountpoint
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT DeviceDBID, Mountpoint, LastSeen FROM DeviceMountpoint
			 ORDER BY LastSeen DESC`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var mp database.DeviceMountpoint
			if err := rows.Scan(&mp.DeviceID, &mp.Mountpoint, &mp.LastSeen); err != nil {
				return err
			}
			mounts = append(mounts, mp)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list mountpoints: %w", err)
	}
	return mounts, nil
}
