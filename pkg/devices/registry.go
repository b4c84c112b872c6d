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

// Package devices tracks the storage devices behind MRLs so persisted
// paths survive unmounts, remounts and mountpoint changes.
package devices

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/MediaLibProject/medialib-core/pkg/helpers"
	"github.com/MediaLibProject/medialib-core/pkg/helpers/syncutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Observer is told when a device's presence flips, after the database
// has propagated the change to folders and media.
type Observer interface {
	OnDevicePresenceChanged(device database.Device)
}

// ListerCb receives mount events from an injected device lister.
type ListerCb interface {
	OnDeviceMounted(uuid, mountpoint string, removable bool)
	OnDeviceUnmounted(uuid, mountpoint string)
}

// Lister watches one scheme's devices and reports mount events.
type Lister interface {
	Start(cb ListerCb) error
	Stop()
}

type deviceKey struct {
	uuid   string
	scheme string
}

type knownDevice struct {
	row    database.Device
	mounts []database.DeviceMountpoint // most recently seen first
}

// Registry is the in-memory mirror of the Device tables plus the mount
// event entry points.
type Registry struct {
	db       *medialibdb.MediaLibDB
	devices  map[deviceKey]*knownDevice
	byID     map[int64]*knownDevice
	listers  map[string]Lister
	observer Observer
	mu       syncutil.RWMutex
}

func NewRegistry(db *medialibdb.MediaLibDB) *Registry {
	return &Registry{
		db:      db,
		devices: make(map[deviceKey]*knownDevice),
		byID:    make(map[int64]*knownDevice),
		listers: make(map[string]Lister),
	}
}

func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Load warms the registry from the database; every device starts out
// absent until a mount event or a successful root resolution says
// otherwise.
func (r *Registry) Load() error {
	devices, err := r.db.AllDevices()
	if err != nil {
		return err
	}
	mounts, err := r.db.AllMountpoints()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range devices {
		entry := &knownDevice{row: row}
		r.devices[deviceKey{row.UUID, row.Scheme}] = entry
		r.byID[row.ID] = entry
	}
	for _, mp := range mounts {
		if entry, ok := r.byID[mp.DeviceID]; ok {
			entry.mounts = append(entry.mounts, mp)
		}
	}
	return nil
}

// Lookup resolves a device by identity; two schemes on the same uuid
// are distinct devices.
func (r *Registry) Lookup(deviceUUID, scheme string) (database.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.devices[deviceKey{strings.ToLower(deviceUUID), strings.ToLower(scheme)}]
	if !ok {
		return database.Device{}, false
	}
	return entry.row, true
}

func (r *Registry) DeviceByID(id int64) (database.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[id]
	if !ok {
		return database.Device{}, false
	}
	return entry.row, true
}

// FromMountpoint finds the device whose mountpoint contains the MRL and
// the path relative to it. The longest matching mountpoint wins; among
// equal lengths the most recently seen one does.
func (r *Registry) FromMountpoint(mrl string) (database.Device, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best      *knownDevice
		bestMount string
		bestLen   = -1
		bestSeen  int64
	)
	for _, entry := range r.devices {
		for _, mp := range entry.mounts {
			if !helpers.MrlHasPrefix(mrl, mp.Mountpoint) {
				continue
			}
			norm, err := helpers.NormalizeMountpoint(mp.Mountpoint)
			if err != nil {
				continue
			}
			length := len(norm)
			if length > bestLen || (length == bestLen && mp.LastSeen > bestSeen) {
				best = entry
				bestMount = mp.Mountpoint
				bestLen = length
				bestSeen = mp.LastSeen
			}
		}
	}
	if best == nil {
		return database.Device{}, "", false
	}
	relative, ok := helpers.RelativeMRL(bestMount, mrl)
	if !ok {
		return database.Device{}, "", false
	}
	return best.row, relative, true
}

// RegisterDevice makes a device known, persisting it when new.
func (r *Registry) RegisterDevice(deviceUUID, scheme string, removable, network bool) (database.Device, error) {
	deviceUUID = strings.ToLower(deviceUUID)
	scheme = strings.ToLower(scheme)
	row, err := r.db.InsertDevice(deviceUUID, scheme, removable, network)
	if err != nil {
		return database.Device{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deviceKey{deviceUUID, scheme}
	entry, ok := r.devices[key]
	if !ok {
		entry = &knownDevice{row: row}
		r.devices[key] = entry
		r.byID[row.ID] = entry
	} else {
		entry.row = row
	}
	return entry.row, nil
}

// AddMountpoint records a mountpoint sighting for a device.
func (r *Registry) AddMountpoint(deviceID int64, mountpoint string, lastSeen int64) error {
	normalized, err := helpers.NormalizeMountpoint(mountpoint)
	if err != nil {
		return err
	}
	if err := r.db.AddMountpoint(deviceID, normalized, lastSeen); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byID[deviceID]
	if !ok {
		return fmt.Errorf("%w: device %d", database.ErrNotFound, deviceID)
	}
	for i := range entry.mounts {
		if entry.mounts[i].Mountpoint == normalized {
			entry.mounts[i].LastSeen = lastSeen
			r.sortMountsLocked(entry)
			return nil
		}
	}
	entry.mounts = append(entry.mounts,
		database.DeviceMountpoint{DeviceID: deviceID, Mountpoint: normalized, LastSeen: lastSeen})
	r.sortMountsLocked(entry)
	return nil
}

func (*Registry) sortMountsLocked(entry *knownDevice) {
	// Insertion sort; the list is tiny and nearly ordered.
	for i := 1; i < len(entry.mounts); i++ {
		for j := i; j > 0 && entry.mounts[j].LastSeen > entry.mounts[j-1].LastSeen; j-- {
			entry.mounts[j], entry.mounts[j-1] = entry.mounts[j-1], entry.mounts[j]
		}
	}
}

// AbsoluteMRL rebuilds a full MRL from a device-relative path using the
// device's most recent mountpoint. Absent devices cannot provide one.
func (r *Registry) AbsoluteMRL(deviceID int64, relative string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[deviceID]
	if !ok {
		return "", fmt.Errorf("%w: device %d", database.ErrNotFound, deviceID)
	}
	if !entry.row.IsPresent {
		return "", database.ErrDeviceRemoved
	}
	if len(entry.mounts) == 0 {
		return "", database.ErrDeviceRemoved
	}
	return helpers.JoinMRL(entry.mounts[0].Mountpoint, relative), nil
}

// setPresent updates memory and database and tells the observer.
func (r *Registry) setPresent(entry *knownDevice, present bool) error {
	if entry.row.IsPresent == present {
		return nil
	}
	if err := r.db.SetDevicePresent(entry.row.ID, present); err != nil {
		return err
	}
	entry.row.IsPresent = present

	observer := r.observer
	if observer != nil {
		row := entry.row
		go observer.OnDevicePresenceChanged(row)
	}
	return nil
}

// MarkPresent is used when a root resolution proves a device reachable
// outside of any lister event.
func (r *Registry) MarkPresent(deviceID int64, present bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byID[deviceID]
	if !ok {
		return fmt.Errorf("%w: device %d", database.ErrNotFound, deviceID)
	}
	return r.setPresent(entry, present)
}

// OnDeviceMounted handles a lister mount event: the device becomes
// known and present and the mountpoint sighting is recorded.
func (r *Registry) OnDeviceMounted(deviceUUID, mountpoint string, removable bool) {
	scheme := helpers.SchemeOf(mountpoint)
	if scheme == "" {
		log.Warn().Msgf("ignoring mount event with invalid mountpoint: %s", mountpoint)
		return
	}
	network := scheme != "file"
	row, err := r.RegisterDevice(deviceUUID, scheme, removable, network)
	if err != nil {
		log.Error().Err(err).Msg("failed to register mounted device")
		return
	}
	now := r.db.Clock().Now().Unix()
	if err := r.AddMountpoint(row.ID, mountpoint, now); err != nil {
		log.Error().Err(err).Msg("failed to record mountpoint")
		return
	}
	if err := r.MarkPresent(row.ID, true); err != nil {
		log.Error().Err(err).Msg("failed to mark device present")
	}
}

// OnDeviceUnmounted handles a lister unmount event.
func (r *Registry) OnDeviceUnmounted(deviceUUID, mountpoint string) {
	scheme := helpers.SchemeOf(mountpoint)
	r.mu.Lock()
	entry, ok := r.devices[deviceKey{strings.ToLower(deviceUUID), scheme}]
	r.mu.Unlock()
	if !ok {
		log.Debug().Msgf("unmount event for unknown device %s", deviceUUID)
		return
	}
	if err := r.MarkPresent(entry.row.ID, false); err != nil {
		log.Error().Err(err).Msg("failed to mark device absent")
	}
}

// SetLister installs (or replaces) the lister for a scheme. The
// registry itself is the callback target.
func (r *Registry) SetLister(scheme string, lister Lister) ListerCb {
	r.mu.Lock()
	old := r.listers[scheme]
	r.listers[scheme] = lister
	r.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	return r
}

// StartListers starts every installed lister.
func (r *Registry) StartListers() error {
	r.mu.RLock()
	listers := make([]Lister, 0, len(r.listers))
	for _, l := range r.listers {
		listers = append(listers, l)
	}
	r.mu.RUnlock()
	var errs []error
	for _, l := range listers {
		if err := l.Start(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopListers stops every installed lister.
func (r *Registry) StopListers() {
	r.mu.RLock()
	listers := make([]Lister, 0, len(r.listers))
	for _, l := range r.listers {
		listers = append(listers, l)
	}
	r.mu.RUnlock()
	for _, l := range listers {
		l.Stop()
	}
}

// EnsureDeviceForRoot resolves the device behind a root MRL, creating a
// synthetic non-removable device rooted at the MRL itself when nothing
// matches. The derived uuid is stable across runs.
func (r *Registry) EnsureDeviceForRoot(mrl string, network bool) (database.Device, string, error) {
	if device, relative, ok := r.FromMountpoint(mrl); ok {
		return device, relative, nil
	}
	mountpoint := helpers.ToDirectoryMRL(mrl)
	normalized, err := helpers.NormalizeMountpoint(mountpoint)
	if err != nil {
		return database.Device{}, "", err
	}
	derived := uuid.NewSHA1(uuid.NameSpaceURL, []byte(normalized)).String()
	scheme := helpers.SchemeOf(mrl)
	row, err := r.RegisterDevice(derived, scheme, false, network)
	if err != nil {
		return database.Device{}, "", err
	}
	now := r.db.Clock().Now().Unix()
	if err := r.AddMountpoint(row.ID, mountpoint, now); err != nil {
		return database.Device{}, "", err
	}
	if err := r.MarkPresent(row.ID, true); err != nil {
		return database.Device{}, "", err
	}
	device, relative, ok := r.FromMountpoint(mrl)
	if !ok {
		return database.Device{}, "", fmt.Errorf("failed to resolve freshly registered root %s", mrl)
	}
	return device, relative, nil
}
