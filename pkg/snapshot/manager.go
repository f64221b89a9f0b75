// Copyright 2026 The linux-practice Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package snapshot creates, lists, reverts and deletes external disk
// snapshots of practice VMs, with guest-agent freeze/thaw around creation
// for crash consistency.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"libvirt.org/go/libvirt"

	"github.com/christiancoding/linux-practice/pkg/hypervisor"
)

var (
	ErrSnapshotExists   = errors.New("snapshot name already exists for this VM")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrSnapshotCreate   = errors.New("failed to create snapshot")
	ErrSnapshotRevert   = errors.New("failed to revert snapshot")
	ErrSnapshotDelete   = errors.New("failed to delete snapshot")
	ErrSnapshotList     = errors.New("failed to list snapshots")
	ErrSnapshotVerify   = errors.New("snapshot post-condition check failed")
)

// Manager performs snapshot operations. It serializes mutating calls per
// VM; a single Manager instance must be shared by all concurrent
// challenge sessions in the process.
type Manager struct {
	locks *lockRegistry
}

// NewManager creates a snapshot Manager.
func NewManager() *Manager {
	return &Manager{locks: newLockRegistry()}
}

// CreateExternal creates a named external disk-only snapshot of the VM.
//
// When freezeFS is set and the VM is running, the guest agent is asked to
// freeze filesystems before the snapshot and thaw is always attempted
// afterward, whether or not the snapshot call succeeded. A freeze failure
// downgrades the snapshot to crash-consistent rather than failing the
// operation; the guest agent may simply not be installed.
//
// After creation every expected overlay file is verified to exist on
// disk. Missing overlays raise ErrSnapshotVerify even though the
// hypervisor reported success.
func (m *Manager) CreateExternal(
	ctx context.Context,
	vm *hypervisor.VM,
	name string,
	description string,
	freezeFS bool,
) error {
	unlock := m.locks.lock(vm.Name())
	defer unlock()

	dom := vm.Domain()

	// Duplicate names are a hard error, never a silent overwrite.
	if snap, err := dom.SnapshotLookupByName(name, 0); err == nil {
		_ = snap.Free()
		return fmt.Errorf("%w: vmName=%s snapshot=%s", ErrSnapshotExists, vm.Name(), name)
	}

	domainXML, err := dom.GetXMLDesc(0)
	if err != nil {
		return fmt.Errorf("%w: vmName=%s: %v", ErrSnapshotCreate, vm.Name(), err)
	}

	disks, err := parseDomainDisks(domainXML)
	if err != nil {
		return fmt.Errorf("vmName=%s: %w", vm.Name(), err)
	}

	snapXML, overlays, err := buildSnapshotXML(name, description, disks)
	if err != nil {
		return fmt.Errorf("vmName=%s: %w", vm.Name(), err)
	}

	if freezeFS {
		if active, err := dom.IsActive(); err == nil && active {
			if err := dom.FSFreeze(nil, 0); err != nil {
				slog.Warn("guest filesystem freeze failed, snapshot will only be crash-consistent",
					"vmName", vm.Name(),
					"error", err.Error(),
				)
			} else {
				slog.Debug("guest filesystems frozen", "vmName", vm.Name())
				// Thaw is the guaranteed release for the freeze. It runs no
				// matter how snapshot creation went; a guest left frozen is
				// far worse than a failed snapshot.
				defer func() {
					if err := dom.FSThaw(nil, 0); err != nil {
						slog.Error("guest filesystem thaw failed, guest may be frozen",
							"vmName", vm.Name(),
							"error", err.Error(),
						)
						return
					}
					slog.Debug("guest filesystems thawed", "vmName", vm.Name())
				}()
			}
		}
	}

	snap, err := dom.CreateSnapshotXML(snapXML,
		libvirt.DOMAIN_SNAPSHOT_CREATE_DISK_ONLY|libvirt.DOMAIN_SNAPSHOT_CREATE_ATOMIC)
	if err != nil {
		return fmt.Errorf("%w: vmName=%s snapshot=%s: %v", ErrSnapshotCreate, vm.Name(), name, err)
	}
	defer func() { _ = snap.Free() }()

	// The hypervisor reporting success does not guarantee the overlay
	// files actually landed on disk.
	var missing []string
	for _, overlay := range overlays {
		if _, err := os.Stat(overlay); err != nil {
			missing = append(missing, overlay)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: vmName=%s snapshot=%s missing overlay files: %s",
			ErrSnapshotVerify, vm.Name(), name, strings.Join(missing, ", "))
	}

	slog.Info("created external snapshot",
		"vmName", vm.Name(),
		"snapshot", name,
		"overlays", len(overlays),
	)
	return nil
}

// Revert reverts the VM to the named snapshot. A missing snapshot is
// reported as ErrSnapshotNotFound so callers can tell "already clean"
// apart from a hypervisor failure.
func (m *Manager) Revert(ctx context.Context, vm *hypervisor.VM, name string) error {
	unlock := m.locks.lock(vm.Name())
	defer unlock()

	dom := vm.Domain()
	snap, err := dom.SnapshotLookupByName(name, 0)
	if err != nil {
		return fmt.Errorf("%w: vmName=%s snapshot=%s", ErrSnapshotNotFound, vm.Name(), name)
	}
	defer func() { _ = snap.Free() }()

	if err := snap.RevertToSnapshot(0); err != nil {
		return fmt.Errorf("%w: vmName=%s snapshot=%s: %v", ErrSnapshotRevert, vm.Name(), name, err)
	}

	slog.Info("reverted VM to snapshot", "vmName", vm.Name(), "snapshot", name)
	return nil
}

// Delete removes the named snapshot's metadata. External overlay files
// are deliberately left on disk; the returned message carries that caveat
// for the caller to surface.
func (m *Manager) Delete(ctx context.Context, vm *hypervisor.VM, name string) (string, error) {
	unlock := m.locks.lock(vm.Name())
	defer unlock()

	dom := vm.Domain()
	snap, err := dom.SnapshotLookupByName(name, 0)
	if err != nil {
		return "", fmt.Errorf("%w: vmName=%s snapshot=%s", ErrSnapshotNotFound, vm.Name(), name)
	}
	defer func() { _ = snap.Free() }()

	if err := snap.Delete(libvirt.DOMAIN_SNAPSHOT_DELETE_METADATA_ONLY); err != nil {
		return "", fmt.Errorf("%w: vmName=%s snapshot=%s: %v", ErrSnapshotDelete, vm.Name(), name, err)
	}

	msg := fmt.Sprintf(
		"snapshot %q metadata deleted; external overlay files remain on disk and require manual cleanup",
		name,
	)
	slog.Info("deleted snapshot metadata", "vmName", vm.Name(), "snapshot", name)
	return msg, nil
}

// List enumerates the VM's snapshots with parsed creation time, guest
// state and external/internal classification, oldest first.
func (m *Manager) List(ctx context.Context, vm *hypervisor.VM) ([]Info, error) {
	dom := vm.Domain()
	snaps, err := dom.ListAllSnapshots(0)
	if err != nil {
		return nil, fmt.Errorf("%w: vmName=%s: %v", ErrSnapshotList, vm.Name(), err)
	}

	infos := make([]Info, 0, len(snaps))
	for i := range snaps {
		snapXML, err := snaps[i].GetXMLDesc(0)
		_ = snaps[i].Free()
		if err != nil {
			return nil, fmt.Errorf("%w: vmName=%s: %v", ErrSnapshotList, vm.Name(), err)
		}

		info, err := parseInfo(snapXML)
		if err != nil {
			return nil, fmt.Errorf("vmName=%s: %w", vm.Name(), err)
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos, nil
}
