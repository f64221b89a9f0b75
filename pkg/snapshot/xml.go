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

package snapshot

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"libvirt.org/go/libvirtxml"
)

var (
	ErrSnapshotXML = errors.New("failed to build snapshot XML")
	ErrParseXML    = errors.New("failed to parse snapshot XML")
	ErrNoDisks     = errors.New("domain has no file-backed disks to snapshot")
)

// domainDisk is one file-backed disk of a domain, as extracted from the
// domain XML.
type domainDisk struct {
	Target string // e.g. "vda"
	Source string // absolute path of the current backing image
}

// parseDomainDisks extracts the file-backed disks (device type "disk",
// cdroms excluded) from a domain XML description.
func parseDomainDisks(domainXML string) ([]domainDisk, error) {
	var dom libvirtxml.Domain
	if err := dom.Unmarshal(domainXML); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseXML, err)
	}

	var disks []domainDisk
	if dom.Devices == nil {
		return nil, ErrNoDisks
	}
	for _, d := range dom.Devices.Disks {
		if d.Device != "disk" {
			continue
		}
		if d.Source == nil || d.Source.File == nil || d.Source.File.File == "" {
			continue
		}
		target := ""
		if d.Target != nil {
			target = d.Target.Dev
		}
		disks = append(disks, domainDisk{Target: target, Source: d.Source.File.File})
	}

	if len(disks) == 0 {
		return nil, ErrNoDisks
	}
	return disks, nil
}

// overlayPath derives the external overlay file path for a disk: the
// overlay lands next to the current backing image, with the snapshot name
// spliced in before the qcow2 extension.
func overlayPath(source, snapName string) string {
	dir := filepath.Dir(source)
	base := filepath.Base(source)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%s.qcow2", base, snapName))
}

// buildSnapshotXML builds the disk-only external snapshot descriptor and
// returns it along with the overlay file paths the hypervisor is expected
// to create.
func buildSnapshotXML(name, description string, disks []domainDisk) (string, []string, error) {
	snapDisks := make([]libvirtxml.DomainSnapshotDisk, 0, len(disks))
	overlays := make([]string, 0, len(disks))

	for _, d := range disks {
		overlay := overlayPath(d.Source, name)
		overlays = append(overlays, overlay)
		snapDisks = append(snapDisks, libvirtxml.DomainSnapshotDisk{
			Name:     d.Target,
			Snapshot: "external",
			Driver: &libvirtxml.DomainDiskDriver{
				Type: "qcow2",
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{
					File: overlay,
				},
			},
		})
	}

	snap := &libvirtxml.DomainSnapshot{
		Name:        name,
		Description: description,
		Disks: &libvirtxml.DomainSnapshotDisks{
			Disks: snapDisks,
		},
	}

	xml, err := snap.Marshal()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSnapshotXML, err)
	}
	return xml, overlays, nil
}

// Info describes one existing snapshot, parsed from its XML descriptor.
type Info struct {
	Name        string
	Description string
	CreatedAt   time.Time
	GuestState  string
	External    bool
	DiskFiles   []string
}

// parseInfo extracts snapshot metadata from a snapshot XML descriptor.
// A snapshot is classified external when every snapshotted disk is
// external; anything else counts as internal.
func parseInfo(snapXML string) (Info, error) {
	var snap libvirtxml.DomainSnapshot
	if err := snap.Unmarshal(snapXML); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrParseXML, err)
	}

	info := Info{
		Name:        snap.Name,
		Description: snap.Description,
		GuestState:  snap.State,
	}

	if snap.CreationTime != "" {
		if secs, err := strconv.ParseInt(snap.CreationTime, 10, 64); err == nil {
			info.CreatedAt = time.Unix(secs, 0)
		}
	}

	if snap.Disks != nil && len(snap.Disks.Disks) > 0 {
		external := true
		for _, d := range snap.Disks.Disks {
			switch d.Snapshot {
			case "external":
				if d.Source != nil && d.Source.File != nil && d.Source.File.File != "" {
					info.DiskFiles = append(info.DiskFiles, d.Source.File.File)
				}
			case "no":
				// Skipped disks don't affect classification.
			default:
				external = false
			}
		}
		info.External = external
	}

	return info, nil
}
