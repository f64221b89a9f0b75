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

//go:build unit

package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDomainXML = `
<domain type='kvm'>
  <name>practice-server</name>
  <devices>
    <disk type='file' device='disk'>
      <driver name='qemu' type='qcow2'/>
      <source file='/var/lib/libvirt/images/practice-server.qcow2'/>
      <target dev='vda' bus='virtio'/>
    </disk>
    <disk type='file' device='disk'>
      <driver name='qemu' type='qcow2'/>
      <source file='/var/lib/libvirt/images/practice-data.qcow2'/>
      <target dev='vdb' bus='virtio'/>
    </disk>
    <disk type='file' device='cdrom'>
      <driver name='qemu' type='raw'/>
      <source file='/var/lib/libvirt/images/seed.iso'/>
      <target dev='sda' bus='sata'/>
    </disk>
  </devices>
</domain>`

func TestParseDomainDisks(t *testing.T) {
	disks, err := parseDomainDisks(testDomainXML)
	require.NoError(t, err)

	assert.Equal(t, []domainDisk{
		{Target: "vda", Source: "/var/lib/libvirt/images/practice-server.qcow2"},
		{Target: "vdb", Source: "/var/lib/libvirt/images/practice-data.qcow2"},
	}, disks, "cdrom devices must be excluded")
}

func TestParseDomainDisks_NoDisks(t *testing.T) {
	_, err := parseDomainDisks(`<domain type='kvm'><name>empty</name><devices/></domain>`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDisks)
}

func TestParseDomainDisks_InvalidXML(t *testing.T) {
	_, err := parseDomainDisks("not xml at all <<<")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseXML)
}

func TestOverlayPath(t *testing.T) {
	tests := []struct {
		name   string
		source string
		snap   string
		want   string
	}{
		{
			name:   "qcow2 extension replaced",
			source: "/var/lib/libvirt/images/web.qcow2",
			snap:   "pre-ch1",
			want:   "/var/lib/libvirt/images/web.pre-ch1.qcow2",
		},
		{
			name:   "raw image",
			source: "/images/db.img",
			snap:   "clean",
			want:   "/images/db.clean.qcow2",
		},
		{
			name:   "no extension",
			source: "/images/disk",
			snap:   "s1",
			want:   "/images/disk.s1.qcow2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overlayPath(tt.source, tt.snap))
		})
	}
}

func TestBuildSnapshotXML(t *testing.T) {
	disks := []domainDisk{
		{Target: "vda", Source: "/var/lib/libvirt/images/web.qcow2"},
	}

	xml, overlays, err := buildSnapshotXML("pre-ch1", "before challenge", disks)
	require.NoError(t, err)

	assert.Equal(t, []string{"/var/lib/libvirt/images/web.pre-ch1.qcow2"}, overlays)

	// Feed the descriptor back through the parser to check its shape.
	info, err := parseInfo(xml)
	require.NoError(t, err)
	assert.Equal(t, "pre-ch1", info.Name)
	assert.Equal(t, "before challenge", info.Description)
	assert.True(t, info.External)
	assert.Equal(t, overlays, info.DiskFiles)
}

func TestParseInfo(t *testing.T) {
	snapXML := `
<domainsnapshot>
  <name>clean-state</name>
  <description>fresh install</description>
  <state>running</state>
  <creationTime>1700000000</creationTime>
  <disks>
    <disk name='vda' snapshot='external'>
      <source file='/var/lib/libvirt/images/web.clean-state.qcow2'/>
    </disk>
    <disk name='sda' snapshot='no'/>
  </disks>
</domainsnapshot>`

	info, err := parseInfo(snapXML)
	require.NoError(t, err)

	assert.Equal(t, "clean-state", info.Name)
	assert.Equal(t, "fresh install", info.Description)
	assert.Equal(t, "running", info.GuestState)
	assert.Equal(t, time.Unix(1700000000, 0), info.CreatedAt)
	assert.True(t, info.External, "disks marked snapshot=no must not affect classification")
	assert.Equal(t, []string{"/var/lib/libvirt/images/web.clean-state.qcow2"}, info.DiskFiles)
}

func TestParseInfo_InternalSnapshot(t *testing.T) {
	snapXML := `
<domainsnapshot>
  <name>internal</name>
  <disks>
    <disk name='vda' snapshot='internal'/>
  </disks>
</domainsnapshot>`

	info, err := parseInfo(snapXML)
	require.NoError(t, err)
	assert.False(t, info.External)
}
