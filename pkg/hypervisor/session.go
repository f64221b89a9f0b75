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

// Package hypervisor manages the connection to the libvirt daemon and
// observes practice VMs: lookup, run state, IP discovery, start/stop.
// VM definitions are never created or destroyed here; the domains are
// provisioned out of band and this package only operates on them.
package hypervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"libvirt.org/go/libvirt"
)

var (
	ErrConnect        = errors.New("failed to connect to hypervisor")
	ErrConnNil        = errors.New("hypervisor connection is nil")
	ErrVMNotFound     = errors.New("VM not found")
	ErrIPUnavailable  = errors.New("VM has not reported an IP address yet")
	ErrGetDomainState = errors.New("failed to get domain state")
	ErrStartDomain    = errors.New("failed to start domain")
	ErrStopDomain     = errors.New("failed to stop domain")
	ErrListDomains    = errors.New("failed to list domains")
)

// DefaultURI is the local system hypervisor socket.
const DefaultURI = "qemu:///system"

// State is the coarse run state reported for a VM.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// Session wraps a libvirt connection. Callers must release it via Close
// on every exit path.
type Session struct {
	conn *libvirt.Connect
	uri  string
}

// Connect opens a connection to the hypervisor management endpoint.
// An empty uri selects DefaultURI.
func Connect(uri string) (*Session, error) {
	if uri == "" {
		uri = DefaultURI
	}

	conn, err := libvirt.NewConnect(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: uri=%s: %v", ErrConnect, uri, err)
	}

	slog.Debug("connected to hypervisor", "uri", uri)
	return &Session{conn: conn, uri: uri}, nil
}

// Close releases the hypervisor connection. Safe to call more than once.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	_, err := s.conn.Close()
	s.conn = nil
	return err
}

// URI returns the endpoint this session is connected to.
func (s *Session) URI() string {
	return s.uri
}

// VM is a handle to a libvirt domain. Release it with Free when done.
type VM struct {
	name string
	dom  *libvirt.Domain
}

// Name returns the domain name.
func (v *VM) Name() string {
	return v.name
}

// Domain exposes the underlying libvirt handle for snapshot operations.
func (v *VM) Domain() *libvirt.Domain {
	return v.dom
}

// Free releases the domain handle.
func (v *VM) Free() {
	if v.dom != nil {
		_ = v.dom.Free()
		v.dom = nil
	}
}

// FindVM looks up a domain by name among both defined and running domains.
func (s *Session) FindVM(name string) (*VM, error) {
	if s.conn == nil {
		return nil, ErrConnNil
	}

	dom, err := s.conn.LookupDomainByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: vmName=%s", ErrVMNotFound, name)
	}

	return &VM{name: name, dom: dom}, nil
}

// State reports the coarse run state of the VM.
func (s *Session) State(vm *VM) (State, error) {
	state, _, err := vm.dom.GetState()
	if err != nil {
		return StateError, fmt.Errorf("%w: vmName=%s: %v", ErrGetDomainState, vm.name, err)
	}
	return mapDomainState(state), nil
}

// GetIP queries the hypervisor for the VM's primary IPv4 address. The
// guest agent is asked first, falling back to the DHCP lease table. A
// guest that has not reported an address yet yields ErrIPUnavailable,
// which callers should poll on rather than treat as fatal.
func (s *Session) GetIP(vm *VM) (string, error) {
	ifaces, err := vm.dom.ListAllInterfaceAddresses(libvirt.DOMAIN_INTERFACE_ADDRESSES_SRC_AGENT)
	if err == nil {
		if ip := firstIPv4(ifaces); ip != "" {
			return ip, nil
		}
	}

	ifaces, err = vm.dom.ListAllInterfaceAddresses(libvirt.DOMAIN_INTERFACE_ADDRESSES_SRC_LEASE)
	if err == nil {
		if ip := firstIPv4(ifaces); ip != "" {
			return ip, nil
		}
	}

	return "", fmt.Errorf("%w: vmName=%s", ErrIPUnavailable, vm.name)
}

// firstIPv4 returns the first non-loopback IPv4 address in the interface
// listing, or "".
func firstIPv4(ifaces []libvirt.DomainInterface) string {
	for _, iface := range ifaces {
		if iface.Name == "lo" {
			continue
		}
		for _, addr := range iface.Addrs {
			if addr.Type == libvirt.IP_ADDR_TYPE_IPV4 {
				return strings.Split(addr.Addr, "/")[0]
			}
		}
	}
	return ""
}

// EnsureRunning starts the VM if it is not already active. Starting an
// already-running VM is a no-op success. Returns whether a start was
// actually performed, so callers can restore the previous power state
// later.
func (s *Session) EnsureRunning(vm *VM) (bool, error) {
	active, err := vm.dom.IsActive()
	if err != nil {
		return false, fmt.Errorf("%w: vmName=%s: %v", ErrGetDomainState, vm.name, err)
	}
	if active {
		return false, nil
	}

	if err := vm.dom.Create(); err != nil {
		return false, fmt.Errorf("%w: vmName=%s: %v", ErrStartDomain, vm.name, err)
	}

	slog.Info("started VM", "vmName", vm.name)
	return true, nil
}

// Shutdown requests a graceful guest shutdown. Used to restore the
// pre-challenge power state of a VM the orchestrator had to start.
func (s *Session) Shutdown(vm *VM) error {
	if err := vm.dom.Shutdown(); err != nil {
		return fmt.Errorf("%w: vmName=%s: %v", ErrStopDomain, vm.name, err)
	}
	slog.Info("requested VM shutdown", "vmName", vm.name)
	return nil
}

func mapDomainState(state libvirt.DomainState) State {
	switch state {
	case libvirt.DOMAIN_RUNNING:
		return StateRunning
	case libvirt.DOMAIN_SHUTOFF, libvirt.DOMAIN_SHUTDOWN, libvirt.DOMAIN_PAUSED, libvirt.DOMAIN_PMSUSPENDED:
		return StateStopped
	default:
		return StateError
	}
}
