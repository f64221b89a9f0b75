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

package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/christiancoding/linux-practice/pkg/hypervisor"
	"github.com/christiancoding/linux-practice/pkg/snapshot"
)

// defaultIPWait bounds how long a freshly booted guest gets to report an
// address before the run is aborted.
const defaultIPWait = 2 * time.Minute

// HypervisorVMService adapts a hypervisor session to the orchestrator's
// name-keyed VMService.
type HypervisorVMService struct {
	session *hypervisor.Session

	// IPWait overrides defaultIPWait when positive.
	IPWait time.Duration
}

// NewHypervisorVMService wraps an open hypervisor session.
func NewHypervisorVMService(session *hypervisor.Session) *HypervisorVMService {
	return &HypervisorVMService{session: session}
}

// EnsureRunning starts the VM if needed and reports whether it was
// already running.
func (s *HypervisorVMService) EnsureRunning(ctx context.Context, vmName string) (bool, error) {
	vm, err := s.session.FindVM(vmName)
	if err != nil {
		return false, err
	}
	defer vm.Free()

	started, err := s.session.EnsureRunning(vm)
	if err != nil {
		return false, err
	}
	return !started, nil
}

// IP polls the hypervisor for the guest's address. A guest that has not
// reported one yet is retried until the wait budget runs out; that is
// the normal case right after boot.
func (s *HypervisorVMService) IP(ctx context.Context, vmName string) (string, error) {
	vm, err := s.session.FindVM(vmName)
	if err != nil {
		return "", err
	}
	defer vm.Free()

	wait := s.IPWait
	if wait <= 0 {
		wait = defaultIPWait
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var ip string
	operation := func() error {
		got, err := s.session.GetIP(vm)
		if err != nil {
			if errors.Is(err, hypervisor.ErrIPUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		ip = got
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(3*time.Second), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return "", fmt.Errorf("vmName=%s: %w", vmName, err)
	}
	return ip, nil
}

// Shutdown requests a graceful guest shutdown.
func (s *HypervisorVMService) Shutdown(ctx context.Context, vmName string) error {
	vm, err := s.session.FindVM(vmName)
	if err != nil {
		return err
	}
	defer vm.Free()

	return s.session.Shutdown(vm)
}

// ManagerSnapshotService adapts the snapshot manager to the
// orchestrator's name-keyed SnapshotService.
type ManagerSnapshotService struct {
	session *hypervisor.Session
	manager *snapshot.Manager
}

// NewManagerSnapshotService wraps an open hypervisor session and a
// snapshot manager.
func NewManagerSnapshotService(session *hypervisor.Session, manager *snapshot.Manager) *ManagerSnapshotService {
	return &ManagerSnapshotService{session: session, manager: manager}
}

func (s *ManagerSnapshotService) CreateExternal(
	ctx context.Context,
	vmName, snapName, description string,
	freezeFS bool,
) error {
	vm, err := s.session.FindVM(vmName)
	if err != nil {
		return err
	}
	defer vm.Free()

	return s.manager.CreateExternal(ctx, vm, snapName, description, freezeFS)
}

func (s *ManagerSnapshotService) Revert(ctx context.Context, vmName, snapName string) error {
	vm, err := s.session.FindVM(vmName)
	if err != nil {
		return err
	}
	defer vm.Free()

	return s.manager.Revert(ctx, vm, snapName)
}

func (s *ManagerSnapshotService) Delete(ctx context.Context, vmName, snapName string) (string, error) {
	vm, err := s.session.FindVM(vmName)
	if err != nil {
		return "", err
	}
	defer vm.Free()

	return s.manager.Delete(ctx, vm, snapName)
}
