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

import "sync"

// lockRegistry serializes snapshot-mutating operations per VM. Overlapping
// snapshot operations on the same domain are undefined behavior in
// libvirt, so create/revert/delete hold the VM's lock for their whole
// duration. The lock is never held across SSH command execution.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{
		locks: make(map[string]*sync.Mutex),
	}
}

// lock acquires the per-VM lock and returns the matching unlock func.
func (r *lockRegistry) lock(vmName string) func() {
	r.mu.Lock()
	l, ok := r.locks[vmName]
	if !ok {
		l = &sync.Mutex{}
		r.locks[vmName] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
