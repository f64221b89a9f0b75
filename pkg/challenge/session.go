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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Phase is the orchestrator's explicit state tag. Sessions only ever move
// forward through these phases; Aborted is reachable from any
// non-terminal phase.
type Phase string

const (
	PhaseLoaded             Phase = "Loaded"
	PhaseSnapshotCreated    Phase = "SnapshotCreated"
	PhaseVMReady            Phase = "VMReady"
	PhaseSetupComplete      Phase = "SetupComplete"
	PhaseSimulated          Phase = "Simulated"
	PhaseAwaitingUserAction Phase = "AwaitingUserAction"
	PhaseValidated          Phase = "Validated"
	PhaseCleanedUp          Phase = "CleanedUp"
	PhaseDone               Phase = "Done"
	PhaseAborted            Phase = "Aborted"
)

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseAborted
}

// Session is the mutable aggregate of one challenge run. It carries
// everything needed to resume after a suspension, so it is what the
// Store persists.
type Session struct {
	ID         string      `json:"id"`
	Definition *Definition `json:"definition"`
	VMName     string      `json:"vmName"`

	SnapshotName string `json:"snapshotName"`
	Phase        Phase  `json:"phase"`
	Simulate     bool   `json:"simulate"`
	KeepSnapshot bool   `json:"keepSnapshot"`

	// VMWasRunning records the pre-challenge power state so cleanup can
	// restore it.
	VMWasRunning bool `json:"vmWasRunning"`

	// Booted is set once the orchestrator has ensured the VM is running.
	Booted bool `json:"booted,omitempty"`

	// IP is the guest address discovered during the VMReady phase.
	IP string `json:"ip,omitempty"`

	StartedAt   time.Time         `json:"startedAt"`
	StepResults []StepResult      `json:"stepResults,omitempty"`
	Report      *ValidationReport `json:"report,omitempty"`

	// FailureMessage holds the human-readable cause when the session
	// aborted.
	FailureMessage string `json:"failureMessage,omitempty"`
}

// Store persists suspended and finished sessions as JSON files, one per
// session id.
type Store struct {
	dir string
}

// NewStore creates a session store rooted at dir (with ~ expanded).
func NewStore(dir string) (*Store, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand state dir: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &Store{dir: expanded}, nil
}

// Save persists a session to disk.
func (s *Store) Save(session *Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := filepath.Join(s.dir, session.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads a session from disk by id.
func (s *Store) Load(id string) (*Session, error) {
	path := filepath.Join(s.dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &session, nil
}

// List returns all persisted sessions.
func (s *Store) List() ([]*Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state dir: %w", err)
	}

	var sessions []*Session
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		session, err := s.Load(id)
		if err != nil {
			// Skip unreadable sessions rather than failing the listing.
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Delete removes a persisted session. Deleting an absent session is a
// no-op.
func (s *Store) Delete(id string) error {
	path := filepath.Join(s.dir, id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}
