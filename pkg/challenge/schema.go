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

// Package challenge loads challenge definitions and drives the end-to-end
// challenge run: snapshot, boot, wait for SSH, setup, user action,
// validation and cleanup.
package challenge

import "time"

// Definition represents a complete challenge loaded from YAML. It is a
// read-only input to the orchestrator.
type Definition struct {
	// ID is the stable challenge identifier, also used to derive the
	// pre-challenge snapshot name.
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable challenge name.
	Name string `yaml:"name" json:"name"`

	// Description explains what the learner is asked to do.
	Description string `yaml:"description" json:"description"`

	// Steps are the ordered setup commands run before the user acts.
	Steps []Step `yaml:"steps" json:"steps"`

	// Validation are the ordered checks run after the user acted.
	Validation []ValidationStep `yaml:"validation,omitempty" json:"validation,omitempty"`

	// UserAction describes the manual action expected from the learner
	// and, optionally, commands that stand in for it in simulate mode.
	UserAction *UserAction `yaml:"userAction,omitempty" json:"userAction,omitempty"`

	// Hints are shown to the learner on request.
	Hints []string `yaml:"hints,omitempty" json:"hints,omitempty"`

	// Flag is an optional completion token.
	Flag string `yaml:"flag,omitempty" json:"flag,omitempty"`

	// Simulate is the default for running the user action scripted
	// instead of suspending for a real human.
	Simulate bool `yaml:"simulate,omitempty" json:"simulate,omitempty"`

	// KeepSnapshot skips the revert/delete of the pre-challenge snapshot
	// during cleanup.
	KeepSnapshot bool `yaml:"keepSnapshot,omitempty" json:"keepSnapshot,omitempty"`
}

// Step is a single remote command.
type Step struct {
	// Name is an optional label used in step results.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Command is the shell command to execute on the VM.
	Command string `yaml:"command" json:"command"`

	// Timeout bounds this command's execution.
	Timeout DurationString `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ValidationStep is a check whose outcome is compared against an expected
// exit code and, optionally, expected output.
type ValidationStep struct {
	// Name is an optional label used in the validation report.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Command is the shell command to execute on the VM.
	Command string `yaml:"command" json:"command"`

	// ExpectedExit is the exit code the command must produce. Defaults
	// to 0.
	ExpectedExit int `yaml:"expectedExit,omitempty" json:"expectedExit,omitempty"`

	// ExpectedOutput, when set, must appear in the command's stdout.
	ExpectedOutput string `yaml:"expectedOutput,omitempty" json:"expectedOutput,omitempty"`

	// Timeout bounds this command's execution.
	Timeout DurationString `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// UserAction describes the manual step of a challenge.
type UserAction struct {
	// Description tells the learner what to do.
	Description string `yaml:"description" json:"description"`

	// SimulateSteps are commands that perform the action on the
	// learner's behalf when the run is simulated.
	SimulateSteps []Step `yaml:"simulateSteps,omitempty" json:"simulateSteps,omitempty"`
}

// DurationString is a wrapper for time.Duration that supports YAML
// unmarshaling from strings like "30s".
type DurationString string

// Duration parses the DurationString into a time.Duration.
func (d DurationString) Duration() (time.Duration, error) {
	if d == "" {
		return 0, nil
	}
	return time.ParseDuration(string(d))
}

// DurationOr parses the DurationString, falling back to def when unset.
func (d DurationString) DurationOr(def time.Duration) time.Duration {
	if d == "" {
		return def
	}
	parsed, err := time.ParseDuration(string(d))
	if err != nil {
		return def
	}
	return parsed
}
