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
	"fmt"
	"time"
)

// StepResult records the outcome of one executed step. Never mutated
// after creation.
type StepResult struct {
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
}

// ValidationReport is the challenge verdict consumed by the scoring
// layer.
type ValidationReport struct {
	// Passed is true only if every validation step passed.
	Passed bool `json:"passed"`

	// Score is the percentage of validation steps that passed.
	Score int `json:"score"`

	// FailingStep preserves the first failing validation step's details.
	FailingStep *StepResult `json:"failingStepDetails,omitempty"`
}

// RunResult is the generic multi-step run outcome consumed by callers.
type RunResult struct {
	Success              bool    `json:"success"`
	Message              string  `json:"message"`
	StepsCompleted       int     `json:"stepsCompleted"`
	TotalSteps           int     `json:"totalSteps"`
	ExecutionTimeSeconds float64 `json:"executionTimeSeconds"`

	// SessionID identifies the challenge session, needed to resume a
	// suspended run.
	SessionID string `json:"sessionId,omitempty"`

	// AwaitingUserAction is true when the session suspended for a real
	// user action and can be resumed later.
	AwaitingUserAction bool `json:"awaitingUserAction,omitempty"`

	// Report carries the validation verdict once validation ran.
	Report *ValidationReport `json:"report,omitempty"`
}

// Summary renders a short human-readable account of the run.
func (r *RunResult) Summary() string {
	status := "FAILED"
	switch {
	case r.AwaitingUserAction:
		status = "SUSPENDED"
	case r.Success:
		status = "PASSED"
	}

	s := fmt.Sprintf("%s: %s (%d/%d steps, %.1fs)",
		status, r.Message, r.StepsCompleted, r.TotalSteps, r.ExecutionTimeSeconds)

	if r.Report != nil && r.Report.FailingStep != nil {
		f := r.Report.FailingStep
		s += fmt.Sprintf("\nfirst failing check: %s (command %q exited %d)", f.Name, f.Command, f.ExitCode)
	}
	return s
}
