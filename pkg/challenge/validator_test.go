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

package challenge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christiancoding/linux-practice/pkg/challenge"
)

func validDefinition() *challenge.Definition {
	return &challenge.Definition{
		ID:          "ch-1",
		Name:        "Challenge one",
		Description: "Do the thing.",
		Steps: []challenge.Step{
			{Name: "prepare", Command: "touch /tmp/ready", Timeout: "10s"},
		},
		Validation: []challenge.ValidationStep{
			{Name: "check", Command: "test -f /tmp/ready"},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	require.NoError(t, challenge.Validate(validDefinition()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*challenge.Definition)
		wantField string
	}{
		{
			name:      "missing id",
			mutate:    func(d *challenge.Definition) { d.ID = "" },
			wantField: "id",
		},
		{
			name:      "missing name",
			mutate:    func(d *challenge.Definition) { d.Name = "" },
			wantField: "name",
		},
		{
			name:      "missing description",
			mutate:    func(d *challenge.Definition) { d.Description = "" },
			wantField: "description",
		},
		{
			name:      "no steps",
			mutate:    func(d *challenge.Definition) { d.Steps = nil },
			wantField: "steps",
		},
		{
			name:      "step without command",
			mutate:    func(d *challenge.Definition) { d.Steps[0].Command = "" },
			wantField: "steps[0].command",
		},
		{
			name:      "step with bad timeout",
			mutate:    func(d *challenge.Definition) { d.Steps[0].Timeout = "soonish" },
			wantField: "steps[0].timeout",
		},
		{
			name:      "validation step without command",
			mutate:    func(d *challenge.Definition) { d.Validation[0].Command = "" },
			wantField: "validation[0].command",
		},
		{
			name: "user action without description",
			mutate: func(d *challenge.Definition) {
				d.UserAction = &challenge.UserAction{}
			},
			wantField: "userAction.description",
		},
		{
			name: "simulate step without command",
			mutate: func(d *challenge.Definition) {
				d.UserAction = &challenge.UserAction{
					Description:   "do it",
					SimulateSteps: []challenge.Step{{Name: "noop"}},
				}
			},
			wantField: "userAction.simulateSteps[0].command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)

			err := challenge.Validate(def)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	err := challenge.Validate(&challenge.Definition{})
	require.Error(t, err)

	var errs challenge.ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.GreaterOrEqual(t, len(errs), 4, "all missing fields must be reported at once")
}
