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
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition indicates a malformed challenge file. Raised
// before any VM is touched.
var ErrInvalidDefinition = errors.New("invalid challenge definition")

// ValidationError represents a definition validation error with field
// context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates a Definition and returns field-identifying errors.
func Validate(def *Definition) error {
	var errs ValidationErrors

	if def.ID == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "id is required"})
	}
	if def.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "name is required"})
	}
	if def.Description == "" {
		errs = append(errs, ValidationError{Field: "description", Message: "description is required"})
	}

	if len(def.Steps) == 0 {
		errs = append(errs, ValidationError{Field: "steps", Message: "at least one setup step is required"})
	}
	for i, step := range def.Steps {
		errs = append(errs, validateStep(step, fmt.Sprintf("steps[%d]", i))...)
	}

	for i, step := range def.Validation {
		prefix := fmt.Sprintf("validation[%d]", i)
		if step.Command == "" {
			errs = append(errs, ValidationError{
				Field:   prefix + ".command",
				Message: "command is required",
			})
		}
		if step.Timeout != "" {
			if _, err := step.Timeout.Duration(); err != nil {
				errs = append(errs, ValidationError{
					Field:   prefix + ".timeout",
					Message: fmt.Sprintf("invalid duration format: %v", err),
				})
			}
		}
	}

	if def.UserAction != nil {
		if def.UserAction.Description == "" {
			errs = append(errs, ValidationError{
				Field:   "userAction.description",
				Message: "description is required when userAction is specified",
			})
		}
		for i, step := range def.UserAction.SimulateSteps {
			errs = append(errs, validateStep(step, fmt.Sprintf("userAction.simulateSteps[%d]", i))...)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateStep(step Step, prefix string) ValidationErrors {
	var errs ValidationErrors
	if step.Command == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".command",
			Message: "command is required",
		})
	}
	if step.Timeout != "" {
		if _, err := step.Timeout.Duration(); err != nil {
			errs = append(errs, ValidationError{
				Field:   prefix + ".timeout",
				Message: fmt.Sprintf("invalid duration format: %v", err),
			})
		}
	}
	return errs
}
