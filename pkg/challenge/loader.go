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
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader loads challenge definitions from YAML files.
type Loader struct {
	// basePath is the base directory for resolving relative paths.
	basePath string
}

// NewLoader creates a new challenge loader. basePath is used to resolve
// relative definition file paths; if empty, the current working directory
// is used.
func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = "."
	}
	return &Loader{basePath: basePath}
}

// Load loads a challenge definition from a YAML file. The path can be
// absolute or relative to the loader's basePath. The definition is
// validated before it is returned; malformed files fail closed with a
// field-identifying error.
func (l *Loader) Load(path string) (*Definition, error) {
	resolvedPath, err := l.resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve challenge path: %w", err)
	}

	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read challenge file %s: %w", resolvedPath, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML from %s: %v", ErrInvalidDefinition, resolvedPath, err)
	}

	if err := Validate(&def); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, resolvedPath, err)
	}

	return &def, nil
}

// resolvePath resolves a file path relative to the loader's basePath.
func (l *Loader) resolvePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.basePath, path)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("challenge file does not exist: %s", path)
		}
		return "", fmt.Errorf("failed to stat challenge file %s: %w", path, err)
	}

	return path, nil
}
