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

package sshexec

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mitchellh/go-homedir"
)

// ValidateKey resolves a private key path (expanding ~) and confirms it is a
// regular, existing file. Group- or world-accessible permissions are treated
// as a warning and fixed to owner-only, not a hard failure; ssh would refuse
// such a key outright.
//
// Returns the resolved path. Never touches the network.
func ValidateKey(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: no key path configured", ErrKey)
	}

	resolved, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("%w: unable to expand %s: %v", ErrKey, path, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s does not exist", ErrKey, resolved)
		}
		return "", fmt.Errorf("%w: unable to stat %s: %v", ErrKey, resolved, err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrKey, resolved)
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		slog.Warn("ssh private key is group/world accessible, fixing permissions",
			"path", resolved,
			"mode", fmt.Sprintf("%04o", perm),
		)
		if err := os.Chmod(resolved, 0o600); err != nil {
			return "", fmt.Errorf("%w: unable to fix permissions on %s: %v", ErrKey, resolved, err)
		}
	}

	return resolved, nil
}
