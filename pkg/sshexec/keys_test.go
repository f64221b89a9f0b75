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

package sshexec_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christiancoding/linux-practice/pkg/sshexec"
)

func TestValidateKey_Missing(t *testing.T) {
	_, err := sshexec.ValidateKey(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.ErrorIs(t, err, sshexec.ErrKey)
}

func TestValidateKey_Directory(t *testing.T) {
	_, err := sshexec.ValidateKey(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, sshexec.ErrKey)
}

func TestValidateKey_FixesLoosePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, []byte("not really a key"), 0o644))

	got, err := sshexec.ValidateKey(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestValidateKey_GoodPermissionsUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, []byte("not really a key"), 0o600))

	got, err := sshexec.ValidateKey(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}
