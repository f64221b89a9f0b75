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
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christiancoding/linux-practice/pkg/sshexec"
)

func TestWaitUntilReady_Success(t *testing.T) {
	target := newServerAndTarget(t, map[string]execResult{
		"true": {status: 0},
	})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	ready := sshexec.NewExecutor().WaitUntilReady(ctx, target, 5*time.Second, 200*time.Millisecond)
	assert.True(t, ready)
}

func TestWaitUntilReady_GivesUpAfterTimeout(t *testing.T) {
	keyPath, _ := writeClientKey(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	target := sshexec.Target{Host: host, User: "student", KeyPath: keyPath, Port: port}

	start := time.Now()
	ready := sshexec.NewExecutor().WaitUntilReady(context.Background(), target, time.Second, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ready)
	assert.Less(t, elapsed, 5*time.Second, "wait must respect its total timeout")
}

func TestWaitUntilReady_MissingKeyAbortsImmediately(t *testing.T) {
	target := sshexec.Target{
		Host:    "127.0.0.1",
		User:    "student",
		KeyPath: filepath.Join(t.TempDir(), "absent"),
		Port:    2222,
	}

	start := time.Now()
	ready := sshexec.NewExecutor().WaitUntilReady(context.Background(), target, 10*time.Second, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ready)
	assert.Less(t, elapsed, 2*time.Second, "a missing key must not be polled on")
}
