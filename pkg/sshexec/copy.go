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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"golang.org/x/crypto/ssh"
)

const copyDialTimeout = 15 * time.Second

// CopyFile transfers a local file to the target over a single connection.
// When createDirs is set, missing remote parent directories are created
// first: the path is walked upward until an existing directory is found,
// then the missing ones are created downward.
//
// Every remote round-trip honors ctx; cancellation closes the in-flight
// session so a wedged guest cannot block the transfer forever.
func (e *Executor) CopyFile(
	ctx context.Context,
	target Target,
	localPath string,
	remotePath string,
	createDirs bool,
) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("unable to open local file %s: %w", localPath, err)
	}
	defer closeAndLog("local file", f.Close)

	conn, err := e.dial(target, copyDialTimeout)
	if err != nil {
		return err
	}
	defer closeAndLog("connection", conn.Close)

	if createDirs {
		if err := ensureRemoteDirs(ctx, conn, path.Dir(remotePath)); err != nil {
			return err
		}
	}

	if err := runOnConn(ctx, conn, fmt.Sprintf("cat > %q", remotePath), f); err != nil {
		return fmt.Errorf("remote write to %s failed: %w", remotePath, err)
	}

	return nil
}

// ensureRemoteDirs creates dir and any missing ancestors on the remote
// host, reusing the already-open connection for each check.
func ensureRemoteDirs(ctx context.Context, conn *ssh.Client, dir string) error {
	var missing []string
	for d := dir; d != "/" && d != "."; d = path.Dir(d) {
		exists, err := remoteDirExists(ctx, conn, d)
		if err != nil {
			return err
		}
		if exists {
			break
		}
		missing = append([]string{d}, missing...)
	}

	for _, d := range missing {
		if err := runOnConn(ctx, conn, fmt.Sprintf("mkdir %q", d), nil); err != nil {
			return fmt.Errorf("unable to create remote directory %s: %w", d, err)
		}
	}
	return nil
}

func remoteDirExists(ctx context.Context, conn *ssh.Client, dir string) (bool, error) {
	err := runOnConn(ctx, conn, fmt.Sprintf("test -d %q", dir), nil)
	if err == nil {
		return true, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("%w: checking remote directory %s: %v", ErrConnection, dir, err)
}

// runOnConn runs one command in a fresh session on an existing connection.
// stdin may be nil. Context cancellation closes the session, which
// unblocks the command and its output copiers before returning.
func runOnConn(ctx context.Context, conn *ssh.Client, command string, stdin io.Reader) error {
	session, err := conn.NewSession()
	if err != nil {
		return fmt.Errorf("%w: unable to open session: %v", ErrConnection, err)
	}
	defer closeAndLog("session", session.Close)

	if stdin != nil {
		session.Stdin = stdin
	}

	if err := session.Start(command); err != nil {
		return fmt.Errorf("%w: unable to start command: %v", ErrConnection, err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}
