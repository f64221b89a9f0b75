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

// Package sshexec executes commands on practice VMs over SSH.
//
// Every call opens a fresh connection, runs exactly one command and closes
// the connection again, so a misbehaving guest can never wedge a shared
// session. Non-zero remote exit codes are normal results; only
// connection-level failures (key, auth, network, timeout) surface as errors.
package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	// ErrKey indicates the private key is missing or unusable. Raised before
	// any network attempt.
	ErrKey = errors.New("ssh private key is missing or invalid")

	// ErrAuth indicates the server rejected our authentication.
	ErrAuth = errors.New("ssh authentication rejected")

	// ErrConnection indicates a network-level failure (refused, reset, DNS).
	ErrConnection = errors.New("ssh connection failed")

	// ErrTimeout indicates the operation exceeded its time budget.
	ErrTimeout = errors.New("ssh operation timed out")
)

// Target identifies the remote SSH endpoint. Targets are constructed per
// operation from the VM's discovered IP plus configuration; they are never
// persisted.
type Target struct {
	Host    string
	User    string
	KeyPath string
	Port    int
}

func (t Target) addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// CommandResult holds the outcome of a single remote command.
// ExitCode is -1 when the command never ran due to a connection failure.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs commands against SSH targets.
type Executor struct{}

// NewExecutor creates a new Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// dial validates the key and opens a connection to the target.
func (e *Executor) dial(target Target, timeout time.Duration) (*ssh.Client, error) {
	keyPath, err := ValidateKey(target.KeyPath)
	if err != nil {
		return nil, err
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read %s: %v", ErrKey, keyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse %s: %v", ErrKey, keyPath, err)
	}

	config := &ssh.ClientConfig{
		User: target.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		// Practice VMs are disposable and reverted between runs, so their
		// host keys churn constantly.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	conn, err := ssh.Dial("tcp", target.addr(), config)
	if err != nil {
		return nil, classifyDialError(target.addr(), err)
	}
	return conn, nil
}

// RunCommand opens a fresh connection, executes exactly one command and
// always closes the connection. stdin may be nil.
//
// A non-zero remote exit code is reported through CommandResult, not the
// error. The error is non-nil only for connection-level failures, in which
// case ExitCode is -1.
func (e *Executor) RunCommand(
	ctx context.Context,
	target Target,
	command string,
	timeout time.Duration,
	stdin io.Reader,
) (CommandResult, error) {
	failed := CommandResult{ExitCode: -1}

	conn, err := e.dial(target, timeout)
	if err != nil {
		return failed, err
	}
	defer closeAndLog("connection", conn.Close)

	session, err := conn.NewSession()
	if err != nil {
		return failed, fmt.Errorf("%w: unable to open session: %v", ErrConnection, err)
	}
	defer closeAndLog("session", session.Close)

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf
	if stdin != nil {
		session.Stdin = stdin
	}

	if err := session.Start(command); err != nil {
		return failed, fmt.Errorf("%w: unable to start command: %v", ErrConnection, err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	// On timeout the session must be closed before the buffers are read:
	// Wait returning is the only guarantee that the output copiers have
	// stopped writing into them.
	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		_ = session.Close()
		<-done
		failed.Stdout = stdoutBuf.String()
		failed.Stderr = stderrBuf.String()
		return failed, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case <-time.After(timeout):
		_ = session.Close()
		<-done
		failed.Stdout = stdoutBuf.String()
		failed.Stderr = stderrBuf.String()
		return failed, fmt.Errorf("%w: command exceeded %s", ErrTimeout, timeout)
	}

	result := CommandResult{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if waitErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(waitErr, &exitErr) {
			// The command ran and exited non-zero. Normal result.
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("%w: %v", ErrConnection, waitErr)
	}

	result.ExitCode = 0
	return result, nil
}

// TestConnectivity reports whether the guest answers a no-op command with
// exit code 0 and no connection error.
func (e *Executor) TestConnectivity(ctx context.Context, target Target, timeout time.Duration) bool {
	return e.probe(ctx, target, timeout) == nil
}

// probe runs the no-op command and returns the classified failure, if any.
func (e *Executor) probe(ctx context.Context, target Target, timeout time.Duration) error {
	result, err := e.RunCommand(ctx, target, "true", timeout, nil)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: probe command exited with %d", ErrConnection, result.ExitCode)
	}
	return nil
}

// classifyDialError maps a dial failure onto the error taxonomy so callers
// can tell auth problems apart from network or timeout problems.
func classifyDialError(addr string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: dialing %s: %v", ErrTimeout, addr, err)
	}

	// x/crypto/ssh reports auth rejections as plain handshake errors, so
	// string matching is the only handle we have.
	if strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "no supported methods remain") {
		return fmt.Errorf("%w: %s: %v", ErrAuth, addr, err)
	}

	return fmt.Errorf("%w: %s: %v", ErrConnection, addr, err)
}

// Cause classifies err into one of "key", "auth", "timeout", "network" or
// "unknown" for diagnostics logging.
func Cause(err error) string {
	switch {
	case errors.Is(err, ErrKey):
		return "key"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnection):
		return "network"
	default:
		return "unknown"
	}
}

func closeAndLog(what string, f func() error) {
	if err := f(); err != nil && err != io.EOF {
		slog.Debug("error closing ssh resource", "what", what, "error", err.Error())
	}
}
