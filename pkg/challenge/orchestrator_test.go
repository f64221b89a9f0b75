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
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christiancoding/linux-practice/pkg/challenge"
	"github.com/christiancoding/linux-practice/pkg/sshexec"
)

// fakeVMService records lifecycle calls and plays back a scripted VM.
type fakeVMService struct {
	running   bool
	ensureErr error
	ipErr     error
	shutdowns int
}

func (f *fakeVMService) EnsureRunning(ctx context.Context, vmName string) (bool, error) {
	if f.ensureErr != nil {
		return false, f.ensureErr
	}
	wasRunning := f.running
	f.running = true
	return wasRunning, nil
}

func (f *fakeVMService) IP(ctx context.Context, vmName string) (string, error) {
	if f.ipErr != nil {
		return "", f.ipErr
	}
	return "192.168.122.77", nil
}

func (f *fakeVMService) Shutdown(ctx context.Context, vmName string) error {
	f.shutdowns++
	f.running = false
	return nil
}

// fakeSnapshotService records snapshot operations.
type fakeSnapshotService struct {
	created   []string
	reverted  []string
	deleted   []string
	createErr error
	revertErr error
}

func (f *fakeSnapshotService) CreateExternal(ctx context.Context, vmName, snapName, description string, freezeFS bool) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, snapName)
	return nil
}

func (f *fakeSnapshotService) Revert(ctx context.Context, vmName, snapName string) error {
	if f.revertErr != nil {
		return f.revertErr
	}
	f.reverted = append(f.reverted, snapName)
	return nil
}

func (f *fakeSnapshotService) Delete(ctx context.Context, vmName, snapName string) (string, error) {
	f.deleted = append(f.deleted, snapName)
	return "deleted", nil
}

// fakeRunner plays back scripted command results; unscripted commands
// succeed with exit 0.
type fakeRunner struct {
	ready    bool
	results  map[string]sshexec.CommandResult
	errs     map[string]error
	commands []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		ready:   true,
		results: map[string]sshexec.CommandResult{},
		errs:    map[string]error{},
	}
}

func (f *fakeRunner) RunCommand(
	ctx context.Context,
	target sshexec.Target,
	command string,
	timeout time.Duration,
	stdin io.Reader,
) (sshexec.CommandResult, error) {
	f.commands = append(f.commands, command)
	if err, ok := f.errs[command]; ok {
		return sshexec.CommandResult{ExitCode: -1}, err
	}
	if res, ok := f.results[command]; ok {
		return res, nil
	}
	return sshexec.CommandResult{ExitCode: 0}, nil
}

func (f *fakeRunner) WaitUntilReady(
	ctx context.Context,
	target sshexec.Target,
	totalTimeout time.Duration,
	pollInterval time.Duration,
) bool {
	return f.ready
}

type fixture struct {
	vms    *fakeVMService
	snaps  *fakeSnapshotService
	runner *fakeRunner
	store  *challenge.Store
	orch   *challenge.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := challenge.NewStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		vms:    &fakeVMService{},
		snaps:  &fakeSnapshotService{},
		runner: newFakeRunner(),
		store:  store,
	}
	f.orch = challenge.NewOrchestrator(f.vms, f.snaps, f.runner, store, challenge.OrchestratorConfig{
		SSHUser:        "student",
		SSHKeyPath:     "/tmp/id",
		ReadyTimeout:   time.Second,
		PollInterval:   100 * time.Millisecond,
		CommandTimeout: time.Second,
	})
	return f
}

func hostnameChallenge() *challenge.Definition {
	return &challenge.Definition{
		ID:          "set-hostname",
		Name:        "Set the hostname",
		Description: "Restore the scrambled hostname.",
		Steps: []challenge.Step{
			{Name: "scramble", Command: "hostnamectl set-hostname broken-host"},
		},
		Validation: []challenge.ValidationStep{
			{Name: "hostname restored", Command: "hostname", ExpectedOutput: "practice-server"},
		},
		UserAction: &challenge.UserAction{
			Description:   "Set the hostname back to practice-server.",
			SimulateSteps: []challenge.Step{{Command: "hostnamectl set-hostname practice-server"}},
		},
		Flag: "FLAG{hostname-restored}",
	}
}

func TestOrchestrator_SimulatedRunPasses(t *testing.T) {
	f := newFixture(t)
	f.runner.results["hostname"] = sshexec.CommandResult{Stdout: "practice-server\n", ExitCode: 0}

	result, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{Simulate: true})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.AwaitingUserAction)
	assert.Contains(t, result.Message, "FLAG{hostname-restored}")
	require.NotNil(t, result.Report)
	assert.True(t, result.Report.Passed)
	assert.Equal(t, 100, result.Report.Score)
	assert.Equal(t, 3, result.StepsCompleted)
	assert.Equal(t, 3, result.TotalSteps)

	// Setup, simulation and validation all ran, in order.
	assert.Equal(t, []string{
		"hostnamectl set-hostname broken-host",
		"hostnamectl set-hostname practice-server",
		"hostname",
	}, f.runner.commands)

	// The VM was off before, so cleanup shuts it back down.
	require.Len(t, f.snaps.created, 1)
	assert.Equal(t, f.snaps.created, f.snaps.reverted)
	assert.Equal(t, f.snaps.created, f.snaps.deleted)
	assert.Equal(t, 1, f.vms.shutdowns)
}

func TestOrchestrator_SnapshotNameDerivedFromSession(t *testing.T) {
	f := newFixture(t)
	f.runner.results["hostname"] = sshexec.CommandResult{Stdout: "practice-server\n", ExitCode: 0}

	result, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{Simulate: true})
	require.NoError(t, err)

	require.Len(t, f.snaps.created, 1)
	assert.Equal(t, "pre-set-hostname-"+result.SessionID, f.snaps.created[0])
}

func TestOrchestrator_AlreadyRunningVMStaysUp(t *testing.T) {
	f := newFixture(t)
	f.vms.running = true
	f.runner.results["hostname"] = sshexec.CommandResult{Stdout: "practice-server\n", ExitCode: 0}

	_, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{Simulate: true})
	require.NoError(t, err)

	assert.Zero(t, f.vms.shutdowns, "a VM that was already running must not be shut down")
}

func TestOrchestrator_FailedValidationIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.runner.results["hostname"] = sshexec.CommandResult{Stdout: "broken-host\n", ExitCode: 0}

	result, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{Simulate: true})
	require.NoError(t, err, "a wrong answer is a verdict, not a failure")

	assert.False(t, result.Success)
	require.NotNil(t, result.Report)
	assert.False(t, result.Report.Passed)
	assert.Equal(t, 0, result.Report.Score)
	require.NotNil(t, result.Report.FailingStep)
	assert.Equal(t, "hostname restored", result.Report.FailingStep.Name)

	// Cleanup still restores the VM.
	assert.Equal(t, f.snaps.created, f.snaps.reverted)
}

func TestOrchestrator_SuspendAndResume(t *testing.T) {
	f := newFixture(t)
	f.runner.results["hostname"] = sshexec.CommandResult{Stdout: "practice-server\n", ExitCode: 0}

	result, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{})
	require.NoError(t, err)

	assert.True(t, result.AwaitingUserAction)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, result.SessionID)

	// The suspended session survived to disk.
	sess, err := f.store.Load(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, challenge.PhaseAwaitingUserAction, sess.Phase)

	// Nothing was cleaned up yet.
	assert.Empty(t, f.snaps.reverted)

	resumed, err := f.orch.Resume(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.True(t, resumed.Success)
	assert.False(t, resumed.AwaitingUserAction)

	// The simulate steps are skipped on a real user action.
	assert.NotContains(t, f.runner.commands, "hostnamectl set-hostname practice-server")
	assert.Equal(t, f.snaps.created, f.snaps.reverted)
}

func TestOrchestrator_Resume_NotSuspended(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(&challenge.Session{
		ID:         "done1234",
		Definition: hostnameChallenge(),
		Phase:      challenge.PhaseDone,
	}))

	_, err := f.orch.Resume(context.Background(), "done1234")
	require.Error(t, err)
	assert.ErrorIs(t, err, challenge.ErrNotResumable)
}

func TestOrchestrator_SetupFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.runner.results["hostnamectl set-hostname broken-host"] = sshexec.CommandResult{
		Stderr:   "permission denied\n",
		ExitCode: 1,
	}

	result, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{Simulate: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, challenge.ErrSetupStepFailed)
	assert.False(t, result.Success)

	// The abort path still restores the snapshot and power state.
	assert.Equal(t, f.snaps.created, f.snaps.reverted)
	assert.Equal(t, 1, f.vms.shutdowns)

	// The aborted session is recorded for post-mortem.
	sess, err := f.store.Load(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, challenge.PhaseAborted, sess.Phase)
	assert.NotEmpty(t, sess.FailureMessage)
}

func TestOrchestrator_ConnectionFailureDuringValidationAborts(t *testing.T) {
	f := newFixture(t)
	f.runner.errs["hostname"] = sshexec.ErrConnection

	_, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{Simulate: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, sshexec.ErrConnection)
	assert.Equal(t, f.snaps.created, f.snaps.reverted)
}

func TestOrchestrator_SnapshotFailureAbortsWithoutRevert(t *testing.T) {
	f := newFixture(t)
	f.snaps.createErr = errors.New("snapshot name already exists")

	_, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{Simulate: true})
	require.Error(t, err)

	// No snapshot was taken, so there is nothing to revert and the VM was
	// never booted.
	assert.Empty(t, f.snaps.reverted)
	assert.Zero(t, f.vms.shutdowns)
	assert.Empty(t, f.runner.commands)
}

func TestOrchestrator_GuestNeverReadyAborts(t *testing.T) {
	f := newFixture(t)
	f.runner.ready = false

	_, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{Simulate: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, challenge.ErrGuestNotReady)

	assert.Equal(t, f.snaps.created, f.snaps.reverted)
	assert.Empty(t, f.runner.commands)
	assert.Equal(t, 1, f.vms.shutdowns, "a VM the run had to boot must be shut back down")
}

func TestOrchestrator_KeepSnapshot(t *testing.T) {
	f := newFixture(t)
	f.runner.results["hostname"] = sshexec.CommandResult{Stdout: "practice-server\n", ExitCode: 0}

	result, err := f.orch.Run(context.Background(), hostnameChallenge(), "practice-server",
		challenge.RunOptions{Simulate: true, KeepSnapshot: true})
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, f.snaps.created, 1)
	assert.Empty(t, f.snaps.reverted)
	assert.Empty(t, f.snaps.deleted)
}

func TestOrchestrator_NoUserActionSimulatePassesThrough(t *testing.T) {
	f := newFixture(t)
	def := hostnameChallenge()
	def.UserAction = nil
	f.runner.results["hostname"] = sshexec.CommandResult{Stdout: "practice-server\n", ExitCode: 0}

	result, err := f.orch.Run(context.Background(), def, "practice-server",
		challenge.RunOptions{Simulate: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalSteps)
}
