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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/christiancoding/linux-practice/pkg/sshexec"
)

var (
	// ErrSuspended signals that the session stopped to wait for a real
	// user action and can be resumed later. It is a control-flow signal,
	// not a failure.
	ErrSuspended = errors.New("session suspended awaiting user action")

	// ErrGuestNotReady indicates the VM never answered SSH within the
	// readiness window.
	ErrGuestNotReady = errors.New("guest did not become reachable over ssh")

	// ErrSetupStepFailed indicates a setup or simulation command exited
	// non-zero or could not be executed.
	ErrSetupStepFailed = errors.New("challenge step failed")

	// ErrNotResumable indicates the named session is not waiting for a
	// user action.
	ErrNotResumable = errors.New("session is not awaiting a user action")

	// ErrCleanup indicates the post-challenge restore could not complete.
	ErrCleanup = errors.New("challenge cleanup failed")
)

// VMService is the subset of hypervisor operations the orchestrator
// needs, keyed by VM name.
type VMService interface {
	// EnsureRunning starts the VM if needed and reports whether it was
	// already running.
	EnsureRunning(ctx context.Context, vmName string) (wasRunning bool, err error)

	// IP returns the guest's IPv4 address.
	IP(ctx context.Context, vmName string) (string, error)

	// Shutdown requests a graceful guest shutdown.
	Shutdown(ctx context.Context, vmName string) error
}

// SnapshotService is the subset of snapshot operations the orchestrator
// needs, keyed by VM name.
type SnapshotService interface {
	CreateExternal(ctx context.Context, vmName, snapName, description string, freezeFS bool) error
	Revert(ctx context.Context, vmName, snapName string) error
	Delete(ctx context.Context, vmName, snapName string) (string, error)
}

// Runner executes commands on the guest. *sshexec.Executor satisfies it.
type Runner interface {
	RunCommand(
		ctx context.Context,
		target sshexec.Target,
		command string,
		timeout time.Duration,
		stdin io.Reader,
	) (sshexec.CommandResult, error)

	WaitUntilReady(
		ctx context.Context,
		target sshexec.Target,
		totalTimeout time.Duration,
		pollInterval time.Duration,
	) bool
}

// OrchestratorConfig carries the SSH identity and timing knobs for
// challenge runs.
type OrchestratorConfig struct {
	SSHUser    string
	SSHKeyPath string
	SSHPort    int

	// ReadyTimeout bounds the whole SSH readiness wait after boot.
	ReadyTimeout time.Duration

	// PollInterval is the delay between readiness probes.
	PollInterval time.Duration

	// CommandTimeout is the per-step default when a step does not set its
	// own timeout.
	CommandTimeout time.Duration
}

// Orchestrator drives challenge sessions through their phases. It is
// safe for concurrent use as long as distinct sessions target distinct
// VMs; snapshot-level serialization per VM is the SnapshotService's job.
type Orchestrator struct {
	vms    VMService
	snaps  SnapshotService
	runner Runner
	store  *Store
	cfg    OrchestratorConfig
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(
	vms VMService,
	snaps SnapshotService,
	runner Runner,
	store *Store,
	cfg OrchestratorConfig,
) *Orchestrator {
	return &Orchestrator{
		vms:    vms,
		snaps:  snaps,
		runner: runner,
		store:  store,
		cfg:    cfg,
	}
}

// RunOptions are per-run overrides of the definition's defaults.
type RunOptions struct {
	// Simulate forces scripted execution of the user action.
	Simulate bool

	// KeepSnapshot preserves the pre-challenge snapshot after the run.
	KeepSnapshot bool
}

// Run executes a challenge on the named VM from the beginning.
//
// When the definition has a user action and the run is not simulated,
// Run returns a suspended result (AwaitingUserAction set) and a nil
// error; the caller resumes with Resume once the learner acted. Any
// infrastructure failure aborts the session with best-effort cleanup.
func (o *Orchestrator) Run(
	ctx context.Context,
	def *Definition,
	vmName string,
	opts RunOptions,
) (*RunResult, error) {
	id := shortID()
	sess := &Session{
		ID:           id,
		Definition:   def,
		VMName:       vmName,
		SnapshotName: fmt.Sprintf("pre-%s-%s", def.ID, id),
		Phase:        PhaseLoaded,
		Simulate:     opts.Simulate || def.Simulate,
		KeepSnapshot: opts.KeepSnapshot || def.KeepSnapshot,
		StartedAt:    time.Now(),
	}

	slog.Info("starting challenge",
		"challenge", def.ID,
		"vmName", vmName,
		"sessionId", sess.ID,
		"simulate", sess.Simulate,
	)

	return o.drive(ctx, sess)
}

// Resume continues a session previously suspended for a user action.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*RunResult, error) {
	sess, err := o.store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != PhaseAwaitingUserAction {
		return nil, fmt.Errorf("%w: sessionId=%s phase=%s", ErrNotResumable, sess.ID, sess.Phase)
	}

	slog.Info("resuming challenge",
		"challenge", sess.Definition.ID,
		"vmName", sess.VMName,
		"sessionId", sess.ID,
	)

	return o.drive(ctx, sess)
}

// drive advances the session to a stopping point and translates the
// outcome into a RunResult.
func (o *Orchestrator) drive(ctx context.Context, sess *Session) (*RunResult, error) {
	err := o.advance(ctx, sess)

	result := o.result(sess)
	switch {
	case errors.Is(err, ErrSuspended):
		return result, nil
	case err != nil:
		return result, err
	default:
		return result, nil
	}
}

// advance is the state machine loop. Each case performs exactly one
// phase transition; failures route through abort.
func (o *Orchestrator) advance(ctx context.Context, sess *Session) error {
	for !sess.Phase.Terminal() {
		var err error

		switch sess.Phase {
		case PhaseLoaded:
			err = o.createSnapshot(ctx, sess)
		case PhaseSnapshotCreated:
			err = o.bootAndWait(ctx, sess)
		case PhaseVMReady:
			err = o.runSetup(ctx, sess)
		case PhaseSetupComplete:
			if sess.Simulate {
				err = o.runSimulation(ctx, sess)
				break
			}
			err = o.suspend(sess)
		case PhaseSimulated, PhaseAwaitingUserAction:
			err = o.runValidation(ctx, sess)
		case PhaseValidated:
			err = o.cleanup(ctx, sess)
		case PhaseCleanedUp:
			sess.Phase = PhaseDone
			if saveErr := o.store.Save(sess); saveErr != nil {
				slog.Warn("failed to persist finished session",
					"sessionId", sess.ID, "error", saveErr.Error())
			}
		default:
			err = fmt.Errorf("unexpected session phase %q", sess.Phase)
		}

		if errors.Is(err, ErrSuspended) {
			return err
		}
		if err != nil {
			return o.abort(ctx, sess, err)
		}
	}
	return nil
}

// createSnapshot takes the pre-challenge snapshot so the VM can always
// be restored.
func (o *Orchestrator) createSnapshot(ctx context.Context, sess *Session) error {
	desc := fmt.Sprintf("pre-challenge state for %s (session %s)", sess.Definition.ID, sess.ID)
	if err := o.snaps.CreateExternal(ctx, sess.VMName, sess.SnapshotName, desc, true); err != nil {
		return err
	}
	sess.Phase = PhaseSnapshotCreated
	return nil
}

// bootAndWait ensures the VM runs, discovers its IP and waits until the
// guest answers SSH.
func (o *Orchestrator) bootAndWait(ctx context.Context, sess *Session) error {
	wasRunning, err := o.vms.EnsureRunning(ctx, sess.VMName)
	if err != nil {
		return err
	}
	sess.VMWasRunning = wasRunning
	sess.Booted = true

	ip, err := o.vms.IP(ctx, sess.VMName)
	if err != nil {
		return err
	}
	sess.IP = ip

	if !o.runner.WaitUntilReady(ctx, o.target(sess), o.cfg.ReadyTimeout, o.cfg.PollInterval) {
		return fmt.Errorf("%w: vmName=%s host=%s after %s",
			ErrGuestNotReady, sess.VMName, ip, o.cfg.ReadyTimeout)
	}

	sess.Phase = PhaseVMReady
	return nil
}

// runSetup executes the definition's setup steps in order, stopping at
// the first failure.
func (o *Orchestrator) runSetup(ctx context.Context, sess *Session) error {
	if err := o.runSteps(ctx, sess, sess.Definition.Steps, "setup"); err != nil {
		return err
	}
	sess.Phase = PhaseSetupComplete
	return nil
}

// runSimulation performs the user action via its scripted stand-in.
// A definition without simulate steps simply passes through; validation
// then judges the untouched setup state.
func (o *Orchestrator) runSimulation(ctx context.Context, sess *Session) error {
	if ua := sess.Definition.UserAction; ua != nil && len(ua.SimulateSteps) > 0 {
		if err := o.runSteps(ctx, sess, ua.SimulateSteps, "simulate"); err != nil {
			return err
		}
	}
	sess.Phase = PhaseSimulated
	return nil
}

// suspend persists the session and hands control back to the learner.
func (o *Orchestrator) suspend(sess *Session) error {
	sess.Phase = PhaseAwaitingUserAction
	if err := o.store.Save(sess); err != nil {
		return fmt.Errorf("failed to persist suspended session: %w", err)
	}

	desc := ""
	if sess.Definition.UserAction != nil {
		desc = sess.Definition.UserAction.Description
	}
	slog.Info("session suspended for user action",
		"sessionId", sess.ID,
		"vmName", sess.VMName,
		"host", sess.IP,
		"action", desc,
	)
	return ErrSuspended
}

// runValidation executes the checks and records the verdict. A failed
// check is a failed challenge, not an aborted session; only the
// inability to run a check aborts.
func (o *Orchestrator) runValidation(ctx context.Context, sess *Session) error {
	checks := sess.Definition.Validation
	report := &ValidationReport{Passed: true}

	passed := 0
	for _, check := range checks {
		res, err := o.runOne(ctx, sess, Step{
			Name:    check.Name,
			Command: check.Command,
			Timeout: check.Timeout,
		})
		if err != nil {
			return err
		}

		res.Passed = res.ExitCode == check.ExpectedExit &&
			(check.ExpectedOutput == "" || strings.Contains(res.Stdout, check.ExpectedOutput))
		sess.StepResults = append(sess.StepResults, res)

		if res.Passed {
			passed++
			continue
		}
		report.Passed = false
		if report.FailingStep == nil {
			failing := res
			report.FailingStep = &failing
		}
		slog.Debug("validation check failed",
			"sessionId", sess.ID,
			"check", check.Name,
			"exitCode", res.ExitCode,
			"expectedExit", check.ExpectedExit,
		)
	}

	if len(checks) > 0 {
		report.Score = passed * 100 / len(checks)
	} else {
		report.Score = 100
	}

	sess.Report = report
	sess.Phase = PhaseValidated
	return nil
}

// cleanup restores the pre-challenge state: revert and drop the
// snapshot unless the session keeps it, and power the VM back off if it
// was off before.
func (o *Orchestrator) cleanup(ctx context.Context, sess *Session) error {
	if sess.KeepSnapshot {
		slog.Info("keeping pre-challenge snapshot",
			"vmName", sess.VMName, "snapshot", sess.SnapshotName)
	} else {
		if err := o.snaps.Revert(ctx, sess.VMName, sess.SnapshotName); err != nil {
			return fmt.Errorf("%w: %v", ErrCleanup, err)
		}
		msg, err := o.snaps.Delete(ctx, sess.VMName, sess.SnapshotName)
		if err != nil {
			// The VM is already restored; a stale snapshot is an
			// inconvenience, not a failed run.
			slog.Warn("failed to delete pre-challenge snapshot",
				"vmName", sess.VMName,
				"snapshot", sess.SnapshotName,
				"error", err.Error(),
			)
		} else {
			slog.Info(msg, "vmName", sess.VMName)
		}
	}

	if !sess.VMWasRunning {
		if err := o.vms.Shutdown(ctx, sess.VMName); err != nil {
			slog.Warn("failed to shut VM back down",
				"vmName", sess.VMName, "error", err.Error())
		}
	}

	sess.Phase = PhaseCleanedUp
	return nil
}

// abort marks the session failed and attempts the same restore as
// cleanup. Cleanup failures here are logged, never raised; the original
// cause is what the caller gets back.
func (o *Orchestrator) abort(ctx context.Context, sess *Session, cause error) error {
	slog.Error("aborting challenge session",
		"sessionId", sess.ID,
		"vmName", sess.VMName,
		"phase", string(sess.Phase),
		"error", cause.Error(),
	)

	// The snapshot only exists from SnapshotCreated onward.
	if sess.Phase != PhaseLoaded && !sess.KeepSnapshot {
		if err := o.snaps.Revert(ctx, sess.VMName, sess.SnapshotName); err != nil {
			slog.Warn("abort: failed to revert snapshot",
				"vmName", sess.VMName, "snapshot", sess.SnapshotName, "error", err.Error())
		} else if _, err := o.snaps.Delete(ctx, sess.VMName, sess.SnapshotName); err != nil {
			slog.Warn("abort: failed to delete snapshot",
				"vmName", sess.VMName, "snapshot", sess.SnapshotName, "error", err.Error())
		}
	}

	if sess.Booted && !sess.VMWasRunning {
		if err := o.vms.Shutdown(ctx, sess.VMName); err != nil {
			slog.Warn("abort: failed to shut VM back down",
				"vmName", sess.VMName, "error", err.Error())
		}
	}

	sess.Phase = PhaseAborted
	sess.FailureMessage = cause.Error()
	if err := o.store.Save(sess); err != nil {
		slog.Warn("failed to persist aborted session",
			"sessionId", sess.ID, "error", err.Error())
	}
	return cause
}

// runSteps executes steps in order and aborts on the first command that
// exits non-zero or cannot run.
func (o *Orchestrator) runSteps(ctx context.Context, sess *Session, steps []Step, stage string) error {
	for i, step := range steps {
		res, err := o.runOne(ctx, sess, step)
		if err != nil {
			return fmt.Errorf("%w: %s step %d (%s): %v",
				ErrSetupStepFailed, stage, i+1, stepLabel(step, i), err)
		}

		res.Passed = res.ExitCode == 0
		sess.StepResults = append(sess.StepResults, res)

		if !res.Passed {
			return fmt.Errorf("%w: %s step %d (%s) exited %d: %s",
				ErrSetupStepFailed, stage, i+1, stepLabel(step, i),
				res.ExitCode, strings.TrimSpace(res.Stderr))
		}

		slog.Debug("step completed",
			"sessionId", sess.ID,
			"stage", stage,
			"step", stepLabel(step, i),
			"duration", res.Duration.String(),
		)
	}
	return nil
}

// runOne executes a single step on the guest. The returned error covers
// connection-level failures only; a non-zero exit comes back in the
// result.
func (o *Orchestrator) runOne(ctx context.Context, sess *Session, step Step) (StepResult, error) {
	timeout := step.Timeout.DurationOr(o.cfg.CommandTimeout)

	start := time.Now()
	res, err := o.runner.RunCommand(ctx, o.target(sess), step.Command, timeout, nil)
	elapsed := time.Since(start)
	if err != nil {
		return StepResult{}, err
	}

	return StepResult{
		Name:     step.Name,
		Command:  step.Command,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: elapsed,
	}, nil
}

func (o *Orchestrator) target(sess *Session) sshexec.Target {
	return sshexec.Target{
		Host:    sess.IP,
		User:    o.cfg.SSHUser,
		KeyPath: o.cfg.SSHKeyPath,
		Port:    o.cfg.SSHPort,
	}
}

// result summarizes the session for callers.
func (o *Orchestrator) result(sess *Session) *RunResult {
	def := sess.Definition

	total := len(def.Steps) + len(def.Validation)
	if sess.Simulate && def.UserAction != nil {
		total += len(def.UserAction.SimulateSteps)
	}

	r := &RunResult{
		StepsCompleted:       len(sess.StepResults),
		TotalSteps:           total,
		ExecutionTimeSeconds: time.Since(sess.StartedAt).Seconds(),
		SessionID:            sess.ID,
		Report:               sess.Report,
	}

	switch {
	case sess.Phase == PhaseAwaitingUserAction:
		r.AwaitingUserAction = true
		desc := ""
		if def.UserAction != nil {
			desc = def.UserAction.Description
		}
		r.Message = fmt.Sprintf("%s; resume with session id %s when done", desc, sess.ID)
	case sess.Phase == PhaseAborted:
		r.Message = sess.FailureMessage
	case sess.Report != nil && sess.Report.Passed:
		r.Success = true
		r.Message = fmt.Sprintf("challenge %q passed", def.Name)
		if def.Flag != "" {
			r.Message += ", flag: " + def.Flag
		}
	case sess.Report != nil:
		r.Message = fmt.Sprintf("challenge %q failed (score %d%%)", def.Name, sess.Report.Score)
	default:
		r.Message = "challenge did not reach validation"
	}

	return r
}

func stepLabel(step Step, i int) string {
	if step.Name != "" {
		return step.Name
	}
	return fmt.Sprintf("#%d", i+1)
}

func shortID() string {
	return uuid.NewString()[:8]
}
