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

package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/christiancoding/linux-practice/pkg/challenge"
	"github.com/christiancoding/linux-practice/pkg/hypervisor"
	"github.com/christiancoding/linux-practice/pkg/snapshot"
	"github.com/christiancoding/linux-practice/pkg/sshexec"
)

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Run practice challenges on a VM",
	Long: `Run a challenge from its YAML definition: snapshot the VM, boot it,
wait for SSH, execute the setup steps, perform or wait for the user
action, validate the result and restore the pre-challenge state.

A challenge with a real (non-simulated) user action suspends after
setup; continue it with "challenge resume" once you are done.`,
}

var challengeRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a challenge from a definition file",
	Args:  cobra.ExactArgs(1),
	RunE:  runChallengeRun,
}

var challengeResumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a challenge suspended for a user action",
	Args:  cobra.ExactArgs(1),
	RunE:  runChallengeResume,
}

var challengeSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored challenge sessions",
	RunE:  runChallengeSessions,
}

var challengeValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a definition file without touching any VM",
	Args:  cobra.ExactArgs(1),
	RunE:  runChallengeValidate,
}

var (
	challengeVM           string
	challengeSimulate     bool
	challengeKeepSnapshot bool
)

func init() {
	challengeRunCmd.Flags().StringVar(&challengeVM, "vm", "", "target VM name (required)")
	challengeRunCmd.Flags().BoolVar(&challengeSimulate, "simulate", false, "run the user action scripted instead of suspending")
	challengeRunCmd.Flags().BoolVar(&challengeKeepSnapshot, "keep-snapshot", false, "keep the pre-challenge snapshot after the run")
	_ = challengeRunCmd.MarkFlagRequired("vm")

	challengeCmd.AddCommand(challengeRunCmd)
	challengeCmd.AddCommand(challengeResumeCmd)
	challengeCmd.AddCommand(challengeSessionsCmd)
	challengeCmd.AddCommand(challengeValidateCmd)
}

// newOrchestrator assembles the challenge orchestrator over an open
// hypervisor session and the configured SSH identity.
func newOrchestrator(session *hypervisor.Session) (*challenge.Orchestrator, error) {
	store, err := challenge.NewStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	return challenge.NewOrchestrator(
		challenge.NewHypervisorVMService(session),
		challenge.NewManagerSnapshotService(session, snapshot.NewManager()),
		sshexec.NewExecutor(),
		store,
		challenge.OrchestratorConfig{
			SSHUser:        cfg.SSH.User,
			SSHKeyPath:     cfg.SSH.KeyPath,
			SSHPort:        cfg.SSH.Port,
			ReadyTimeout:   cfg.Timeouts.SSHReadyTimeout(),
			PollInterval:   cfg.Timeouts.SSHPollInterval(),
			CommandTimeout: cfg.Timeouts.CommandTimeout(),
		},
	), nil
}

func runChallengeRun(cmd *cobra.Command, args []string) error {
	def, err := challenge.NewLoader(cfg.ChallengeDir).Load(args[0])
	if err != nil {
		return err
	}

	session, err := openHypervisor()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	orch, err := newOrchestrator(session)
	if err != nil {
		return err
	}

	result, err := orch.Run(cmd.Context(), def, challengeVM, challenge.RunOptions{
		Simulate:     challengeSimulate,
		KeepSnapshot: challengeKeepSnapshot,
	})
	if result != nil {
		fmt.Println(result.Summary())
	}
	return err
}

func runChallengeResume(cmd *cobra.Command, args []string) error {
	session, err := openHypervisor()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	orch, err := newOrchestrator(session)
	if err != nil {
		return err
	}

	result, err := orch.Resume(cmd.Context(), args[0])
	if result != nil {
		fmt.Println(result.Summary())
	}
	return err
}

func runChallengeSessions(cmd *cobra.Command, args []string) error {
	store, err := challenge.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}

	sessions, err := store.List()
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHALLENGE\tVM\tPHASE\tSTARTED")
	for _, s := range sessions {
		challengeID := ""
		if s.Definition != nil {
			challengeID = s.Definition.ID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			challengeID,
			s.VMName,
			s.Phase,
			s.StartedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func runChallengeValidate(cmd *cobra.Command, args []string) error {
	def, err := challenge.NewLoader(cfg.ChallengeDir).Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Challenge %q (%s) is valid: %d setup steps, %d validation checks.\n",
		def.Name, def.ID, len(def.Steps), len(def.Validation))
	return nil
}
