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
	"strings"

	"github.com/spf13/cobra"

	"github.com/christiancoding/linux-practice/pkg/sshexec"
)

var sshCmd = &cobra.Command{
	Use:   "ssh",
	Short: "Talk to a practice VM over SSH",
}

var sshPingCmd = &cobra.Command{
	Use:   "ping <vm>",
	Short: "Check whether the guest answers SSH",
	Args:  cobra.ExactArgs(1),
	RunE:  runSSHPing,
}

var sshRunCmd = &cobra.Command{
	Use:   "run <vm> -- <command...>",
	Short: "Run a command on the guest",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSSHRun,
}

var sshCopyCmd = &cobra.Command{
	Use:   "copy <vm> <local-path> <remote-path>",
	Short: "Copy a local file to the guest",
	Args:  cobra.ExactArgs(3),
	RunE:  runSSHCopy,
}

var (
	sshWait   bool
	sshMkdirs bool
)

func init() {
	sshPingCmd.Flags().BoolVar(&sshWait, "wait", false, "keep polling until the guest is ready or the timeout expires")
	sshCopyCmd.Flags().BoolVar(&sshMkdirs, "mkdirs", false, "create missing remote parent directories")

	sshCmd.AddCommand(sshPingCmd)
	sshCmd.AddCommand(sshRunCmd)
	sshCmd.AddCommand(sshCopyCmd)
}

func runSSHPing(cmd *cobra.Command, args []string) error {
	session, err := openHypervisor()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	ip, err := guestIP(session, args[0])
	if err != nil {
		return err
	}

	exec := sshexec.NewExecutor()
	target := sshTarget(ip)

	if sshWait {
		if !exec.WaitUntilReady(cmd.Context(), target, cfg.Timeouts.SSHReadyTimeout(), cfg.Timeouts.SSHPollInterval()) {
			return fmt.Errorf("guest %s (%s) did not become ready within %s",
				args[0], ip, cfg.Timeouts.SSHReadyTimeout())
		}
		fmt.Printf("Guest %s (%s) is ready.\n", args[0], ip)
		return nil
	}

	if !exec.TestConnectivity(cmd.Context(), target, cfg.Timeouts.SSHPollInterval()) {
		return fmt.Errorf("guest %s (%s) is not answering ssh", args[0], ip)
	}
	fmt.Printf("Guest %s (%s) answers ssh.\n", args[0], ip)
	return nil
}

func runSSHRun(cmd *cobra.Command, args []string) error {
	session, err := openHypervisor()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	ip, err := guestIP(session, args[0])
	if err != nil {
		return err
	}

	command := strings.Join(args[1:], " ")
	result, err := sshexec.NewExecutor().RunCommand(
		cmd.Context(), sshTarget(ip), command, cfg.Timeouts.CommandTimeout(), nil)
	if err != nil {
		return err
	}

	if result.Stdout != "" {
		fmt.Print(result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("command exited with %d", result.ExitCode)
	}
	return nil
}

func runSSHCopy(cmd *cobra.Command, args []string) error {
	session, err := openHypervisor()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	ip, err := guestIP(session, args[0])
	if err != nil {
		return err
	}

	if err := sshexec.NewExecutor().CopyFile(cmd.Context(), sshTarget(ip), args[1], args[2], sshMkdirs); err != nil {
		return err
	}

	fmt.Printf("Copied %s to %s:%s.\n", args[1], args[0], args[2])
	return nil
}
