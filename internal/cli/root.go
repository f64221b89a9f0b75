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

// Package cli provides the practicectl command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/christiancoding/linux-practice/internal/config"
	"github.com/christiancoding/linux-practice/internal/util/logging"
	"github.com/christiancoding/linux-practice/pkg/hypervisor"
	"github.com/christiancoding/linux-practice/pkg/sshexec"
)

var (
	flagVerbose bool
	flagURI     string

	// cfg is populated by the root PersistentPreRunE before any
	// subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "practicectl",
	Short: "Manage practice VMs, snapshots and challenges",
	Long: `practicectl drives Linux practice VMs through libvirt: it takes
disk snapshots before an exercise, boots the VM, waits for SSH, runs
challenge setup and validation commands on the guest, and restores the
pre-exercise state afterwards.

VM definitions themselves are provisioned out of band; practicectl only
operates on existing domains.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			logging.SetupDevelopment()
		} else {
			logging.SetupDefault()
		}

		c, err := config.Load()
		if err != nil {
			return err
		}
		if flagURI != "" {
			c.LibvirtURI = flagURI
		}
		cfg = c
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagURI, "uri", "", "libvirt connection URI (overrides config)")

	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(challengeCmd)
	rootCmd.AddCommand(sshCmd)
}

// openHypervisor connects to the configured libvirt endpoint. The caller
// owns the returned session and must Close it.
func openHypervisor() (*hypervisor.Session, error) {
	return hypervisor.Connect(cfg.LibvirtURI)
}

// sshTarget builds an SSH target for a discovered guest address from the
// configured identity.
func sshTarget(host string) sshexec.Target {
	return sshexec.Target{
		Host:    host,
		User:    cfg.SSH.User,
		KeyPath: cfg.SSH.KeyPath,
		Port:    cfg.SSH.Port,
	}
}

// guestIP resolves a VM name to its current IPv4 address.
func guestIP(session *hypervisor.Session, vmName string) (string, error) {
	vm, err := session.FindVM(vmName)
	if err != nil {
		return "", err
	}
	defer vm.Free()

	return session.GetIP(vm)
}
