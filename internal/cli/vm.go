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
)

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Inspect and control practice VMs",
}

var vmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all practice VMs",
	Long:  `List every defined VM with its run state and, when running, its IP.`,
	RunE:  runVMList,
}

var vmStartCmd = &cobra.Command{
	Use:   "start <vm>",
	Short: "Start a VM",
	Args:  cobra.ExactArgs(1),
	RunE:  runVMStart,
}

var vmStopCmd = &cobra.Command{
	Use:   "stop <vm>",
	Short: "Gracefully shut down a VM",
	Args:  cobra.ExactArgs(1),
	RunE:  runVMStop,
}

var vmIPCmd = &cobra.Command{
	Use:   "ip <vm>",
	Short: "Print the VM's IP address",
	Args:  cobra.ExactArgs(1),
	RunE:  runVMIP,
}

func init() {
	vmCmd.AddCommand(vmListCmd)
	vmCmd.AddCommand(vmStartCmd)
	vmCmd.AddCommand(vmStopCmd)
	vmCmd.AddCommand(vmIPCmd)
}

func runVMList(cmd *cobra.Command, args []string) error {
	session, err := openHypervisor()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	vms, err := session.ListVMs(cmd.Context())
	if err != nil {
		return err
	}

	if len(vms) == 0 {
		fmt.Println("No VMs defined.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tIP")
	for _, vm := range vms {
		fmt.Fprintf(w, "%s\t%s\t%s\n", vm.Name, vm.Status, vm.IP)
	}
	return w.Flush()
}

func runVMStart(cmd *cobra.Command, args []string) error {
	session, err := openHypervisor()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	vm, err := session.FindVM(args[0])
	if err != nil {
		return err
	}
	defer vm.Free()

	started, err := session.EnsureRunning(vm)
	if err != nil {
		return err
	}
	if !started {
		fmt.Printf("VM %q is already running.\n", vm.Name())
		return nil
	}

	fmt.Printf("VM %q started.\n", vm.Name())
	return nil
}

func runVMStop(cmd *cobra.Command, args []string) error {
	session, err := openHypervisor()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	vm, err := session.FindVM(args[0])
	if err != nil {
		return err
	}
	defer vm.Free()

	if err := session.Shutdown(vm); err != nil {
		return err
	}

	fmt.Printf("Shutdown requested for VM %q.\n", vm.Name())
	return nil
}

func runVMIP(cmd *cobra.Command, args []string) error {
	session, err := openHypervisor()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	ip, err := guestIP(session, args[0])
	if err != nil {
		return err
	}

	fmt.Println(ip)
	return nil
}
