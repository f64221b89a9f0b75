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

	"github.com/christiancoding/linux-practice/pkg/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage external VM disk snapshots",
	Long: `Create, list, revert to and delete external disk snapshots.

Snapshots are disk-only and external: each disk gets a qcow2 overlay
next to its backing file. When the guest agent is available, filesystems
are frozen around creation for a clean on-disk state.`,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <vm> <name>",
	Short: "Create an external snapshot",
	Args:  cobra.ExactArgs(2),
	RunE:  runSnapshotCreate,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list <vm>",
	Short: "List a VM's snapshots",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotList,
}

var snapshotRevertCmd = &cobra.Command{
	Use:   "revert <vm> <name>",
	Short: "Revert a VM to a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE:  runSnapshotRevert,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <vm> <name>",
	Short: "Delete a snapshot's metadata",
	Long: `Delete a snapshot's libvirt metadata. The external overlay files are
left on disk and must be cleaned up manually.`,
	Args: cobra.ExactArgs(2),
	RunE: runSnapshotDelete,
}

var (
	snapshotDescription string
	snapshotNoFreeze    bool
)

func init() {
	snapshotCreateCmd.Flags().StringVarP(&snapshotDescription, "description", "d", "", "description stored with the snapshot")
	snapshotCreateCmd.Flags().BoolVar(&snapshotNoFreeze, "no-freeze", false, "skip the guest filesystem freeze")

	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotRevertCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
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

	mgr := snapshot.NewManager()
	if err := mgr.CreateExternal(cmd.Context(), vm, args[1], snapshotDescription, !snapshotNoFreeze); err != nil {
		return err
	}

	fmt.Printf("Snapshot %q created for VM %q.\n", args[1], args[0])
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
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

	infos, err := snapshot.NewManager().List(cmd.Context(), vm)
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		fmt.Printf("No snapshots for VM %q.\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCREATED\tGUEST STATE\tTYPE\tDESCRIPTION")
	for _, info := range infos {
		kind := "internal"
		if info.External {
			kind = "external"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			info.Name,
			info.CreatedAt.Format("2006-01-02 15:04:05"),
			info.GuestState,
			kind,
			info.Description,
		)
	}
	return w.Flush()
}

func runSnapshotRevert(cmd *cobra.Command, args []string) error {
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

	if err := snapshot.NewManager().Revert(cmd.Context(), vm, args[1]); err != nil {
		return err
	}

	fmt.Printf("VM %q reverted to snapshot %q.\n", args[0], args[1])
	return nil
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
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

	msg, err := snapshot.NewManager().Delete(cmd.Context(), vm, args[1])
	if err != nil {
		return err
	}

	fmt.Println(msg)
	return nil
}
