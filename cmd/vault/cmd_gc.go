package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove every block with no live pin (§4.F gc)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			passphrase, err := readPassphrase(cmd)
			if err != nil {
				return err
			}

			rt, err := openRuntime(dataDir, passphrase)
			if err != nil {
				return err
			}
			defer rt.close()

			removed := rt.store.GC()
			for _, cid := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), cid)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "removed %d blocks\n", len(removed))
			return nil
		},
	}
}
