package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dreamware/msscs/internal/blockstore"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

func newPinCommand() *cobra.Command {
	var unpin bool

	cmd := &cobra.Command{
		Use:   "pin <cid>",
		Short: "Pin (or, with --unpin, release) a raw content id as User-kind (§4.F pin/unpin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			passphrase, err := readPassphrase(cmd)
			if err != nil {
				return err
			}

			cid, err := ids.Parse(args[0])
			if err != nil {
				return fmt.Errorf("vault: %w: %w", engine.ErrInvalidArgs, err)
			}

			rt, err := openRuntime(dataDir, passphrase)
			if err != nil {
				return err
			}
			defer rt.close()

			owner := rt.unlocked.UserID().String()
			if unpin {
				if err := rt.store.Unpin(cid, blockstore.PinUser, owner); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unpinned %s\n", cid)
				return nil
			}

			if _, err := rt.place.Fetch(cmd.Context(), cid); err != nil {
				return err
			}
			if err := rt.store.Pin(cid, blockstore.PinUser, owner, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pinned %s\n", cid)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unpin, "unpin", false, "release this identity's User pin instead of adding one")
	return cmd
}
