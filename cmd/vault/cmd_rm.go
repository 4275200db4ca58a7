package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a path from the manifest and unpin its blocks (§4.H Delete)",
		Args:  cobra.ExactArgs(1),
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

			start := time.Now()
			delErr := rt.engine.Delete(cmd.Context(), args[0])
			rt.audit.LogDelete(args[0], rt.unlocked.UserID().String(), delErr == nil, delErr, time.Since(start))
			if delErr != nil {
				return delErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
