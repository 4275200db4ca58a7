package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List every path recorded in this identity's manifest",
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

			paths := rt.man.Paths()
			sort.Strings(paths)
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
