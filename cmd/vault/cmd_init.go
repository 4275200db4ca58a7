package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamware/msscs/internal/identity"
)

func newInitIdentityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-identity",
		Short: "Create a new sealed identity (§4.A) and write it to the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			passphrase, err := readPassphrase(cmd)
			if err != nil {
				return err
			}

			path := identityPath(dataDir)
			if _, statErr := os.Stat(path); statErr == nil {
				return fmt.Errorf("vault: identity already exists at %s", path)
			}

			rec, unlocked, err := identity.Create(passphrase)
			if err != nil {
				return err
			}
			raw, err := rec.MarshalBinary()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0o600); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "identity created: %s\n", unlocked.UserID())
			return nil
		},
	}
	return cmd
}
