package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newReadCommand() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Read a file back out of the vault (§4.H Read)",
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
			data, readErr := rt.engine.Read(cmd.Context(), args[0], progressReporter(cmd))
			rt.audit.LogRead(args[0], rt.unlocked.UserID().String(), "", readErr == nil, readErr, time.Since(start), nil)
			if readErr != nil {
				return readErr
			}

			if outputPath == "" || outputPath == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(outputPath, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write to this local path instead of stdout")
	return cmd
}
