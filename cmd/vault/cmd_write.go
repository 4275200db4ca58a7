package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/msscs/internal/fileengine"
)

func newWriteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <path> <local-file>",
		Short: "Write a local file into the vault under path (§4.H Write)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			passphrase, err := readPassphrase(cmd)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("vault: read %s: %w", args[1], err)
			}

			rt, err := openRuntime(dataDir, passphrase)
			if err != nil {
				return err
			}
			defer rt.close()

			start := time.Now()
			writeErr := rt.engine.Write(cmd.Context(), args[0], data, progressReporter(cmd))
			rt.audit.LogWrite(args[0], rt.unlocked.UserID().String(), "", writeErr == nil, writeErr, time.Since(start), nil)
			if writeErr != nil {
				return writeErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", args[0], len(data))
			return nil
		},
	}
	return cmd
}

// progressReporter returns a fileengine.ProgressFunc that prints
// chunk-boundary progress to stderr when --verbose is set, or nil
// otherwise (fileengine treats a nil callback as "don't report").
func progressReporter(cmd *cobra.Command) fileengine.ProgressFunc {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return nil
	}
	return func(processed, total int64) {
		fmt.Fprintf(cmd.ErrOrStderr(), "\r%d/%d bytes", processed, total)
	}
}
