// Command vault is the embedded-application reference CLI for the storage
// core (§6 "Embedded-application surface"): init-identity, write, read, ls,
// rm, pin, gc, stats, each a thin cobra command over the same
// identity/blockstore/placement/manifest/fileengine wiring an embedding
// application would construct directly. Grounded on
// app/spike/internal/cmd's one-command-per-file layout and
// app/spike/cmd/main.go's Initialize/Execute split.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamware/msscs/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "vault",
	Short: "A decentralized, quantum-resistant, content-addressed file store",
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "./data", "directory holding this identity's identity.bin, manifest.json, descriptors.json, and block snapshot")
	rootCmd.PersistentFlags().String("passphrase", "", "identity passphrase (falls back to VAULT_PASSPHRASE, then an interactive prompt)")
	rootCmd.PersistentFlags().Bool("verbose", false, "print chunk-boundary progress to stderr")
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(newInitIdentityCommand())
	rootCmd.AddCommand(newWriteCommand())
	rootCmd.AddCommand(newReadCommand())
	rootCmd.AddCommand(newLsCommand())
	rootCmd.AddCommand(newRmCommand())
	rootCmd.AddCommand(newPinCommand())
	rootCmd.AddCommand(newGCCommand())
	rootCmd.AddCommand(newStatsCommand())
}

// Execute runs the root command and returns the §6 exit code for whatever
// error (if any) the command produced.
func Execute() int {
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return engine.ExitCode(err)
}

func main() {
	os.Exit(Execute())
}
