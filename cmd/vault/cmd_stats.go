package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// vaultStats mirrors §6's stats() operation for a single CLI invocation.
// internal/admin.Stats serves a different shape for a long-running
// embedding: block count and bytes plus peer and request counters.
type vaultStats struct {
	Paths         int   `json:"paths"`
	BlocksTotal   int   `json:"blocks_total"`
	BytesStored   int64 `json:"bytes_stored"`
	CacheBytes    int64 `json:"cache_bytes"`
	MaxCacheBytes int64 `json:"max_cache_bytes"`
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report manifest and block-store occupancy (§4.F stats, §6 stats())",
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

			blockStats := rt.store.Stats()
			out := vaultStats{
				Paths:         len(rt.man.Paths()),
				BlocksTotal:   blockStats.BlocksTotal,
				BytesStored:   blockStats.BytesStored,
				CacheBytes:    blockStats.CacheBytes,
				MaxCacheBytes: blockStats.MaxCacheBytes,
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
