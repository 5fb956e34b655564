package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoniassia/memclawz/internal/index"
	"github.com/yoniassia/memclawz/internal/syncer"
)

// statusResponse mirrors the /stats payload.
type statusResponse struct {
	Namespaces []index.Stats  `json:"namespaces"`
	Sync       *syncer.Status `json:"sync,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var client clientOptions
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and sync status of a running service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp statusResponse
			if err := client.call("GET", "/stats", nil, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			if len(resp.Namespaces) == 0 {
				fmt.Fprintln(out, "No namespaces indexed yet.")
			}
			for _, ns := range resp.Namespaces {
				fmt.Fprintf(out, "%-20s %6d docs  %d dims\n",
					ns.Namespace, ns.DocCount, ns.Dimensions)
			}
			if resp.Sync != nil {
				fmt.Fprintf(out, "\nsync: %s (cursor %d, %d synced",
					resp.Sync.Phase, resp.Sync.LastSyncID, resp.Sync.TotalSynced)
				if !resp.Sync.LastSyncAt.IsZero() {
					fmt.Fprintf(out, ", last %s", resp.Sync.LastSyncAt.Format("15:04:05"))
				}
				fmt.Fprintln(out, ")")
				if resp.Sync.LastError != "" {
					fmt.Fprintf(out, "last error: %s\n", resp.Sync.LastError)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&client.serverURL, "server", "http://127.0.0.1:4011", "memclawz server URL")
	cmd.Flags().StringVar(&client.apiKey, "api-key", "", "API key (defaults to MEMCLAWZ_API_KEY)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
