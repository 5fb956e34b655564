package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoniassia/memclawz/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	client     clientOptions
	namespace  string
	limit      int
	format     string
	sharedOnly bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed memories",
		Long: `Search indexed memories with hybrid retrieval.

Vector and keyword candidates are fused with a weighted sum. Use
--namespace all to fan out across every namespace; foreign namespaces
only contribute shared memories.

Examples:
  memclawz search "deploy pipeline failure"
  memclawz search "billing question" --namespace all --limit 5
  memclawz search "user preferences" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.client.serverURL, "server", "http://127.0.0.1:4011", "memclawz server URL")
	cmd.Flags().StringVar(&opts.client.apiKey, "api-key", "", "API key (defaults to MEMCLAWZ_API_KEY)")
	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "Namespace to search, or 'all' for fan-out")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.sharedOnly, "shared", false, "Only return shared memories")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	req := map[string]any{
		"query": query,
		"top_k": opts.limit,
	}
	if opts.namespace != "" {
		req["namespace"] = opts.namespace
	}
	if opts.sharedOnly {
		req["shared_only"] = true
	}

	var resp search.Response
	if err := opts.client.call("POST", "/search", req, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.Degraded {
		fmt.Fprintln(out, "warning: embedding service unavailable, keyword results only")
	}
	if resp.Total == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}

	for i, r := range resp.Results {
		fmt.Fprintf(out, "%d. [%.3f] %s/%s\n", i+1, r.Score, r.Namespace, r.ID)
		if r.SourcePath != "" {
			fmt.Fprintf(out, "   %s:%d-%d\n", r.SourcePath, r.StartLine, r.EndLine)
		}
		fmt.Fprintf(out, "   %s\n", snippet(r.Text, 160))
	}
	fmt.Fprintf(out, "\n%d results in %dms\n", resp.Total, resp.TookMS)
	return nil
}

// snippet truncates text to a single display line.
func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
