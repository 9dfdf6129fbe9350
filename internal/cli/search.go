package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/assemble"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by meaning or keyword",
		Long:  "Search by vector similarity when an embedding provider is configured, falling back to keyword overlap.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 0, "Max results (default: vector_index.k)")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	e, _ := openEngine(cmd.Context())
	defer e.Close()

	results, err := e.Search(cmd.Context(), query, limit)
	if err != nil {
		exitErr("search", err)
	}

	out := cmd.OutOrStdout()
	if textFormat() {
		now := time.Now()
		for _, r := range results {
			fmt.Fprintf(out, "%.3f %-7s %s\n", r.Score, r.Source, assemble.Line(r.Event, now))
		}
		return
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "[]")
		return
	}
	printJSON(out, results)
}
