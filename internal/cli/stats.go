package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show session statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	e, _ := openEngine(cmd.Context())
	defer e.Close()

	stats, err := e.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	out := cmd.OutOrStdout()
	if textFormat() {
		fmt.Fprintf(out, "session:   %s\n", stats.Session)
		fmt.Fprintf(out, "events:    %d (hot %d)\n", stats.Store.Events, stats.Hot)
		for _, t := range model.Tiers {
			if n := stats.Tiers[t]; n > 0 {
				fmt.Fprintf(out, "  %-8s %d\n", t, n)
			}
		}
		fmt.Fprintf(out, "archived:  %d in %d summaries\n", stats.Store.Archived, stats.Store.Summaries)
		fmt.Fprintf(out, "vectors:   %d (%s)\n", stats.Vectors, stats.VectorBackend)
		fmt.Fprintf(out, "embedding: %s\n", stats.Embedding)
		return
	}
	printJSON(out, stats)
}
