package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "summaries",
		Short: "List archive summaries",
		Run:   runSummaries,
	}

	RootCmd.AddCommand(cmd)
}

func runSummaries(cmd *cobra.Command, args []string) {
	e, _ := openEngine(cmd.Context())
	defer e.Close()

	sums, err := e.Summaries(cmd.Context())
	if err != nil {
		exitErr("summaries", err)
	}

	out := cmd.OutOrStdout()
	if textFormat() {
		for _, s := range sums {
			fmt.Fprintf(out, "%s %-22s x%-4d %s..%s sig %.2f",
				s.CompactedAt.Format("2006-01-02"), s.EventType, s.Count,
				s.FirstAt.Format("2006-01-02"), s.LastAt.Format("2006-01-02"), s.MeanSignificance)
			if len(s.Participants) > 0 {
				fmt.Fprintf(out, " with %s", strings.Join(s.Participants, ", "))
			}
			if len(s.Locations) > 0 {
				fmt.Fprintf(out, " at %s", strings.Join(s.Locations, ", "))
			}
			fmt.Fprintln(out)
		}
		return
	}
	if len(sums) == 0 {
		fmt.Fprintln(out, "[]")
		return
	}
	printJSON(out, sums)
}
