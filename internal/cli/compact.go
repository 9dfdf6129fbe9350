package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Fold aged, low-significance events into archive summaries",
		Run:   runCompact,
	}

	RootCmd.AddCommand(cmd)
}

func runCompact(cmd *cobra.Command, args []string) {
	e, _ := openEngine(cmd.Context())
	defer e.Close()

	result, err := e.Compact(cmd.Context())
	if err != nil {
		exitErr("compact", err)
	}

	if textFormat() {
		fmt.Fprintf(cmd.OutOrStdout(), "examined %d, removed %d, retained %d, summaries %d, hot %d -> %d\n",
			result.Examined, result.Removed, result.Retained, len(result.Summaries), result.HotBefore, result.HotAfter)
		return
	}
	printJSON(cmd.OutOrStdout(), result)
}
