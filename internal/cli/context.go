package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [text]",
		Short: "Assemble the context block for the current situation",
		Long: "Rank remembered events against the current location, participants and recent\n" +
			"actions, then greedily pack them into a token budget. Selected events count as\n" +
			"accessed.",
		Run: runContext,
	}

	cmd.Flags().StringP("location", "l", "", "Current location")
	cmd.Flags().StringSliceP("participants", "p", nil, "Characters present")
	cmd.Flags().StringSliceP("actions", "a", nil, "Recent actions, oldest first")
	cmd.Flags().IntP("budget", "b", 0, "Max tokens in output (default from config)")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	location, _ := cmd.Flags().GetString("location")
	participants, _ := cmd.Flags().GetStringSlice("participants")
	actions, _ := cmd.Flags().GetStringSlice("actions")
	budget, _ := cmd.Flags().GetInt("budget")

	e, _ := openEngine(cmd.Context())
	defer e.Close()

	result, err := e.Assemble(cmd.Context(), model.QueryContext{
		Location:      location,
		Participants:  participants,
		RecentActions: actions,
		Text:          strings.Join(args, " "),
	}, budget)
	if err != nil {
		exitErr("context", err)
	}

	if textFormat() {
		fmt.Fprintln(cmd.OutOrStdout(), result.Text)
		return
	}
	printJSON(cmd.OutOrStdout(), result)
}
