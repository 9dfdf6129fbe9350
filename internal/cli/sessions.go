package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List or remove sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions in the data directory",
		Run:   runSessionsList,
	}

	rmCmd := &cobra.Command{
		Use:   "rm [session]",
		Short: "Delete a session and all its memory",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionsRm,
	}

	cmd.AddCommand(listCmd, rmCmd)
	RootCmd.AddCommand(cmd)
}

func runSessionsList(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	names, err := engine.ListSessions(cfg.DataDir)
	if err != nil {
		exitErr("list sessions", err)
	}

	out := cmd.OutOrStdout()
	if textFormat() {
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
		return
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "[]")
		return
	}
	printJSON(out, names)
}

func runSessionsRm(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	if err := engine.Teardown(cfg.DataDir, args[0]); err != nil {
		exitErr("remove session", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"removed":%q}`+"\n", args[0])
}
