package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a session as JSON",
		Long:  "Export every live event and archive summary of the session as one JSON document.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	e, _ := openEngine(cmd.Context())
	defer e.Close()

	dump, err := e.Export(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	printJSON(cmd.OutOrStdout(), dump)
}
