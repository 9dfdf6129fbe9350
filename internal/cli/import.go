package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import events from JSON",
		Long:  "Import events from JSON (stdin or --file). Expects the format produced by export. Existing IDs are skipped.",
		Run:   runImport,
	}

	cmd.Flags().String("file", "", "Read from file instead of stdin")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")

	var in io.Reader = cmd.InOrStdin()
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			exitErr("open file", err)
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		exitErr("read input", err)
	}

	var dump store.Dump
	if err := json.Unmarshal(data, &dump); err != nil {
		exitErr("parse json", err)
	}

	e, _ := openEngine(cmd.Context())
	defer e.Close()

	imported, err := e.Import(cmd.Context(), &dump)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"imported":%d}`+"\n", imported)
}
