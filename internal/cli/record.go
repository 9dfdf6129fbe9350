package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/recorder"
)

func init() {
	cmd := &cobra.Command{
		Use:   "record [type] [payload-json]",
		Short: "Record a memory event",
		Long: "Record a memory event. The payload is a JSON object for the event type, given as\n" +
			"the second argument or piped via stdin. Types: combat, dialogue, travel, quest,\n" +
			"character-development, item-change, location-discovery, generic. Unknown types\n" +
			"are stored as generic.",
		Args: cobra.RangeArgs(1, 2),
		Run:  runRecord,
	}

	cmd.Flags().String("significance", "", "Significance hint in [0,1], overrides the heuristics")

	RootCmd.AddCommand(cmd)
}

func runRecord(cmd *cobra.Command, args []string) {
	sig, _ := cmd.Flags().GetString("significance")
	hint, err := recorder.ParseHint(sig)
	if err != nil {
		exitErr("significance", err)
	}

	payload, err := readInput(cmd, args[1:])
	if err != nil {
		exitErr("read stdin", err)
	}

	e, _ := openEngine(cmd.Context())
	defer e.Close()

	id, err := e.RecordRaw(cmd.Context(), args[0], []byte(strings.TrimSpace(payload)), hint)
	if err != nil {
		exitErr("record", err)
	}

	if textFormat() {
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q,"session":%q}`+"\n", id, e.Session())
}
