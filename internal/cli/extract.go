package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/extract"
)

func init() {
	cmd := &cobra.Command{
		Use:   "extract [narrative]",
		Short: "Propose events from free narrative text",
		Long: "Scan narrative text (argument or stdin) for travel, dialogue, combat, quest,\n" +
			"item and discovery patterns and print candidate events with a confidence.\n" +
			"With --record, candidates at or above --min-confidence are recorded.",
		Run: runExtract,
	}

	cmd.Flags().StringSlice("characters", nil, "Known character names")
	cmd.Flags().StringSlice("locations", nil, "Known location names")
	cmd.Flags().Float64("min-confidence", 0, "Drop candidates below this confidence")
	cmd.Flags().Bool("record", false, "Record the surviving candidates in the session")

	RootCmd.AddCommand(cmd)
}

type extractOutput struct {
	Candidates []extract.Candidate `json:"candidates"`
	Recorded   []string            `json:"recorded,omitempty"`
}

func runExtract(cmd *cobra.Command, args []string) {
	characters, _ := cmd.Flags().GetStringSlice("characters")
	locations, _ := cmd.Flags().GetStringSlice("locations")
	minConf, _ := cmd.Flags().GetFloat64("min-confidence")
	record, _ := cmd.Flags().GetBool("record")

	text, err := readInput(cmd, args)
	if err != nil {
		exitErr("read stdin", err)
	}

	all := extract.Propose(text, extract.Known{Characters: characters, Locations: locations})
	out := extractOutput{Candidates: []extract.Candidate{}}
	for _, c := range all {
		if c.Confidence >= minConf {
			out.Candidates = append(out.Candidates, c)
		}
	}

	if record && len(out.Candidates) > 0 {
		e, _ := openEngine(cmd.Context())
		defer e.Close()
		for _, c := range out.Candidates {
			id, err := e.Record(cmd.Context(), c.Payload, nil)
			if err != nil {
				exitErr("record", err)
			}
			out.Recorded = append(out.Recorded, id)
		}
	}

	w := cmd.OutOrStdout()
	if textFormat() {
		for i, c := range out.Candidates {
			fmt.Fprintf(w, "%.2f %-22s line %-4d %s", c.Confidence, c.Type, c.Line, c.Evidence)
			if i < len(out.Recorded) {
				fmt.Fprintf(w, " -> %s", out.Recorded[i])
			}
			fmt.Fprintln(w)
		}
		return
	}
	printJSON(w, out)
}
