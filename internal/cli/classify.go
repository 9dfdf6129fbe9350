package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/tier"
)

func init() {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show the tier an event would land in",
		Long: "Classify an age, significance and access count with the configured tier policy.\n" +
			"Ages accept Go durations plus a \"d\" suffix for days, e.g. 36h or 10d.",
		Run: runClassify,
	}

	cmd.Flags().String("age", "0s", "Event age")
	cmd.Flags().Float64("significance", 0.5, "Stored significance in [0,1]")
	cmd.Flags().Int("accesses", 0, "Access count")

	RootCmd.AddCommand(cmd)
}

func runClassify(cmd *cobra.Command, args []string) {
	ageStr, _ := cmd.Flags().GetString("age")
	sig, _ := cmd.Flags().GetFloat64("significance")
	accesses, _ := cmd.Flags().GetInt("accesses")

	age, err := tier.ParseAge(ageStr)
	if err != nil {
		exitErr("age", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	t := cfg.Tiers.Classify(age, sig, accesses)
	eff := cfg.Tiers.EffectiveSignificance(sig, accesses)

	if textFormat() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (effective significance %.2f)\n", t, eff)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"tier":%q,"effective_significance":%.4f}`+"\n", t, eff)
}
