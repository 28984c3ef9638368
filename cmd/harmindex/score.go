package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/harm-index/harm"
)

func newScoreCmd(flags *rootFlags) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "score <user>",
		Short: "Print a user's score breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			userID := harm.UserID(args[0])
			var b harm.ScoreBreakdown
			if at == "" {
				b, err = a.tracker.GetCurrentScore(cmd.Context(), userID)
			} else {
				instant, perr := time.Parse(time.RFC3339, at)
				if perr != nil {
					return fmt.Errorf("--at: %w", perr)
				}
				b, err = a.tracker.ScoreAt(cmd.Context(), userID, instant)
			}
			if err != nil {
				return err
			}
			return printBreakdown(out(cmd), b)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 instant (default: end of today)")
	return cmd
}

func printBreakdown(w io.Writer, b harm.ScoreBreakdown) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "user\t%s\n", b.UserID)
	fmt.Fprintf(tw, "as of\t%s\n", b.AsOf.UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "current score\t%s\n", b.CurrentScore.StringFixed(2))
	fmt.Fprintf(tw, "all-time score\t%s\n", b.AllTimeScore.StringFixed(2))
	fmt.Fprintf(tw, "substance harm\t%s\n", b.SubstanceHarm.StringFixed(2))
	fmt.Fprintf(tw, "intervention reduction\t%s\n", b.InterventionReduction.StringFixed(2))
	fmt.Fprintf(tw, "decay reduction\t%s\n", b.DecayReduction.StringFixed(2))
	fmt.Fprintf(tw, "factors\t%d events, %d interventions, %d breaks\n",
		b.Factors.SubstanceEvents, b.Factors.Interventions, b.Factors.Breaks)
	return tw.Flush()
}
