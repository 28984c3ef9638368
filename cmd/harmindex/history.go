package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/harm-index/harm"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var from, to string
	var days int
	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "Print one score per day over a date range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			end := a.tracker.Today()
			if to != "" {
				if end, err = harm.ParseDate(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}
			start := end.AddDays(-days)
			if from != "" {
				if start, err = harm.ParseDate(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}

			tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tSCORE\tALL-TIME")
			for pt, err := range a.tracker.History(cmd.Context(), harm.UserID(args[0]), start, end) {
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", pt.Date, pt.Score.StringFixed(2), pt.Breakdown.AllTimeScore.StringFixed(2))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD (default: --days before --to)")
	cmd.Flags().StringVar(&to, "to", "", "last day YYYY-MM-DD (default: today)")
	cmd.Flags().IntVar(&days, "days", 30, "range length when --from is not set")
	return cmd
}
