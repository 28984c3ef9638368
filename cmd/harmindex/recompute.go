package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/warp/harm-index/harm"
)

func newRecomputeCmd(flags *rootFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "recompute [user]",
		Short: "Refresh today's snapshot for one user or every user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give exactly one of <user> or --all")
			}
			a, err := flags.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !all {
				snap, err := a.tracker.RecomputeAndStore(cmd.Context(), harm.UserID(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "%s %s %s\n", snap.UserID, snap.Date, snap.Score.StringFixed(2))
				return nil
			}

			res, err := a.tracker.RecomputeAll(cmd.Context(), a.cfg.Scheduler.Concurrency)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "recomputed %d of %d users\n", res.Succeeded, res.Users)
			if len(res.Failed) == 0 {
				return nil
			}
			failed := make([]string, 0, len(res.Failed))
			for id := range res.Failed {
				failed = append(failed, string(id))
			}
			sort.Strings(failed)
			for _, id := range failed {
				fmt.Fprintf(out(cmd), "  failed %s: %v\n", id, res.Failed[harm.UserID(id)])
			}
			return fmt.Errorf("%d users not recomputed", len(res.Failed))
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "recompute every known user")
	return cmd
}
