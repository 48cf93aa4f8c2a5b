package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/forecast-recon/api"
)

func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete stored runs older than the retention window",
		Long: `Applies [store] retention and keep_runs from the config once, the same
way the server does periodically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			maxAge, _, err := a.cfg.Store.RetentionPolicy()
			if err != nil {
				return err
			}
			if maxAge == 0 {
				return errors.New("no retention configured (set [store] retention)")
			}

			runs, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			rs := api.NewRetentionScheduler(runs, maxAge, a.cfg.Store.KeepRuns, a.logger)
			removed, err := rs.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d run(s)\n", removed)
			return nil
		},
	}
}
