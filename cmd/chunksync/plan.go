package main

import (
	"github.com/openmined/chunksync/internal/config"
	"github.com/openmined/chunksync/internal/syncer"
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	var include []string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the writes the next sync would make",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := dryRunOptions(cfg, include)
			if err != nil {
				return err
			}

			env, err := openSyncEnv(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := env.driver.Run(cmd.Context())
			if result != nil {
				printPlans(cmd.OutOrStdout(), result)
			}
			return finishPass(cmd.OutOrStdout(), result, err)
		},
	}

	cmd.Flags().StringSliceVarP(&include, "include", "i", nil, "only plan paths matching these globs")
	return cmd
}

// dryRunOptions are the sync options of a pass that writes nothing.
func dryRunOptions(cfg *config.Config, include []string) (syncer.Options, error) {
	opts, err := cfg.SyncOptions()
	if err != nil {
		return opts, err
	}
	opts.Include = include
	opts.DryRun = true
	return opts, nil
}
