package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmined/chunksync/internal/syncer"
	"github.com/spf13/cobra"
)

// errPassFailed makes the process exit non-zero after the summary was
// printed.
type errPassFailed struct {
	failed int
}

func (e *errPassFailed) Error() string {
	return fmt.Sprintf("%d path(s) failed", e.failed)
}

func newSyncCmd() *cobra.Command {
	var (
		file    string
		key     string
		include []string
		watch   bool
		tui     bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the build folder into the chunk store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if file != "" && watch {
				return fmt.Errorf("--file and --watch cannot be combined")
			}

			opts, err := cfg.SyncOptions()
			if err != nil {
				return err
			}
			opts.Include = include
			opts.DryRun = dryRun

			env, err := openSyncEnv(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			out := cmd.OutOrStdout()
			switch {
			case watch && tui:
				return runWatchTUI(cmd.Context(), env.driver, cfg)
			case watch:
				return env.driver.Watch(cmd.Context(), func(result *syncer.Result, err error) {
					reportPass(out, result, err)
				})
			case file != "":
				result, err := env.driver.SyncFile(cmd.Context(), file, key)
				return finishPass(out, result, err)
			default:
				result, err := env.driver.Run(cmd.Context())
				return finishPass(out, result, err)
			}
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "sync a single file of the build folder")
	cmd.Flags().StringVarP(&key, "key", "k", "", "remote key for --file (default: its relative path)")
	cmd.Flags().StringSliceVarP(&include, "include", "i", nil, "only sync paths matching these globs")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep syncing as the build folder changes")
	cmd.Flags().BoolVar(&tui, "tui", false, "show a live status view in watch mode")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "compute plans without writing")
	cmd.Flags().IntP("workers", "j", 0, "files synced concurrently")
	cmd.Flags().String("stale-tail", "", "shrunk files: leave, truncate or error")
	cmd.Flags().String("manifest-path", "", "manifest path")
	return cmd
}

func finishPass(w io.Writer, result *syncer.Result, err error) error {
	if result != nil {
		printResult(w, result)
	}
	if err != nil {
		return err
	}
	if !result.OK() {
		return &errPassFailed{failed: len(result.FailedPaths)}
	}
	return nil
}

func reportPass(w io.Writer, result *syncer.Result, err error) {
	if result != nil {
		printResult(w, result)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("sync pass", "error", err)
	}
}
