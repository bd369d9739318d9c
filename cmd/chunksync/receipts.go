package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/chunksync/internal/journal"
	"github.com/openmined/chunksync/internal/manifest"
	"github.com/openmined/chunksync/internal/utils"
	"github.com/spf13/cobra"
)

func newReceiptsCmd() *cobra.Command {
	var (
		runID        string
		limit        int
		fromManifest bool
	)

	cmd := &cobra.Command{
		Use:   "receipts [path]",
		Short: "List write receipts from the journal or the manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var path string
			if len(args) == 1 {
				path = utils.NormPath(args[0])
			}

			if fromManifest {
				m, err := manifest.Load(cfg.ManifestPath)
				if err != nil {
					return err
				}
				printManifestReceipts(cmd.OutOrStdout(), m, path)
				return nil
			}

			j, err := journal.Open(cmd.Context(), cfg.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			var entries []*journal.Entry
			switch {
			case path != "":
				entries, err = j.ForPath(cmd.Context(), path)
			case runID != "":
				entries, err = j.ForRun(cmd.Context(), runID)
			default:
				entries, err = j.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			printJournal(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "only receipts of this sync run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "how many recent receipts to show")
	cmd.Flags().BoolVarP(&fromManifest, "manifest", "m", false, "show the receipts kept in the manifest")
	return cmd
}

func printJournal(w io.Writer, entries []*journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, gray.Render("no receipts"))
		return
	}
	now := time.Now()
	for _, e := range entries {
		fmt.Fprintf(w, "%-14s %s #%d %-9s %s %s\n",
			gray.Render(humanize.RelTime(e.Time(), now, "ago", "from now")),
			cyan.Render(e.Path),
			e.ChunkIndex,
			e.Action,
			e.ReceiptID,
			gray.Render(e.RunID),
		)
	}
}

func printManifestReceipts(w io.Writer, m *manifest.Manifest, path string) {
	if path != "" {
		receipts := m.ReceiptsFor(path)
		if len(receipts) == 0 {
			fmt.Fprintln(w, gray.Render("no receipts"))
		}
		for _, id := range receipts {
			fmt.Fprintf(w, "%s %s\n", cyan.Render(path), id)
		}
		return
	}

	receipts := m.Receipts()
	for _, id := range slices.Sorted(maps.Keys(receipts)) {
		fmt.Fprintf(w, "%s %s\n", cyan.Render(receipts[id]), id)
	}
	externals := m.Externals()
	for _, p := range slices.Sorted(maps.Keys(externals)) {
		fmt.Fprintf(w, "%s %s %s\n", cyan.Render(p), yellow.Render("blob"), externals[p])
	}
}
