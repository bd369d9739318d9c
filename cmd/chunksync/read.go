package main

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/openmined/chunksync/internal/remote"
	"github.com/openmined/chunksync/internal/utils"
	"github.com/spf13/cobra"
)

func newReadCmd() *cobra.Command {
	var (
		out      string
		infoOnly bool
	)

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Reassemble a resource from the chunk store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			store, closer, err := cfg.OpenChunkStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closer.Close()

			path := utils.NormPath(args[0])
			if infoOnly {
				info, err := store.ResourceInfo(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s, %d chunk(s), redirect %d\n",
					cyan.Render(path), info.ContentType, info.TotalChunks, info.RedirectCode)
				return nil
			}

			res, err := remote.ReadResource(cmd.Context(), store, path)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(res.Content)
				return err
			}
			if err := utils.EnsureParent(out); err != nil {
				return err
			}
			if err := atomic.WriteFile(out, bytes.NewReader(res.Content)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s -> %s (%s, %d chunks)\n",
				green.Render("read"), path, out, humanize.Bytes(uint64(len(res.Content))), res.TotalChunks)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&infoOnly, "info", false, "only show the resource metadata")
	return cmd
}
