package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/openmined/chunksync/internal/manifest"
	"github.com/openmined/chunksync/internal/ordinals"
	"github.com/spf13/cobra"
)

func newOrdinalsCmd() *cobra.Command {
	var (
		out        string
		entrypoint string
		noChunks   bool
	)

	cmd := &cobra.Command{
		Use:   "ordinals",
		Short: "Write the ordinals index of the build folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.OrdinalsPath
			}

			lock, err := manifest.AcquireLock(cfg.ManifestPath)
			if err != nil {
				return err
			}
			defer lock.Release()

			m, err := manifest.Load(cfg.ManifestPath)
			if err != nil {
				return err
			}

			r, err := cfg.Router()
			if err != nil {
				return err
			}
			blobs, err := cfg.OpenBlobStore(cmd.Context())
			if err != nil {
				return err
			}
			matcher, err := cfg.IgnoreMatcher()
			if err != nil {
				return err
			}

			builder := &ordinals.Builder{
				Router:     r,
				Blobs:      blobs,
				Ignore:     matcher,
				Manifest:   m,
				Entrypoint: entrypoint,
			}
			if !noChunks {
				if builder.Chunker, err = cfg.Chunker(); err != nil {
					return err
				}
			}

			doc, err := builder.Build(cmd.Context(), cfg.BuildFolder)
			if err != nil {
				return err
			}
			if err := doc.Save(out); err != nil {
				return err
			}
			if err := m.Save(cfg.ManifestPath); err != nil {
				return err
			}

			var inline, external int
			var size uint64
			for _, f := range doc.Files {
				if f.LinkType == ordinals.LinkIPFS {
					external++
					continue
				}
				inline++
				for _, c := range f.Chunks {
					if c.Data != nil {
						size += uint64(len(*c.Data))
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d inline (%s), %d external\n",
				green.Render("wrote"), out, inline, humanize.Bytes(size), external)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: ordinals_path)")
	cmd.Flags().StringVar(&entrypoint, "entrypoint", "", "entrypoint file")
	cmd.Flags().BoolVar(&noChunks, "no-chunks", false, "keep every inline file in a single chunk")
	return cmd
}
