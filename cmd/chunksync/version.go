package main

import (
	"fmt"

	"github.com/openmined/chunksync/internal/remote"
	"github.com/openmined/chunksync/internal/version"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var system bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print chunksync version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, version.Detailed()); err != nil {
				return err
			}
			if !system {
				return nil
			}

			info, err := host.InfoWithContext(cmd.Context())
			if err != nil {
				return fmt.Errorf("host info: %w", err)
			}
			fmt.Fprintf(out, "os:       %s %s (%s)\n", info.Platform, info.PlatformVersion, info.OS)
			fmt.Fprintf(out, "kernel:   %s %s\n", info.KernelVersion, info.KernelArch)
			fmt.Fprintf(out, "hostname: %s\n", info.Hostname)
			fmt.Fprintf(out, "client:   %s\n", remote.ClientID())
			return nil
		},
	}

	cmd.Flags().BoolVar(&system, "system", false, "also print host details")
	return cmd
}
