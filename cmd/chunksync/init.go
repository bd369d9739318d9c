package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openmined/chunksync/internal/blob"
	"github.com/openmined/chunksync/internal/config"
	"github.com/openmined/chunksync/internal/ignore"
	"github.com/openmined/chunksync/internal/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// starterConfig is the subset of the configuration worth editing by hand.
type starterConfig struct {
	BuildFolder  string `yaml:"build_folder"`
	ManifestPath string `yaml:"manifest_path"`
	Workers      int    `yaml:"workers"`
	StaleTail    string `yaml:"stale_tail"`
	Routing      struct {
		Mode             string   `yaml:"mode"`
		InlineExtensions []string `yaml:"inline_extensions"`
		SizeThreshold    int64    `yaml:"size_threshold"`
	} `yaml:"routing"`
	Blob struct {
		Backend     string `yaml:"backend"`
		URLTemplate string `yaml:"url_template"`
	} `yaml:"blob"`
	Remote struct {
		Backend string `yaml:"backend"`
		URL     string `yaml:"url,omitempty"`
		DBPath  string `yaml:"db_path,omitempty"`
	} `yaml:"remote"`
}

const starterIgnore = `# paths never synced, gitignore syntax
*.map
.DS_Store
`

func newInitCmd() *cobra.Command {
	var (
		dir    string
		remote string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter chunksync.yaml and ignore file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Defaults()
			if err != nil {
				return err
			}

			path := filepath.Join(dir, config.ConfigName+".yaml")
			if utils.FileExists(path) && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			var sc starterConfig
			sc.BuildFolder = cfg.BuildFolder
			sc.ManifestPath = cfg.ManifestPath
			sc.Workers = cfg.Workers
			sc.StaleTail = cfg.StaleTail
			sc.Routing.Mode = cfg.Routing.Mode
			sc.Routing.InlineExtensions = cfg.Routing.InlineExtensions
			sc.Routing.SizeThreshold = cfg.Routing.SizeThreshold
			sc.Blob.Backend = blob.BackendPinata
			sc.Blob.URLTemplate = cfg.Blob.URLTemplate
			if remote == "" {
				sc.Remote.Backend = config.RemoteSQLite
				sc.Remote.DBPath = cfg.Remote.DBPath
			} else {
				sc.Remote.Backend = config.RemoteHTTP
				sc.Remote.URL = remote
			}

			data, err := yaml.Marshal(&sc)
			if err != nil {
				return err
			}
			if err := utils.EnsureDir(dir); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green.Render("created"), path)

			ignorePath := filepath.Join(dir, ignore.DefaultIgnoreFile)
			if !utils.FileExists(ignorePath) {
				if err := os.WriteFile(ignorePath, []byte(starterIgnore), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green.Render("created"), ignorePath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "project directory")
	cmd.Flags().StringVar(&remote, "gateway-url", "", "use this chunk gateway instead of a local sqlite store")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
