package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/chunksync/internal/config"
	"github.com/openmined/chunksync/internal/utils"
	"github.com/openmined/chunksync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:     "chunksync",
	Short:   "Sync a build folder into a size-limited chunk store",
	Version: version.Detailed(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logLevel.Set(slog.LevelDebug)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./chunksync.yaml)")
	rootCmd.PersistentFlags().StringP("build-folder", "b", "", "local build folder")
	rootCmd.PersistentFlags().StringP("remote", "r", "", "chunk gateway url")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		newSyncCmd(),
		newPlanCmd(),
		newReadCmd(),
		newOrdinalsCmd(),
		newReceiptsCmd(),
		newGatewayCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
}

func main() {
	logFile := os.Getenv(config.EnvPrefix + "_LOG_FILE")
	if logFile == "" {
		logFile = config.DefaultLogFile
	}

	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	handlers := []slog.Handler{stdoutHandler}
	if file, err := openLogFile(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "log file disabled: %v\n", err)
	} else {
		logInterceptor := utils.NewLogInterceptor(file)
		defer func() {
			logInterceptor.Close()
			file.Close()
		}()
		handlers = append(handlers, slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			// the interceptor stamps its own time
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					return slog.Attr{}
				}
				return a
			},
		}))
	}
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// loadConfig layers flags over the environment, the config file and the
// defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	config.SetDefaults(v)
	config.BindEnv(v)

	path, _ := cmd.Flags().GetString("config")
	if err := config.ReadConfigFile(v, path); err != nil {
		return nil, err
	}

	bindFlag(v, "build_folder", cmd, "build-folder")
	bindFlag(v, "remote.url", cmd, "remote")
	bindFlag(v, "workers", cmd, "workers")
	bindFlag(v, "stale_tail", cmd, "stale-tail")
	bindFlag(v, "manifest_path", cmd, "manifest-path")
	bindFlag(v, "gateway.addr", cmd, "addr")
	bindFlag(v, "gateway.db_path", cmd, "db")
	bindFlag(v, "gateway.token", cmd, "token")
	bindFlag(v, "gateway.jwt_secret", cmd, "jwt-secret")

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	cmd.SilenceUsage = true
	return cfg, nil
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	if f := cmd.Flags().Lookup(name); f != nil {
		_ = v.BindPFlag(key, f)
	}
}
