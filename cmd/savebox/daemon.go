package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/savebox/savebox/internal/client"
	"github.com/savebox/savebox/internal/client/config"
	"github.com/savebox/savebox/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}

func newDaemonCmd() *cobra.Command {
	var addr string
	var authToken string

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start the SaveBox client daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			slog.Info("savebox", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			configPath := resolveConfigPath(cmd)
			slog.Info("daemon using config", "path", configPath)

			cfg, err := config.LoadFromFile(configPath)
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no config at %s, run 'savebox setup' first", configPath)
			} else if err != nil {
				return err
			}

			// flags beat the config file for the control plane only
			if cmd.Flag("http-addr").Changed {
				cfg.ClientURL = "http://" + addr
			}
			if authToken != "" {
				cfg.ClientToken = authToken
			}

			daemon, err := client.NewDaemon(cfg, client.WithStateRecovery(confirmStateReset))
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("daemon start", "error", err)
				return err
			}
			return nil
		},
	}

	daemonCmd.Flags().StringVarP(&addr, "http-addr", "a", "localhost:8483", "Address to bind the local http server")
	daemonCmd.Flags().StringVarP(&authToken, "http-token", "t", "", "Access token for the local http server")

	return daemonCmd
}
