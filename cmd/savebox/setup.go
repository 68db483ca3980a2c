package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/savebox/savebox/internal/client/config"
	"github.com/savebox/savebox/internal/serversdk"
	"github.com/savebox/savebox/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSetupCmd())
}

func newSetupCmd() *cobra.Command {
	var dataDir string
	var serverURL string
	var serverToken string
	var noServer bool
	var quiet bool

	cmd := &cobra.Command{
		Use:     "setup",
		Aliases: []string{"init"},
		Short:   "Set up the SaveBox data directory and sync server",
		Run: func(cmd *cobra.Command, args []string) {
			// fetched from main/rootCmd/persistentFlags
			configPath := cmd.Flag("config").Value.String()

			if cfg, err := readValidConfig(configPath); err == nil {
				if !quiet {
					fmt.Println(green.Render("**Already set up**"))
					logConfig(cfg)
				}
				os.Exit(0)
			}

			resolvedDataDir, err := utils.ResolvePath(dataDir)
			if err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}

			resolvedConfigPath, err := utils.ResolvePath(configPath)
			if err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}

			switch {
			case noServer:
				serverURL, serverToken = "", ""

			case serverURL != "":
				// non-interactive path
				if err := utils.ValidateURL(serverURL); err != nil {
					fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
					os.Exit(1)
				}
				if err := probeServerAuth(cmd.Context(), serverURL, serverToken); err != nil {
					fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
					os.Exit(1)
				}

			default:
				onServerSubmit := func(urlInput string) error {
					return probeServer(cmd.Context(), urlInput)
				}

				onTokenSubmit := func(urlInput, tokenInput string) error {
					if err := probeServerAuth(cmd.Context(), urlInput, tokenInput); err != nil {
						return err
					}
					serverURL = urlInput
					serverToken = tokenInput

					time.Sleep(500 * time.Millisecond)
					return nil
				}

				if err := RunSetupTUI(SetupTUIOpts{
					DataDir:             resolvedDataDir,
					ConfigPath:          resolvedConfigPath,
					ServerSubmitHandler: onServerSubmit,
					TokenSubmitHandler:  onTokenSubmit,
					ServerValidator:     utils.IsValidURL,
				}); err != nil {
					fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
					os.Exit(1)
				}
			}

			cfg := &config.Config{
				DataDir:     dataDir,
				ServerURL:   serverURL,
				ServerToken: serverToken,
				ClientURL:   config.DefaultClientURL,
				Path:        configPath,
			}

			if err := cfg.Validate(); err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}

			if err := cfg.Save(); err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}

			if !quiet {
				fmt.Println(green.Render("SaveBox initialized"))
				logConfig(cfg)
			}
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&dataDir, "datadir", "d", config.DefaultDataDir, "data directory where savebox keeps local saves state")
	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "sync server URL, skips the interactive setup")
	cmd.Flags().StringVarP(&serverToken, "token", "t", "", "access token for the sync server")
	cmd.Flags().BoolVar(&noServer, "no-server", false, "set up without a sync server")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable output")

	return cmd
}

// probeServer checks something answers at the URL.
func probeServer(ctx context.Context, serverURL string) error {
	sdk, err := serversdk.New(serverURL, "")
	if err != nil {
		return err
	}
	if !sdk.OnlineStatus(ctx) {
		return fmt.Errorf("no server answering at %s", serverURL)
	}
	return nil
}

// probeServerAuth checks the server is up and accepts the token.
func probeServerAuth(ctx context.Context, serverURL string, token string) error {
	sdk, err := serversdk.New(serverURL, token)
	if err != nil {
		return err
	}
	if !sdk.OnlineStatus(ctx) {
		return fmt.Errorf("no server answering at %s", serverURL)
	}
	if _, err := sdk.SaveNames(ctx); err != nil {
		return fmt.Errorf("listing saves failed: %w", err)
	}
	return nil
}

// readValidConfig loads a config file and runs it through validation.
func readValidConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func logConfig(cfg *config.Config) {
	server := cfg.ServerURL
	if server == "" {
		server = "none"
	}
	fmt.Println(lightGray.Render("SAVEBOX CONFIG"))
	fmt.Printf("%s%s\n", gray.Render("Config  "), green.Render(cfg.Path))
	fmt.Printf("%s%s\n", gray.Render("Data    "), green.Render(cfg.DataDir))
	fmt.Printf("%s%s\n", gray.Render("Server  "), green.Render(server))
}
