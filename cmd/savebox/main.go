package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/savebox/savebox/internal/client"
	"github.com/savebox/savebox/internal/client/config"
	"github.com/savebox/savebox/internal/utils"
	"github.com/savebox/savebox/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	defaultDataDir = filepath.Join(home, "SaveBox")
)

var rootCmd = &cobra.Command{
	Use:     "savebox",
	Short:   "SaveBox CLI",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// all good now, show header
		cmd.SilenceUsage = true
		showSaveBoxHeader()

		daemon, err := client.NewDaemon(cfg, client.WithStateRecovery(confirmStateReset))
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return daemon.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("datadir", "d", defaultDataDir, "SaveBox data directory")
	rootCmd.Flags().StringP("server", "s", "", "SaveBox sync server URL")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "SaveBox config file")
}

func main() {
	// a local .env can supply SAVEBOX_* vars during development
	_ = godotenv.Load()

	// TODO handle log rotation
	// TODO unique log file for each instance to handle multiple daemons
	logFile := config.DefaultLogFilePath

	logDir := filepath.Dir(logFile)
	// Create log directory
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	// Create new log file for this instance
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	// Setup handlers for both outputs
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{} // Remove the time attribute
			}
			return a
		},
	})

	// Create multi-handler
	multiLogHandler := utils.NewMultiLogHandler(stdoutHandler, fileHandler)
	logger := slog.New(multiLogHandler)
	slog.SetDefault(logger)

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	viper.SetConfigFile(resolveConfigPath(cmd))

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return nil, fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))

	// Set up environment variables
	viper.SetEnvPrefix("SAVEBOX")
	viper.AutomaticEnv()

	return &config.Config{
		Path:                viper.ConfigFileUsed(),
		DataDir:             viper.GetString("data_dir"),
		ServerURL:           viper.GetString("server_url"),
		ServerToken:         viper.GetString("server_token"),
		ClientURL:           viper.GetString("client_url"),
		ClientToken:         viper.GetString("client_token"),
		RefreshIntervalSecs: viper.GetInt("refresh_interval_secs"),
		PackExcludes:        viper.GetStringSlice("pack_excludes"),
		WatchEnabled:        true,
	}, nil
}

func showSaveBoxHeader() {
	color.New(color.FgHiCyan, color.Bold).
		Print(utils.SaveBoxArt + "\n")
	color.New(color.FgHiBlack).
		Println(version.ShortWithApp())
}
