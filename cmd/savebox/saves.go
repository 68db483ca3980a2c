package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/savebox/savebox/internal/client"
	"github.com/savebox/savebox/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newListCmd())
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [NAME] [LOCATION]",
		Short: "Register a save file or directory",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runAdd(cmd, args[0], args[1]); err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove [NAME]",
		Aliases: []string{"rm"},
		Short:   "Forget a registered save, keeping its files",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runRemove(cmd, args[0]); err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered saves",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runList(cmd); err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}
		},
	}
}

func runAdd(cmd *cobra.Command, name string, location string) error {
	daemon, err := openDirect(cmd)
	if err != nil {
		return err
	}
	defer daemon.Close()

	save, err := daemon.AddSave(name, location)
	if err != nil {
		return err
	}

	size, _ := utils.SizeOf(save.Location)
	fmt.Printf("Added '%s' at '%s' (%s)\n",
		cyan.Bold(true).Render(save.Name),
		green.Bold(true).Render(save.Location),
		utils.FormatSize(size))
	return nil
}

func runRemove(cmd *cobra.Command, name string) error {
	daemon, err := openDirect(cmd)
	if err != nil {
		return err
	}
	defer daemon.Close()

	if err := daemon.RemoveSave(name); err != nil {
		return err
	}

	fmt.Printf("Removed '%s'\n", green.Bold(true).Render(name))
	return nil
}

func runList(cmd *cobra.Command) error {
	daemon, err := openReadOnly(cmd)
	if err != nil {
		return err
	}

	saves := daemon.Saves()
	if len(saves) == 0 {
		fmt.Printf("No saves registered at '%s'\n", cyan.Render(daemon.DataDir()))
		return nil
	}

	var sb strings.Builder
	for idx, save := range saves {
		if idx > 0 {
			sb.WriteString("\n")
		}
		size, _ := utils.SizeOf(save.Location)
		sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Name    "), green.Render(save.Name)))
		sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Path    "), cyan.Render(save.Location)))
		sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Size    "), lightGray.Render(utils.FormatSize(size))))
	}
	fmt.Print(sb.String())
	return nil
}

// openDirect builds the daemon composition for a one-shot command and
// locks the workspace. Callers must Close it.
func openDirect(cmd *cobra.Command) (*client.Daemon, error) {
	daemon, err := openReadOnly(cmd)
	if err != nil {
		return nil, err
	}

	if err := daemon.Open(); err != nil {
		return nil, err
	}
	return daemon, nil
}

// openReadOnly builds the composition without taking the workspace lock,
// for commands that only read the registry.
func openReadOnly(cmd *cobra.Command) (*client.Daemon, error) {
	configPath := resolveConfigPath(cmd)

	cfg, err := readValidConfig(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no config at %s, run 'savebox setup' first", configPath)
	} else if err != nil {
		return nil, err
	}

	// one-shot commands never watch the filesystem
	cfg.WatchEnabled = false

	return client.NewDaemon(cfg, client.WithStateRecovery(confirmStateReset))
}
