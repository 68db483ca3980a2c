package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/savebox/savebox/internal/sync"
	"github.com/savebox/savebox/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newPushCmd())
	rootCmd.AddCommand(newPullCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [NAME]",
		Short: "Resolve the sync status of registered saves",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runStatus(cmd, args); err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}
		},
	}
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [NAME]",
		Short: "Upload a save to the sync server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runPush(cmd, args[0]); err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}
		},
	}
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [NAME]",
		Short: "Download a save from the sync server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runPull(cmd, args[0]); err != nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), err)
				os.Exit(1)
			}
		},
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	daemon, err := openDirect(cmd)
	if err != nil {
		return err
	}
	defer daemon.Close()

	if len(args) == 1 {
		rec, err := daemon.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printRecords([]sync.StatusRecord{rec})
		return nil
	}

	records, err := daemon.Refresh(cmd.Context(), true)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No saves registered at '%s'\n", cyan.Render(daemon.DataDir()))
		return nil
	}

	printRecords(records)
	return nil
}

func runPush(cmd *cobra.Command, name string) error {
	daemon, err := openDirect(cmd)
	if err != nil {
		return err
	}
	defer daemon.Close()

	err = daemon.Push(cmd.Context(), name)
	if errors.Is(err, sync.ErrAlreadyInSync) {
		fmt.Printf("'%s' is already in sync\n", green.Bold(true).Render(name))
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Pushed '%s'\n", green.Bold(true).Render(name))
	return nil
}

func runPull(cmd *cobra.Command, name string) error {
	daemon, err := openDirect(cmd)
	if err != nil {
		return err
	}
	defer daemon.Close()

	if err := daemon.Pull(cmd.Context(), name); err != nil {
		return err
	}

	fmt.Printf("Pulled '%s'\n", green.Bold(true).Render(name))
	return nil
}

func printRecords(records []sync.StatusRecord) {
	var sb strings.Builder
	for idx, rec := range records {
		if idx > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Name    "), green.Render(rec.Name)))
		sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Status  "), statusStyle(rec.Status).Render(rec.Status.Label())))
		if rec.Location != "" {
			sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Path    "), cyan.Render(rec.Location)))
		}
		if rec.Size > 0 {
			sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Size    "), lightGray.Render(utils.FormatSize(rec.Size))))
		}
	}
	fmt.Print(sb.String())
}

func statusStyle(status sync.Status) lipgloss.Style {
	switch status {
	case sync.StatusSynced:
		return green
	case sync.StatusNotSynced, sync.StatusNotUploaded:
		return yellow
	case sync.StatusOffline, sync.StatusNoLocalSave:
		return red
	case sync.StatusOnServer:
		return cyan
	default:
		return gray
	}
}
