package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	// https://github.com/fidian/ansi
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
)

// confirmStateReset asks whether to discard a corrupt engine state blob.
// Only an explicit yes on an interactive stdin consents; any other answer,
// or a non-interactive session, keeps the blob and aborts.
func confirmStateReset(loadErr error) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false
	}

	fmt.Printf("%s: %s\n", red.Render("ERROR"), loadErr)
	fmt.Print("Reset the local engine state and start fresh? Registered saves will be forgotten. [y/N]: ")

	var answer string
	_, _ = fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
