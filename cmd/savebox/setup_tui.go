package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/savebox/savebox/internal/utils"
)

// View states
type viewState int

const (
	serverView viewState = iota
	tokenView
)

// Strings
const (
	txtServerPlaceholder = "https://saves.example.com"
	txtTokenPlaceholder  = "••••••••"
	txtServerPrompt      = "Enter your sync server URL"
	txtCheckingServer    = "Checking server..."
	txtVerifyingToken    = "Verifying token..."
	txtTokenPrompt       = "Enter the access token for %s"
	txtTokenInfo         = "Leave empty if the server does not require one."
	txtInvalidServer     = "Invalid server URL"
	txtHelp              = "Press 'Enter' to submit. 'Esc' to go back/quit. 'Ctrl+C' to quit."
)

// Styles
var (
	focusedStyle     = green
	helpStyle        = gray
	errorTextStyle   = red
	errorHeaderStyle = red.Bold(true)
	spinnerStyle     = cyan
	placeholderStyle = gray
	titleStyle       = cyan.Bold(true)
)

type SetupTUIOpts struct {
	ServerURL           string
	DataDir             string
	ConfigPath          string
	Note                string // optional note to display to the user
	ServerSubmitHandler func(serverURL string) error
	TokenSubmitHandler  func(serverURL, token string) error
	ServerValidator     func(serverURL string) bool
}

// setupModel holds the application's state
type setupModel struct {
	opts *SetupTUIOpts

	serverInput textinput.Model
	tokenInput  textinput.Model
	spinner     spinner.Model

	currentView  viewState
	previousView viewState

	isLoading    bool
	errorMessage string // For all types of errors
	message      string // For loading messages
	width        int

	submittedServer string // To store the URL for the token callback
}

// --- Messages ---
type serverProcessedMsg struct{ err error }
type tokenProcessedMsg struct{ err error }

// newSetupModel creates the initial state of the application
func newSetupModel(opts *SetupTUIOpts) setupModel {
	server := textinput.New()
	server.Placeholder = txtServerPlaceholder
	server.SetValue(opts.ServerURL)
	server.Focus()
	server.CharLimit = 128
	server.Width = 64
	server.PromptStyle = focusedStyle
	server.TextStyle = focusedStyle
	server.PlaceholderStyle = placeholderStyle

	token := textinput.New()
	token.Placeholder = txtTokenPlaceholder
	token.EchoMode = textinput.EchoPassword
	token.EchoCharacter = '•'
	token.CharLimit = 128
	token.Width = 64
	token.PromptStyle = focusedStyle
	token.TextStyle = focusedStyle
	token.PlaceholderStyle = placeholderStyle

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return setupModel{
		opts:         opts,
		currentView:  serverView,
		previousView: serverView,
		serverInput:  server,
		tokenInput:   token,
		spinner:      s,
		isLoading:    false,
	}
}

// Init is the first command that is run when the program starts
func (m setupModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles messages and updates the model accordingly
func (m setupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle input focus and key processing
		if m.serverInput.Focused() {
			// Clear error when user starts typing in the URL field
			m.errorMessage = ""
			m.serverInput, cmd = m.serverInput.Update(msg)
			cmds = append(cmds, cmd)
		} else if m.tokenInput.Focused() {
			// Clear error when user starts typing in the token field
			m.errorMessage = ""
			m.tokenInput, cmd = m.tokenInput.Update(msg)
			cmds = append(cmds, cmd)
		}

		// Handle special keys
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEsc:
			// Handle Escape key (go back)
			return m.handleEscapeKey()

		case tea.KeyEnter:
			if m.isLoading {
				return m, nil // Don't process Enter if already loading
			}

			switch m.currentView {
			case serverView:
				return m.submitServer()

			case tokenView:
				return m.submitToken()
			}
		}

	case spinner.TickMsg:
		// Always update the spinner
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case serverProcessedMsg:
		return m.handleServerMsg(msg)

	case tokenProcessedMsg:
		return m.handleTokenMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
	}

	return m, tea.Batch(cmds...)
}

// handleEscapeKey processes the Escape key to navigate back
func (m setupModel) handleEscapeKey() (tea.Model, tea.Cmd) {
	// If we're in token view, go back to the URL view
	if m.currentView == tokenView {
		m.currentView = serverView
		m.tokenInput.Blur()
		m.serverInput.Focus()
		m.errorMessage = ""
		return m, textinput.Blink
	}

	// If we're already in the URL view, quit
	return m, tea.Quit
}

// submitServer validates and submits the server URL
func (m setupModel) submitServer() (tea.Model, tea.Cmd) {
	m.previousView = serverView
	m.errorMessage = "" // Clear any previous error

	serverVal := strings.TrimSpace(m.serverInput.Value())
	if !m.opts.ServerValidator(serverVal) {
		m.errorMessage = txtInvalidServer
		return m, nil
	}

	// URL format is valid, proceed with submission
	m.errorMessage = ""
	m.isLoading = true
	m.message = txtCheckingServer
	m.submittedServer = serverVal

	// Blur the input while loading
	m.serverInput.Blur()

	return m, func() tea.Msg {
		err := m.opts.ServerSubmitHandler(m.submittedServer)
		return serverProcessedMsg{err: err}
	}
}

// submitToken submits the access token
func (m setupModel) submitToken() (tea.Model, tea.Cmd) {
	m.previousView = tokenView
	m.errorMessage = ""
	m.isLoading = true
	m.message = txtVerifyingToken

	tokenVal := strings.TrimSpace(m.tokenInput.Value())

	// Blur the input while loading
	m.tokenInput.Blur()

	return m, func() tea.Msg {
		err := m.opts.TokenSubmitHandler(m.submittedServer, tokenVal)
		return tokenProcessedMsg{err: err}
	}
}

// handleServerMsg processes the response from the URL submission
func (m setupModel) handleServerMsg(msg serverProcessedMsg) (tea.Model, tea.Cmd) {
	m.isLoading = false

	if msg.err != nil {
		// Store the probe error and refocus the URL input
		m.errorMessage = fmt.Sprintf("%s %s", errorHeaderStyle.Render("ERROR:"), msg.err.Error())
		m.serverInput.Focus()
		return m, textinput.Blink
	}

	// The server answered, move on to the token
	m.currentView = tokenView
	m.message = ""
	m.errorMessage = "" // Clear any error messages

	// Focus the token input
	m.tokenInput.Focus()

	return m, textinput.Blink
}

// handleTokenMsg processes the response from the token submission
func (m setupModel) handleTokenMsg(msg tokenProcessedMsg) (tea.Model, tea.Cmd) {
	m.isLoading = false

	if msg.err != nil {
		// Store the API error and refocus the token input
		m.errorMessage = fmt.Sprintf("%s %s", errorHeaderStyle.Render("ERROR:"), msg.err.Error())
		m.tokenInput.Focus()
		return m, textinput.Blink
	}

	// Token accepted. Quit the TUI.
	return m, tea.Quit
}

// View renders the UI based on the current model state.
func (m setupModel) View() string {
	var b strings.Builder
	// Render header
	b.WriteString(titleStyle.Render(utils.SaveBoxArt))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Data    "), green.Render(m.opts.DataDir)))
	b.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Config  "), green.Render(m.opts.ConfigPath)))
	if m.opts.Note != "" {
		b.WriteString(fmt.Sprintf("\n%s\n", yellow.Render(m.opts.Note)))
	}
	b.WriteString("\n")

	// Render content based on current view
	switch m.currentView {
	case serverView:
		m.renderServerView(&b)
	case tokenView:
		m.renderTokenView(&b)
	}
	// Render loading, error, and help views
	m.renderLoadingView(&b)
	m.renderErrorView(&b)
	m.renderHelpView(&b)
	b.WriteString("\n")
	return b.String()
}

// renderServerView renders the URL input view
func (m setupModel) renderServerView(b *strings.Builder) {
	b.WriteString(txtServerPrompt)
	b.WriteString("\n\n")
	b.WriteString(m.serverInput.View())
}

// renderTokenView renders the token input view
func (m setupModel) renderTokenView(b *strings.Builder) {
	b.WriteString(fmt.Sprintf(txtTokenPrompt, green.Render(m.submittedServer)))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(txtTokenInfo))
	b.WriteString("\n\n")
	b.WriteString(m.tokenInput.View())
}

// renderLoadingView renders the loading view
func (m setupModel) renderLoadingView(b *strings.Builder) {
	if m.isLoading {
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), m.message))
	}
}

// renderErrorView renders the error view
func (m setupModel) renderErrorView(b *strings.Builder) {
	if m.errorMessage != "" {
		b.WriteString("\n\n")
		b.WriteString(errorTextStyle.Render(m.errorMessage))
	}
}

// renderHelpView renders the help view
func (m setupModel) renderHelpView(b *strings.Builder) {
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(txtHelp))
}

// RunSetupTUI is the main entry point to start the Bubble Tea setup interface.
func RunSetupTUI(opts SetupTUIOpts) error {
	setupM := newSetupModel(&opts)
	model, err := tea.NewProgram(setupM, tea.WithAltScreen()).Run()
	if err != nil {
		log.Printf("Error running TUI: %v", err)
		return fmt.Errorf("TUI encountered an error during execution: %w", err)
	}

	// Check the final model state for errors or interruptions
	if fm, ok := model.(setupModel); ok {
		// Check for errors
		if fm.errorMessage != "" {
			return fmt.Errorf("setup interrupted: %s", fm.errorMessage)
		}

		// If we're still at the URL view when we exit, the user probably quit
		if fm.currentView == serverView {
			return fmt.Errorf("setup cancelled by user")
		}
	}

	// If we reach here, the setup finished or the user quit cleanly
	return nil
}
