// cmd/babysitter/main.go
//
// This is the entry point for the babysitter TUI.
// When you run `babysitter` from a project directory, this is what executes.
//
// Flow:
// 1. Initialize the .babysitter folder in the current directory
// 2. Discover process definitions under .babysitter/processes
// 3. Launch the TUI

package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MaTriXy/babysitter-sub005/internal/tui"
)

func main() {
	// The current working directory is the project being babysat.
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
		os.Exit(1)
	}

	app, err := tui.NewApp(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting babysitter: %v\n", err)
		os.Exit(1)
	}

	// tea.NewProgram creates a new bubbletea application.
	p := tea.NewProgram(
		app,
		tea.WithAltScreen(), // Use alternate screen buffer (like vim does)
	)

	// Run blocks until the user quits.
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
