// internal/tui/run_view.go
//
// Rendering for the babysitter TUI. Every screen is composed from lipgloss
// boxes: a header, the active panel, a logbook tail, and a status footer.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MaTriXy/babysitter-sub005/internal/process"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)

	passStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
)

// View renders the current state to a string.
func (a *App) View() string {
	var content string
	switch a.state {
	case stateProcessSelect:
		content = a.processMenu.View()
	case stateRunning:
		content = a.renderRunPanel()
	case stateCheckpoint:
		content = lipgloss.JoinVertical(lipgloss.Left,
			a.renderRunPanel(),
			"",
			a.renderCheckpointPanel(),
		)
	case stateDone:
		content = a.renderResultPanel()
	}

	sections := []string{
		headerStyle.Render("⬡ BABYSITTER"),
		boxStyle.Render(content),
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	if a.statusMsg != "" {
		sections = append(sections, footerStyle.Render(a.statusMsg))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderRunPanel shows the phase checklist for the run in flight.
func (a *App) renderRunPanel() string {
	lines := []string{
		panelTitleStyle.Render(fmt.Sprintf("RUN · %s (%s)", a.processID, a.runID)),
	}
	for _, phase := range a.phaseNames {
		marker := "·"
		switch {
		case a.finished[phase]:
			marker = "✔"
		case a.started[phase]:
			marker = "▶"
		}
		line := fmt.Sprintf(" %s %s", marker, phase)
		if phase == a.currentPhase && !a.finished[phase] {
			lines = append(lines, line)
			continue
		}
		lines = append(lines, dimStyle.Render(line))
	}
	return strings.Join(lines, "\n")
}

// renderCheckpointPanel shows the pending review prompt.
func (a *App) renderCheckpointPanel() string {
	lines := []string{
		panelTitleStyle.Render(fmt.Sprintf("REVIEW · %s", a.prompt.Title)),
		a.prompt.Question,
	}
	for key, value := range a.prompt.Context {
		lines = append(lines, dimStyle.Render(fmt.Sprintf(" %s: %v", key, value)))
	}
	lines = append(lines, "", dimStyle.Render("[y] approve   [n] reject"))
	return strings.Join(lines, "\n")
}

// renderResultPanel shows the terminal outcome of the run.
func (a *App) renderResultPanel() string {
	if a.runErr != nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			failStyle.Render("RUN FAILED"),
			a.runErr.Error(),
			"",
			dimStyle.Render("[esc] back to processes   [q] quit"),
		)
	}
	result := a.result
	if result == nil {
		return "No result"
	}
	verdict := failStyle.Render(fmt.Sprintf("UNSUCCESSFUL · %s", result.Outcome))
	if result.Success {
		verdict = passStyle.Render("SUCCESS")
	}
	lines := []string{
		verdict,
		fmt.Sprintf("Score: %.1f", result.Validation.OverallScore),
		fmt.Sprintf("Checks passed: %d", len(result.Validation.PassedChecks)),
		fmt.Sprintf("Phases: %d · Artifacts: %d", len(result.Implementation), len(result.Artifacts)),
		fmt.Sprintf("Duration: %s", result.Duration),
	}
	if len(result.Artifacts) > 0 {
		lines = append(lines, "", panelTitleStyle.Render("ARTIFACTS"))
		for _, ref := range artifactPreview(result, 6) {
			lines = append(lines, dimStyle.Render(" "+ref))
		}
	}
	lines = append(lines, "", dimStyle.Render("[esc] back to processes   [q] quit"))
	return strings.Join(lines, "\n")
}

func artifactPreview(result *process.Result, limit int) []string {
	refs := make([]string, 0, limit)
	for _, ref := range result.Artifacts {
		if len(refs) == limit {
			refs = append(refs, fmt.Sprintf("... and %d more", len(result.Artifacts)-limit))
			break
		}
		refs = append(refs, fmt.Sprintf("%s (%s)", ref.Locator, ref.Phase))
	}
	return refs
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines := a.logbook.Tail(8)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := panelTitleStyle.Render(fmt.Sprintf("LOG · %s", fileName))
	body := dimStyle.Render(strings.Join(lines, "\n"))
	return boxStyle.Render(fmt.Sprintf("%s\n%s", head, body))
}
