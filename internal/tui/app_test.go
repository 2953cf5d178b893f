package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MaTriXy/babysitter-sub005/internal/checkpoint"
	"github.com/MaTriXy/babysitter-sub005/internal/config"
	"github.com/MaTriXy/babysitter-sub005/internal/process"
	"github.com/MaTriXy/babysitter-sub005/plugins"
)

const testProcessYAML = `
id: demo
name: Demo Delivery
description: Two phase demo
phases:
  - name: build
    task:
      title: Build it
      instructions:
        - Build the thing
      output:
        required: [done]
        properties:
          done: {type: boolean}
gate:
  task:
    title: Validate it
    instructions:
      - Score the thing
    output:
      required: [overallScore, passedChecks]
      properties:
        overallScore: {type: number, minimum: 0, maximum: 100}
        passedChecks: {type: array, items: {type: string}}
`

func newTestApp(t *testing.T, launcher Launcher) *App {
	t.Helper()
	projectDir := t.TempDir()
	if err := config.InitStateDir(projectDir); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.ProcessesDir(), "demo.yaml"), []byte(testProcessYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	catalog, err := plugins.Discover(cfg.ProcessesDir())
	if err != nil {
		t.Fatal(err)
	}
	app, err := NewApp(projectDir, WithCatalog(catalog), WithLauncher(launcher))
	if err != nil {
		t.Fatalf("NewApp returned error: %v", err)
	}
	return app
}

// pump executes the pending command and feeds the resulting message back,
// the way the bubbletea runtime would.
func pump(t *testing.T, app *App, cmd tea.Cmd) (*App, tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return app, nil
	}
	msg := cmd()
	if msg == nil {
		return app, nil
	}
	model, next := app.Update(msg)
	updated, ok := model.(*App)
	if !ok {
		t.Fatalf("Update returned unexpected model type %T", model)
	}
	return updated, next
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
}

func TestNewAppBuildsProcessMenu(t *testing.T) {
	app := newTestApp(t, func(context.Context, *config.Config, process.Definition, string, chan<- tea.Msg) {})
	items := app.processMenu.Items()
	if len(items) != 1 {
		t.Fatalf("expected one process item, got %d", len(items))
	}
	item, ok := items[0].(processItem)
	if !ok || item.id != "demo" {
		t.Fatalf("unexpected item %+v", items[0])
	}
	if !strings.Contains(item.desc, "Two phase demo") {
		t.Fatalf("description not surfaced: %s", item.desc)
	}
}

func TestRunLifecycleRendersProgressAndResult(t *testing.T) {
	launcher := func(ctx context.Context, _ *config.Config, def process.Definition, runID string, events chan<- tea.Msg) {
		events <- phaseStartedMsg{Phase: "build"}
		events <- phaseCompletedMsg{Phase: "build", Artifacts: 2}
		events <- runFinishedMsg{Result: process.Result{
			Success:    true,
			Outcome:    process.OutcomePassed,
			Validation: process.ValidationResult{OverallScore: 91},
			Duration:   3 * time.Minute,
		}}
	}
	app := newTestApp(t, launcher)

	model, cmd := app.Update(keyMsg("enter"))
	app = model.(*App)
	if app.state != stateRunning {
		t.Fatalf("expected running state, got %d", app.state)
	}
	if app.runID == "" || app.processID != "demo" {
		t.Fatalf("run identity missing: %q %q", app.runID, app.processID)
	}

	for i := 0; i < 8 && cmd != nil && app.state != stateDone; i++ {
		app, cmd = pump(t, app, cmd)
	}
	if app.state != stateDone {
		t.Fatalf("run never finished, state %d", app.state)
	}
	if app.result == nil || !app.result.Success {
		t.Fatalf("result not captured: %+v", app.result)
	}
	view := app.View()
	if !strings.Contains(view, "SUCCESS") {
		t.Fatalf("result view missing verdict:\n%s", view)
	}
	if !strings.Contains(view, "91.0") {
		t.Fatalf("result view missing score:\n%s", view)
	}
}

func TestCheckpointKeysResolveTheReview(t *testing.T) {
	resolved := make(chan checkpoint.Resolution, 1)
	launcher := func(ctx context.Context, _ *config.Config, def process.Definition, runID string, events chan<- tea.Msg) {
		reply := make(chan checkpoint.Resolution, 1)
		events <- checkpointPromptMsg{
			Prompt: checkpoint.Prompt{Title: "Release Review", Question: "Ship it?"},
			Reply:  reply,
		}
		resolved <- <-reply
		events <- runFinishedMsg{Result: process.Result{Success: false, Outcome: process.OutcomeCheckpointRejected}}
	}
	app := newTestApp(t, launcher)

	model, cmd := app.Update(keyMsg("enter"))
	app = model.(*App)
	for i := 0; i < 4 && cmd != nil && app.state != stateCheckpoint; i++ {
		app, cmd = pump(t, app, cmd)
	}
	if app.state != stateCheckpoint {
		t.Fatalf("checkpoint prompt never arrived, state %d", app.state)
	}
	view := app.View()
	if !strings.Contains(view, "Ship it?") {
		t.Fatalf("prompt not rendered:\n%s", view)
	}

	model, cmd = app.Update(keyMsg("n"))
	app = model.(*App)
	select {
	case resolution := <-resolved:
		if resolution != checkpoint.Reject {
			t.Fatalf("expected reject, got %s", resolution)
		}
	case <-time.After(time.Second):
		t.Fatalf("reply never delivered")
	}
	for i := 0; i < 4 && cmd != nil && app.state != stateDone; i++ {
		app, cmd = pump(t, app, cmd)
	}
	if app.state != stateDone {
		t.Fatalf("run never finished after rejection, state %d", app.state)
	}
}

func TestRunErrorIsSurfaced(t *testing.T) {
	launcher := func(ctx context.Context, _ *config.Config, def process.Definition, runID string, events chan<- tea.Msg) {
		events <- runFinishedMsg{Err: errors.New("executor unavailable")}
	}
	app := newTestApp(t, launcher)

	model, cmd := app.Update(keyMsg("enter"))
	app = model.(*App)
	for i := 0; i < 4 && cmd != nil && app.state != stateDone; i++ {
		app, cmd = pump(t, app, cmd)
	}
	if app.runErr == nil {
		t.Fatalf("run error lost")
	}
	view := app.View()
	if !strings.Contains(view, "RUN FAILED") {
		t.Fatalf("error view missing:\n%s", view)
	}

	model, _ = app.Update(keyMsg("esc"))
	app = model.(*App)
	if app.state != stateProcessSelect {
		t.Fatalf("esc should return to the process menu, state %d", app.state)
	}
}
