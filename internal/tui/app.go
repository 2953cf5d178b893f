// internal/tui/app.go
//
// This is the main TUI (Terminal User Interface) for babysitter.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/MaTriXy/babysitter-sub005/internal/checkpoint"
	"github.com/MaTriXy/babysitter-sub005/internal/config"
	"github.com/MaTriXy/babysitter-sub005/internal/dispatch"
	"github.com/MaTriXy/babysitter-sub005/internal/effects"
	"github.com/MaTriXy/babysitter-sub005/internal/executor"
	"github.com/MaTriXy/babysitter-sub005/internal/logbook"
	"github.com/MaTriXy/babysitter-sub005/internal/process"
	"github.com/MaTriXy/babysitter-sub005/internal/task"
	"github.com/MaTriXy/babysitter-sub005/plugins"
)

// appState represents which "screen" we're on
type appState int

const (
	stateProcessSelect appState = iota // Process picker before launching a run
	stateRunning                       // A run is in flight
	stateCheckpoint                    // Blocked on a human review
	stateDone                          // Terminal result or error displayed
)

const eventBuffer = 16

// Launcher executes one run for the selected definition, reporting progress
// on the events channel. The default launcher wires the real dispatcher; tests
// inject scripted ones.
type Launcher func(ctx context.Context, cfg *config.Config, def process.Definition, runID string, events chan<- tea.Msg)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLauncher overrides how runs are started.
func WithLauncher(launcher Launcher) AppOption {
	return func(a *App) {
		if launcher != nil {
			a.launcher = launcher
		}
	}
}

// WithCatalog injects a pre-built process catalog.
func WithCatalog(catalog *plugins.Catalog) AppOption {
	return func(a *App) {
		if catalog != nil {
			a.catalog = catalog
		}
	}
}

// Messages emitted by the run goroutine.

type phaseStartedMsg struct {
	Phase string
}

type phaseCompletedMsg struct {
	Phase     string
	Artifacts int
}

type checkpointPromptMsg struct {
	Prompt checkpoint.Prompt
	Reply  chan checkpoint.Resolution
}

type runFinishedMsg struct {
	Result process.Result
	Err    error
}

// processItem implements list.Item for the process picker.
type processItem struct {
	id    string
	title string
	desc  string
}

func (i processItem) Title() string       { return i.title }
func (i processItem) Description() string { return i.desc }
func (i processItem) FilterValue() string { return i.id }

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state    appState
	config   *config.Config
	catalog  *plugins.Catalog
	logbook  *logbook.Logbook
	launcher Launcher

	processMenu list.Model
	statusMsg   string

	// Window size (we get this from bubbletea)
	width  int
	height int

	// Run progress
	runID        string
	processID    string
	phaseNames   []string
	started      map[string]bool
	finished     map[string]bool
	currentPhase string
	events       chan tea.Msg
	cancelRun    context.CancelFunc

	// Checkpoint in flight
	prompt checkpoint.Prompt
	reply  chan checkpoint.Resolution

	// Terminal outcome
	result *process.Result
	runErr error
}

// NewApp creates a new App instance rooted at the given project directory.
func NewApp(projectDir string, opts ...AppOption) (*App, error) {
	if err := config.InitStateDir(projectDir); err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), "babysitter.log"))
	if err != nil {
		lb = nil
	}

	menu := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	menu.Title = "Select Process"
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)

	app := &App{
		state:       stateProcessSelect,
		config:      cfg,
		logbook:     lb,
		launcher:    defaultLauncher,
		processMenu: menu,
		started:     map[string]bool{},
		finished:    map[string]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.catalog == nil {
		catalog, err := plugins.Discover(cfg.ProcessesDir())
		if err != nil {
			return nil, err
		}
		app.catalog = catalog
	}
	app.refreshProcessMenu()
	app.logInfo("Session opened · %d process definitions available", app.catalog.Len())
	return app, nil
}

func (a *App) refreshProcessMenu() {
	items := []list.Item{}
	for _, file := range a.catalog.Files() {
		def := file.Definition
		desc := strings.TrimSpace(def.Description)
		if desc == "" {
			desc = fmt.Sprintf("%d phases", len(def.Phases))
		}
		items = append(items, processItem{
			id:    def.ID,
			title: def.Name,
			desc:  fmt.Sprintf("%s · ID: %s", desc, def.ID),
		})
	}
	a.processMenu.SetItems(items)
	if idx := a.processIndex(a.config.DefaultProcess()); idx >= 0 {
		a.processMenu.Select(idx)
	}
}

func (a *App) processIndex(id string) int {
	target := strings.ToLower(strings.TrimSpace(id))
	if target == "" {
		return -1
	}
	for idx, item := range a.processMenu.Items() {
		if p, ok := item.(processItem); ok && strings.ToLower(p.id) == target {
			return idx
		}
	}
	return -1
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.processMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		return a, nil

	case phaseStartedMsg:
		a.started[msg.Phase] = true
		a.currentPhase = msg.Phase
		a.statusMsg = fmt.Sprintf("Dispatching %s...", msg.Phase)
		return a, a.awaitEvent()

	case phaseCompletedMsg:
		a.finished[msg.Phase] = true
		a.statusMsg = fmt.Sprintf("Phase %s completed (%d artifacts)", msg.Phase, msg.Artifacts)
		return a, a.awaitEvent()

	case checkpointPromptMsg:
		a.state = stateCheckpoint
		a.prompt = msg.Prompt
		a.reply = msg.Reply
		a.statusMsg = "Awaiting review · y approve, n reject"
		return a, a.awaitEvent()

	case runFinishedMsg:
		a.state = stateDone
		a.runErr = msg.Err
		if msg.Err == nil {
			result := msg.Result
			a.result = &result
		}
		a.cancelRun = nil
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	if a.state == stateProcessSelect {
		var cmd tea.Cmd
		a.processMenu, cmd = a.processMenu.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		if a.cancelRun != nil {
			a.cancelRun()
		}
		return a, tea.Quit
	case "q":
		if a.state == stateProcessSelect || a.state == stateDone {
			return a, tea.Quit
		}
	case "esc":
		if a.state == stateDone {
			return a.returnToProcessSelect()
		}
	case "y", "enter":
		if a.state == stateCheckpoint {
			return a.resolveCheckpoint(checkpoint.Proceed)
		}
		if a.state == stateProcessSelect && key == "enter" {
			return a.handleProcessSelection()
		}
	case "n":
		if a.state == stateCheckpoint {
			return a.resolveCheckpoint(checkpoint.Reject)
		}
	}

	if a.state == stateProcessSelect {
		var cmd tea.Cmd
		a.processMenu, cmd = a.processMenu.Update(msg)
		return a, cmd
	}
	return a, nil
}

// handleProcessSelection launches the selected process.
func (a *App) handleProcessSelection() (tea.Model, tea.Cmd) {
	item, ok := a.processMenu.SelectedItem().(processItem)
	if !ok {
		a.statusMsg = "No process selected"
		return a, nil
	}
	def, ok := a.catalog.Lookup(item.id)
	if !ok {
		a.statusMsg = fmt.Sprintf("Process %s is no longer available", item.id)
		return a, nil
	}
	if err := a.config.SetDefaultProcess(item.id); err != nil {
		a.logError("Persist default process: %v", err)
	}
	return a.startRun(def)
}

// startRun boots a run goroutine and switches to the running screen.
func (a *App) startRun(def process.Definition) (tea.Model, tea.Cmd) {
	a.state = stateRunning
	a.runID = uuid.NewString()
	a.processID = def.ID
	a.phaseNames = append(def.PhaseNames(), gatePhaseName(def))
	a.started = map[string]bool{}
	a.finished = map[string]bool{}
	a.currentPhase = ""
	a.result = nil
	a.runErr = nil
	a.events = make(chan tea.Msg, eventBuffer)
	a.statusMsg = fmt.Sprintf("Run %s started", a.runID)
	a.logInfo("Run %s · process %s started", a.runID, def.ID)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancelRun = cancel
	go a.launcher(ctx, a.config, def, a.runID, a.events)
	return a, a.awaitEvent()
}

func gatePhaseName(def process.Definition) string {
	if strings.TrimSpace(def.Gate.Phase) != "" {
		return def.Gate.Phase
	}
	return process.DefaultGatePhase
}

func (a *App) resolveCheckpoint(resolution checkpoint.Resolution) (tea.Model, tea.Cmd) {
	if a.reply != nil {
		a.reply <- resolution
		a.reply = nil
	}
	a.state = stateRunning
	a.statusMsg = fmt.Sprintf("Checkpoint resolved: %s", resolution)
	a.logInfo("Checkpoint %q resolved: %s", a.prompt.Title, resolution)
	return a, a.awaitEvent()
}

func (a *App) returnToProcessSelect() (tea.Model, tea.Cmd) {
	a.state = stateProcessSelect
	a.result = nil
	a.runErr = nil
	a.statusMsg = ""
	a.refreshProcessMenu()
	return a, nil
}

// awaitEvent re-arms the listener on the run goroutine's channel.
func (a *App) awaitEvent() tea.Cmd {
	events := a.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		return <-events
	}
}

// defaultLauncher wires the real engine: agent executor, effects store, state
// repository, and a resolver that routes reviews through the TUI.
func defaultLauncher(ctx context.Context, cfg *config.Config, def process.Definition, runID string, events chan<- tea.Msg) {
	result, err := launchRun(ctx, cfg, def, runID, events)
	events <- runFinishedMsg{Result: result, Err: err}
}

func launchRun(ctx context.Context, cfg *config.Config, def process.Definition, runID string, events chan<- tea.Msg) (process.Result, error) {
	plan, err := def.CompileWith(nil)
	if err != nil {
		return process.Result{}, err
	}
	agentOpts := []executor.AgentOption{
		executor.WithArgs(cfg.Project.Executor.Args...),
	}
	if cfg.Project.Executor.MaxRetries > 0 {
		agentOpts = append(agentOpts, executor.WithMaxRetries(uint64(cfg.Project.Executor.MaxRetries)))
	}
	if cfg.Project.Executor.Dir != "" {
		agentOpts = append(agentOpts, executor.WithDir(cfg.Project.Executor.Dir))
	}
	if timeout := cfg.ExecutorTimeout(); timeout > 0 {
		agentOpts = append(agentOpts, executor.WithTimeout(timeout))
	}
	agent, err := executor.NewAgentClient(cfg.Project.Executor.Command, agentOpts...)
	if err != nil {
		return process.Result{}, err
	}

	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), runID+".log"))
	if err != nil {
		lb = nil
	}
	dispatcher, err := dispatch.New(runID, effects.NewStore(cfg.EffectsDir()), agent,
		dispatch.WithLogbook(lb))
	if err != nil {
		return process.Result{}, err
	}

	runner, err := process.NewRunner(plan,
		&eventDispatcher{inner: dispatcher, events: events},
		process.WithCheckpointResolver(eventResolver{events: events}),
		process.WithStateStore(process.NewRepository(cfg.RunsDir())),
		process.WithLogbook(lb),
	)
	if err != nil {
		return process.Result{}, err
	}
	return runner.Run(ctx, process.RunRequest{RunID: runID, ProcessID: def.ID})
}

// eventDispatcher mirrors every dispatch onto the TUI event channel.
type eventDispatcher struct {
	inner  process.TaskDispatcher
	events chan<- tea.Msg
}

func (d *eventDispatcher) Dispatch(ctx context.Context, def task.Definition, input task.Params) (task.Result, error) {
	d.events <- phaseStartedMsg{Phase: def.ID}
	result, err := d.inner.Dispatch(ctx, def, input)
	if err == nil {
		d.events <- phaseCompletedMsg{Phase: def.ID, Artifacts: len(result.Artifacts)}
	}
	return result, err
}

// eventResolver routes checkpoint prompts through the TUI and blocks the run
// until the operator answers.
type eventResolver struct {
	events chan<- tea.Msg
}

func (r eventResolver) Await(ctx context.Context, prompt checkpoint.Prompt) (checkpoint.Resolution, error) {
	reply := make(chan checkpoint.Resolution, 1)
	select {
	case r.events <- checkpointPromptMsg{Prompt: prompt, Reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case resolution := <-reply:
		return resolution, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
