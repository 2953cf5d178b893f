// cmd/process-runner/main.go
//
// Headless runner for automation. It executes one or more process
// definitions without the TUI, resolves checkpoints through decision files
// under .babysitter/checkpoints (or an HTTP endpoint with --http-checkpoints),
// and prints each run's result as JSON. An interrupted run can be replayed
// with --run-id: completed phases are served from the effects store instead
// of re-invoking the executor.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

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

type runReport struct {
	RunID     string          `json:"run_id"`
	ProcessID string          `json:"process_id"`
	Result    *process.Result `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func main() {
	processIDs := stringsFlag{}
	flag.Var(&processIDs, "process", "process identifier to execute (repeatable)")
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	paramsFile := flag.String("params-file", "", "path to YAML/JSON file with base parameters")
	runTimeout := flag.Duration("timeout", 0, "overall timeout per run (0 means none)")
	resumeID := flag.String("run-id", "", "resume the run with this id, replaying cached phase results")
	httpAddr := flag.String("http-checkpoints", "", "serve checkpoint decisions over HTTP on this address instead of decision files")
	sets := keyValueFlag{}
	flag.Var(&sets, "set", "base parameter override (key=value, repeatable)")
	flag.Parse()

	if len(processIDs) == 0 {
		die("--process is required")
	}
	if *resumeID != "" && len(processIDs) != 1 {
		die("--run-id resumes a single run, got %d processes", len(processIDs))
	}

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}
	if err := config.InitStateDir(absoluteProject); err != nil {
		die("init .babysitter: %v", err)
	}
	cfg, err := config.NewConfig(absoluteProject)
	if err != nil {
		die("load config: %v", err)
	}
	catalog, err := plugins.Discover(cfg.ProcessesDir())
	if err != nil {
		die("discover processes: %v", err)
	}
	params, err := buildParams(*paramsFile, sets)
	if err != nil {
		die("load parameters: %v", err)
	}

	var httpResolver *checkpoint.HTTPResolver
	if *httpAddr != "" {
		httpResolver = checkpoint.NewHTTPResolver(*httpAddr)
		if err := httpResolver.Start(); err != nil {
			die("start checkpoint endpoint: %v", err)
		}
		fmt.Fprintf(os.Stderr, "checkpoint decisions: http://%s/checkpoints\n", httpResolver.Addr())
	}

	reports := make([]runReport, len(processIDs))
	var mu sync.Mutex
	group, ctx := errgroup.WithContext(context.Background())
	for i, id := range processIDs {
		i, id := i, id
		group.Go(func() error {
			report := executeRun(ctx, cfg, catalog, id, *resumeID, params, *runTimeout, httpResolver)
			mu.Lock()
			reports[i] = report
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	if httpResolver != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = httpResolver.Shutdown(shutdownCtx)
		cancel()
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(reports); err != nil {
		die("encode reports: %v", err)
	}

	for _, report := range reports {
		if report.Error != "" || report.Result == nil || !report.Result.Success {
			os.Exit(1)
		}
	}
}

// executeRun wires one full run: executor, effects store, dispatcher,
// checkpoint resolver, state repository, and the phase runner. A non-empty
// resumeID reuses that run's effect namespace so completed phases replay
// from cache.
func executeRun(ctx context.Context, cfg *config.Config, catalog *plugins.Catalog, processID, resumeID string, params task.Params, timeout time.Duration, httpResolver *checkpoint.HTTPResolver) runReport {
	runID := resumeID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := runReport{RunID: runID, ProcessID: processID}

	def, ok := catalog.Lookup(processID)
	if !ok {
		report.Error = fmt.Sprintf("process %s not found (available: %s)", processID, strings.Join(catalog.IDs(), ", "))
		return report
	}
	plan, err := def.Compile()
	if err != nil {
		report.Error = err.Error()
		return report
	}

	store := effects.NewStore(cfg.EffectsDir())
	states := process.NewRepository(cfg.RunsDir())
	if resumeID != "" {
		if err := checkResumable(states, store, plan, runID, processID); err != nil {
			report.Error = err.Error()
			return report
		}
	}

	agent, err := buildAgent(cfg)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), runID+".log"))
	if err != nil {
		lb = nil
	}
	dispatcher, err := dispatch.New(runID, store, agent,
		dispatch.WithLogbook(lb))
	if err != nil {
		report.Error = err.Error()
		return report
	}
	var resolver checkpoint.Resolver = httpResolver
	if httpResolver == nil {
		fileResolver, err := checkpoint.NewFileResolver(filepath.Join(cfg.CheckpointsDir(), runID))
		if err != nil {
			report.Error = err.Error()
			return report
		}
		resolver = fileResolver
	}
	runner, err := process.NewRunner(plan, dispatcher,
		process.WithCheckpointResolver(resolver),
		process.WithStateStore(states),
		process.WithLogbook(lb),
	)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := runner.Run(runCtx, process.RunRequest{RunID: runID, ProcessID: processID, Params: params})
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Result = &result
	return report
}

// checkResumable guards --run-id against ids that cannot be replayed and
// reports how much of the pipeline the effects store already holds.
func checkResumable(states *process.Repository, store *effects.Store, plan *process.Plan, runID, processID string) error {
	prior, err := states.Load(runID)
	if errors.Is(err, process.ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if prior.ProcessID != processID {
		return fmt.Errorf("run %s belongs to process %s, not %s", runID, prior.ProcessID, processID)
	}
	if prior.Status == process.StatusCompleted {
		return fmt.Errorf("run %s already completed", runID)
	}
	cached := 0
	for _, phase := range plan.Phases {
		if store.HasResult(runID, phase.Task.ID) {
			cached++
		}
	}
	ids, err := store.EffectIDs(runID)
	if err != nil {
		return fmt.Errorf("list effects for run %s: %w", runID, err)
	}
	fmt.Fprintf(os.Stderr, "resuming run %s (last status %s): %d of %d phases cached, %d effects recorded\n",
		runID, prior.Status, cached, len(plan.Phases), len(ids))
	return nil
}

func buildAgent(cfg *config.Config) (*executor.AgentClient, error) {
	opts := []executor.AgentOption{
		executor.WithArgs(cfg.Project.Executor.Args...),
	}
	if cfg.Project.Executor.MaxRetries > 0 {
		opts = append(opts, executor.WithMaxRetries(uint64(cfg.Project.Executor.MaxRetries)))
	}
	if cfg.Project.Executor.Dir != "" {
		opts = append(opts, executor.WithDir(cfg.Project.Executor.Dir))
	}
	if timeout := cfg.ExecutorTimeout(); timeout > 0 {
		opts = append(opts, executor.WithTimeout(timeout))
	}
	return executor.NewAgentClient(cfg.Project.Executor.Command, opts...)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

type stringsFlag []string

func (s *stringsFlag) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringsFlag) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		*s = append(*s, trimmed)
	}
	return nil
}

type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	var pairs []string
	for key, value := range *kv {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("override key is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = parts[1]
	return nil
}

func buildParams(paramsFile string, overrides keyValueFlag) (task.Params, error) {
	params := task.Params{}
	if path := strings.TrimSpace(paramsFile); path != "" {
		fileParams, err := readParamsFile(path)
		if err != nil {
			return nil, err
		}
		params = fileParams
	}
	for key, value := range overrides {
		params[key] = value
	}
	return params, nil
}

func readParamsFile(path string) (task.Params, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open params file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("params file %s is empty", path)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse params file %s: %w", path, err)
	}
	params := make(task.Params, len(raw))
	for key, value := range raw {
		params[key] = value
	}
	return params, nil
}
