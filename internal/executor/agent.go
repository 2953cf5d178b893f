package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// AgentClient shells out to an agent command, exchanging JSON over stdio. The
// request document is written to stdin; the agent must print a Response
// document on stdout. Transient launch failures are retried with exponential
// backoff here so no retry policy leaks into the phase runner.
type AgentClient struct {
	command    string
	args       []string
	dir        string
	maxRetries uint64
	timeout    time.Duration
}

// AgentOption customizes the client.
type AgentOption func(*AgentClient)

// WithArgs sets extra arguments passed to the agent command.
func WithArgs(args ...string) AgentOption {
	return func(c *AgentClient) {
		c.args = append([]string{}, args...)
	}
}

// WithDir sets the working directory for the agent process.
func WithDir(dir string) AgentOption {
	return func(c *AgentClient) {
		c.dir = dir
	}
}

// WithMaxRetries bounds how often a failed invocation is retried.
func WithMaxRetries(n uint64) AgentOption {
	return func(c *AgentClient) {
		c.maxRetries = n
	}
}

// WithTimeout bounds a single agent invocation.
func WithTimeout(d time.Duration) AgentOption {
	return func(c *AgentClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewAgentClient builds a client for the given agent command.
func NewAgentClient(command string, opts ...AgentOption) (*AgentClient, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("executor: agent command is required")
	}
	client := &AgentClient{
		command:    command,
		maxRetries: 2,
		timeout:    30 * time.Minute,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Execute runs the agent once per attempt until it produces a parseable
// response or retries are exhausted.
func (c *AgentClient) Execute(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("executor: encode request %s: %w", req.TaskID, err)
	}
	var resp Response
	operation := func() error {
		var attemptErr error
		resp, attemptErr = c.invoke(ctx, payload)
		return attemptErr
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return Response{}, fmt.Errorf("executor: agent %s failed for task %s: %w", c.command, req.TaskID, err)
	}
	return resp, nil
}

func (c *AgentClient) invoke(ctx context.Context, payload []byte) (Response, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.command, c.args...)
	cmd.Dir = c.dir
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return Response{}, fmt.Errorf("agent exited: %w (%s)", err, detail)
		}
		return Response{}, fmt.Errorf("agent exited: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("agent produced unparseable output: %w", err)
	}
	return resp, nil
}
