/*
Package spawner runs external generator processes for skills.

Each configured skill gets one long-lived child process, spawned on first
use. The hub talks to it over stdio with line-delimited JSON-RPC 2.0:

	-> {"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{...}}}
	-> {"jsonrpc":"2.0","id":2,"method":"generate","params":{"skill":"CodeHelper","params":{...}}}
	<- {"jsonrpc":"2.0","id":2,"result":{"text":"...","metadata":{...}}}

A result carries either "text" or base64 "data". A child that times out,
is cancelled or breaks the stream is killed and respawned on the next call.
*/
package spawner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/khanglvm/skill-hub/internal/config"
	"github.com/khanglvm/skill-hub/internal/hub"
	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/tier"
	"github.com/khanglvm/skill-hub/internal/version"
)

// DefaultTimeout is the maximum time to wait for one generate call.
// Set to 60s to handle npx package downloads on cold start.
const DefaultTimeout = 60 * time.Second

// ErrNoGenerator is returned for skills without a configured generator.
var ErrNoGenerator = errors.New("no generator configured for skill")

// Pool manages one child process per configured skill.
type Pool struct {
	configs map[tier.Skill]*config.GeneratorConfig

	mu sync.Mutex
	// processes maps skills to live children
	processes map[tier.Skill]*Process
}

// Process represents a running generator process.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	// reqID is a counter rather than a timestamp to stay within JSON number precision
	reqID int64
}

// NewPool creates a pool for the given skill → generator configs.
// Nothing is spawned until a skill is first used.
func NewPool(generators map[string]*config.GeneratorConfig) *Pool {
	configs := make(map[tier.Skill]*config.GeneratorConfig, len(generators))
	for skill, cfg := range generators {
		configs[tier.Skill(skill)] = cfg
	}
	return &Pool{
		configs:   configs,
		processes: make(map[tier.Skill]*Process),
	}
}

// Skills lists the skills with a configured generator, sorted.
func (p *Pool) Skills() []tier.Skill {
	skills := make([]tier.Skill, 0, len(p.configs))
	for skill := range p.configs {
		skills = append(skills, skill)
	}
	slices.Sort(skills)
	return skills
}

// Generator returns the hub.Generator for skill.
func (p *Pool) Generator(skill tier.Skill) (hub.Generator, bool) {
	if _, ok := p.configs[skill]; !ok {
		return nil, false
	}
	return hub.GeneratorFunc(p.Generate), true
}

// Close terminates all spawned processes and cleans up resources.
// Implements graceful shutdown: closes stdin first, waits 2s, then force kills.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	for skill, proc := range p.processes {
		log.Printf("Terminating generator: %s", skill)

		if proc.stdin != nil {
			if err := proc.stdin.Close(); err != nil {
				log.Printf("Warning: failed to close stdin for %s: %v", skill, err)
			}
		}

		done := make(chan error, 1)
		go func() {
			done <- proc.cmd.Wait()
		}()

		select {
		case err := <-done:
			if err != nil && !strings.Contains(err.Error(), "signal: killed") {
				errs = append(errs, fmt.Errorf("%s: %w", skill, err))
			}
		case <-time.After(2 * time.Second):
			log.Printf("Generator %s did not exit gracefully, force killing", skill)
			proc.kill()
		}
	}

	p.processes = make(map[tier.Skill]*Process)

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// generateResult is the wire form of a generate response.
type generateResult struct {
	Text        *string        `json:"text"`
	Data        []byte         `json:"data"`
	Metadata    map[string]any `json:"metadata"`
	Filename    string         `json:"filename"`
	Description string         `json:"description"`
}

// Generate asks skill's child process for content. It satisfies
// hub.GeneratorFunc.
func (p *Pool) Generate(ctx context.Context, skill tier.Skill, params map[string]any) (hub.Generated, error) {
	cfg, ok := p.configs[skill]
	if !ok {
		return hub.Generated{}, fmt.Errorf("%w: %s", ErrNoGenerator, skill)
	}

	proc, err := p.getOrSpawn(skill, cfg)
	if err != nil {
		return hub.Generated{}, err
	}

	raw, err := proc.sendRequest(ctx, "generate", map[string]any{
		"skill":  skill,
		"params": params,
	}, timeoutFor(cfg))
	if err != nil {
		var rpcErr *RemoteError
		if !errors.As(err, &rpcErr) {
			// The stream may hold a late reply; start over next time.
			p.discard(skill, proc)
		}
		return hub.Generated{}, err
	}

	var res generateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return hub.Generated{}, fmt.Errorf("invalid generate result from %s: %w", skill, err)
	}

	var content outputs.Content
	switch {
	case res.Text != nil:
		content = outputs.TextContent(*res.Text)
	case res.Data != nil:
		content = outputs.BinaryContent(res.Data)
	default:
		return hub.Generated{}, fmt.Errorf("generator %s returned no content", skill)
	}

	return hub.Generated{
		Content:     content,
		Metadata:    res.Metadata,
		Filename:    res.Filename,
		Description: res.Description,
	}, nil
}

func timeoutFor(cfg *config.GeneratorConfig) time.Duration {
	if cfg.TimeoutSeconds > 0 {
		return time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return DefaultTimeout
}

// getOrSpawn returns an existing process or spawns a new one.
func (p *Pool) getOrSpawn(skill tier.Skill, cfg *config.GeneratorConfig) (*Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if proc, exists := p.processes[skill]; exists {
		return proc, nil
	}

	proc, err := spawn(cfg)
	if err != nil {
		return nil, err
	}

	if err := proc.initialize(timeoutFor(cfg)); err != nil {
		proc.terminate()
		if strings.Contains(err.Error(), "EOF") {
			if pkg := getNpmPackageFromConfig(cfg); pkg != "" {
				return nil, fmt.Errorf("generator for %s failed to start. Package '%s' may not exist or failed to load. Verify with: npm view %s", skill, pkg, pkg)
			}
		}
		return nil, fmt.Errorf("failed to initialize generator for %s: %w", skill, err)
	}

	p.processes[skill] = proc
	return proc, nil
}

// discard kills proc and forgets it if it is still skill's current process.
func (p *Pool) discard(skill tier.Skill, proc *Process) {
	p.mu.Lock()
	if p.processes[skill] == proc {
		delete(p.processes, skill)
	}
	p.mu.Unlock()
	proc.terminate()
}

// execCommand is a variable that allows tests to substitute exec.Command
var execCommand = exec.Command

// spawn starts a new generator process.
func spawn(cfg *config.GeneratorConfig) (*Process, error) {
	cmd := execCommand(cfg.Command, cfg.Args...)

	cmd.Env = os.Environ()
	for key, value := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	// stderr must be drained or a chatty child blocks once the pipe buffer fills.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	go io.Copy(io.Discard, stderr)

	return &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

// initialize performs the handshake.
func (proc *Process) initialize(timeout time.Duration) error {
	_, err := proc.sendRequest(context.Background(), "initialize", map[string]any{
		"clientInfo": version.PeerInfo(),
	}, timeout)
	return err
}

// RemoteError is an error reported by the generator itself. The process
// stays usable after one.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("generator error %d: %s", e.Code, e.Message)
}

// sendRequest sends a JSON-RPC request and waits for the response, the
// timeout or ctx, whichever comes first.
func (proc *Process) sendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	proc.mu.Lock()
	defer proc.mu.Unlock()

	proc.reqID++
	reqID := proc.reqID

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	reqBytes = append(reqBytes, '\n')

	if _, err := proc.stdin.Write(reqBytes); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	responseChan := make(chan []byte, 1)
	errorChan := make(chan error, 1)

	go func() {
		line, err := proc.stdout.ReadBytes('\n')
		if err != nil {
			errorChan <- fmt.Errorf("failed to read response: %w", err)
			return
		}
		responseChan <- line
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-responseChan:
		var resp struct {
			ID     int64           `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if resp.ID != reqID {
			return nil, fmt.Errorf("response id %d does not match request %d", resp.ID, reqID)
		}
		if resp.Error != nil {
			return nil, &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil

	case err := <-errorChan:
		return nil, err

	case <-ctx.Done():
		return nil, ctx.Err()

	case <-timer.C:
		return nil, fmt.Errorf("timeout after %v waiting for generator", timeout)
	}
}

// kill terminates the process.
func (proc *Process) kill() {
	if proc.cmd != nil && proc.cmd.Process != nil {
		proc.cmd.Process.Kill()
	}
}

// terminate kills a process nobody else will Wait on and reaps it.
func (proc *Process) terminate() {
	proc.kill()
	if proc.cmd != nil && proc.cmd.Process != nil {
		go proc.cmd.Wait()
	}
}

// getNpmPackageFromConfig extracts npm package name from a generator config.
func getNpmPackageFromConfig(cfg *config.GeneratorConfig) string {
	if cfg.Command != "npx" {
		return ""
	}
	for _, arg := range cfg.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return arg
	}
	return ""
}
