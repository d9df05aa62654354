// Package agent wraps the Claude Code CLI as a synchronous
// request/response gateway. One Invoke call is one blocking subprocess;
// the streamed JSONL output is captured verbatim and the terminal
// result record classified into a typed response.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/c360studio/adw/config"
)

// Well-known stream record markers emitted by the agent CLI.
const (
	recordTypeResult      = "result"
	subtypeExecutionError = "error_during_execution"
	executionErrorMessage = "Error during execution: Agent encountered an error"
	rawOutputFilename     = "raw_output.jsonl"
)

// PromptRequest is the input to one free-text agent invocation.
type PromptRequest struct {
	Prompt          string
	ADWID           string
	AgentName       string
	Model           string
	SkipPermissions bool
	OutputFile      string
}

// TemplateRequest is the input to one templated slash-command
// invocation. The model tier is resolved from the command router and
// permissions are always auto-approved.
type TemplateRequest struct {
	AgentName string
	Command   string
	Args      []string
	ADWID     string
}

// Response is the result of one agent invocation.
type Response struct {
	Output    string
	Success   bool
	SessionID string
}

// streamRecord is one line of the agent's JSONL output. Only result
// records carry the trailing fields.
type streamRecord struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

// Gateway invokes the Claude Code CLI with an allow-listed environment.
type Gateway struct {
	claudePath   string
	agentsDir    string
	defaultModel string
	env          config.EnvironmentConfig
	runner       CommandRunner
	logger       *slog.Logger
}

// New creates a gateway for the configured agent binary. The
// environment snapshot is the only environment the subprocess sees.
func New(cfg *config.Config, env config.EnvironmentConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		claudePath:   cfg.Agent.ClaudePath,
		agentsDir:    cfg.AgentsPath(),
		defaultModel: cfg.Agent.DefaultModel,
		env:          env,
		runner:       &execRunner{dir: cfg.Repo.Path},
		logger:       logger,
	}
}

// WithRunner overrides the process-execution port. Used by tests.
func (g *Gateway) WithRunner(r CommandRunner) *Gateway {
	g.runner = r
	return g
}

// CheckInstalled verifies the agent binary responds to a version probe.
func (g *Gateway) CheckInstalled(ctx context.Context) error {
	_, _, code, err := g.runner.Run(ctx, g.claudePath, []string{"--version"}, g.env.Environ())
	if err != nil || code != 0 {
		return fmt.Errorf("claude code CLI is not installed (expected at: %s)", g.claudePath)
	}
	return nil
}

var leadingSlashCommand = regexp.MustCompile(`^(/\w+)`)

// savePrompt persists the rendered prompt for the audit trail, keyed by
// its leading slash command. Prompts without one are skipped silently.
func (g *Gateway) savePrompt(prompt, adwID, agentName string) {
	m := leadingSlashCommand.FindStringSubmatch(prompt)
	if m == nil {
		return
	}
	commandName := strings.TrimPrefix(m[1], "/")

	promptDir := filepath.Join(g.agentsDir, adwID, agentName, "prompts")
	if err := os.MkdirAll(promptDir, 0755); err != nil {
		g.logger.Warn("Failed to create prompt directory", slog.String("error", err.Error()))
		return
	}
	file := filepath.Join(promptDir, commandName+".txt")
	if err := os.WriteFile(file, []byte(prompt), 0644); err != nil {
		g.logger.Warn("Failed to save prompt", slog.String("error", err.Error()))
		return
	}
	g.logger.Info("Saved prompt", slog.String("path", file))
}

// Invoke runs the agent once, blocking until it exits. Raw stdout is
// written to the request's output file regardless of exit status so
// partial output survives failure.
func (g *Gateway) Invoke(ctx context.Context, req PromptRequest) Response {
	if err := g.CheckInstalled(ctx); err != nil {
		return Response{Output: err.Error(), Success: false}
	}

	agentName := req.AgentName
	if agentName == "" {
		agentName = "ops"
	}
	g.savePrompt(req.Prompt, req.ADWID, agentName)

	if dir := filepath.Dir(req.OutputFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Response{Output: fmt.Sprintf("failed to create output directory: %v", err), Success: false}
		}
	}

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	args := []string{
		"-p", req.Prompt,
		"--model", model,
		"--output-format", "stream-json",
		"--verbose",
	}
	if req.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}

	stdout, stderr, code, runErr := g.runner.Run(ctx, g.claudePath, args, g.env.Environ())

	if err := os.WriteFile(req.OutputFile, stdout, 0644); err != nil {
		g.logger.Warn("Failed to write raw output", slog.String("path", req.OutputFile), slog.String("error", err.Error()))
	}

	if runErr != nil {
		return Response{Output: fmt.Sprintf("Error executing Claude Code: %v", runErr), Success: false}
	}
	if code != 0 {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = strings.TrimSpace(string(stdout))
		}
		if msg == "" {
			msg = "claude error"
		}
		return Response{Output: msg, Success: false}
	}

	records, raws := parseJSONL(stdout)
	g.writeDecodedSidecar(req.OutputFile, raws)

	result := findResultRecord(records)
	if result == nil {
		g.logger.Warn("No terminal result record in agent output, falling back to raw stdout",
			slog.String("output_file", req.OutputFile))
		return Response{Output: string(stdout), Success: true}
	}

	if result.Subtype == subtypeExecutionError {
		return Response{Output: executionErrorMessage, Success: false, SessionID: result.SessionID}
	}
	return Response{Output: result.Result, Success: !result.IsError, SessionID: result.SessionID}
}

// InvokeTemplate renders a slash command with its arguments as the
// prompt and invokes the agent with the routed model. Templated
// invocations are always auto-approved.
func (g *Gateway) InvokeTemplate(ctx context.Context, req TemplateRequest) Response {
	prompt := req.Command
	if len(req.Args) > 0 {
		prompt += " " + strings.Join(req.Args, " ")
	}
	outputFile := filepath.Join(g.agentsDir, req.ADWID, req.AgentName, rawOutputFilename)

	return g.Invoke(ctx, PromptRequest{
		Prompt:          prompt,
		ADWID:           req.ADWID,
		AgentName:       req.AgentName,
		Model:           ModelFor(req.Command, g.defaultModel),
		SkipPermissions: true,
		OutputFile:      outputFile,
	})
}

// parseJSONL decodes newline-delimited JSON records. Undecodable lines
// are dropped; a fully unparseable stream yields an empty record set,
// never an error.
func parseJSONL(data []byte) ([]streamRecord, []json.RawMessage) {
	var records []streamRecord
	var raws []json.RawMessage
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec streamRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
		raws = append(raws, json.RawMessage(line))
	}
	return records, raws
}

// findResultRecord returns the last terminal result record, or nil.
func findResultRecord(records []streamRecord) *streamRecord {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Type == recordTypeResult {
			return &records[i]
		}
	}
	return nil
}

// writeDecodedSidecar writes a decoded JSON-array form of the captured
// records next to the raw output for inspection. Best-effort only.
func (g *Gateway) writeDecodedSidecar(outputFile string, raws []json.RawMessage) {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(raws, "", "  ")
	if err != nil {
		return
	}
	sidecar := strings.TrimSuffix(outputFile, ".jsonl") + ".json"
	_ = os.WriteFile(sidecar, data, 0644)
}
