package terminal

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/goccy/go-yaml"
)

// AgentCommand maps a provider to the CLI that runs its models
type AgentCommand struct {
	Provider  string            `yaml:"provider"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	ModelFlag string            `yaml:"model_flag"`
	Env       map[string]string `yaml:"env"`
}

// AgentTable is the on-disk format of the agent command file
type AgentTable struct {
	DefaultProvider string         `yaml:"default_provider"`
	Agents          []AgentCommand `yaml:"agents"`
}

// DefaultAgentTable returns the built-in provider mapping
func DefaultAgentTable() AgentTable {
	return AgentTable{
		DefaultProvider: "anthropic",
		Agents: []AgentCommand{
			{Provider: "anthropic", Command: "claude", ModelFlag: "--model"},
			{Provider: "openai", Command: "codex", ModelFlag: "--model"},
			{Provider: "google", Command: "gemini", ModelFlag: "--model"},
		},
	}
}

// LoadAgentTable reads a YAML agent command file
func LoadAgentTable(path string) (AgentTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AgentTable{}, fmt.Errorf("failed to read agent config: %w", err)
	}

	var table AgentTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return AgentTable{}, fmt.Errorf("failed to parse agent config %s: %w", path, err)
	}
	for i, a := range table.Agents {
		if a.Provider == "" || a.Command == "" {
			return AgentTable{}, fmt.Errorf("agent config %s: entry %d needs provider and command", path, i)
		}
	}
	return table, nil
}

// Command is a resolved executable invocation
type Command struct {
	Path string
	Args []string
	Env  map[string]string
}

// CommandResolver turns a terminal type and model config into a Command
type CommandResolver struct {
	shell           string
	defaultProvider string
	agents          map[string]AgentCommand
	lookPath        func(string) (string, error)
}

// NewCommandResolver creates a resolver. An empty shell falls back to $SHELL
// and then /bin/bash.
func NewCommandResolver(shell string, table AgentTable) *CommandResolver {
	if shell == "" {
		shell = os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/bash"
		}
	}

	agents := make(map[string]AgentCommand, len(table.Agents))
	for _, a := range table.Agents {
		agents[strings.ToLower(a.Provider)] = a
	}

	return &CommandResolver{
		shell:           shell,
		defaultProvider: strings.ToLower(table.DefaultProvider),
		agents:          agents,
		lookPath:        exec.LookPath,
	}
}

// Resolve validates the request and locates the executable
func (r *CommandResolver) Resolve(t TerminalType, mc *ModelConfig) (Command, error) {
	switch t {
	case TypeShell:
		path, err := r.lookPath(r.shell)
		if err != nil {
			return Command{}, &SpawnError{Command: r.shell, Err: err}
		}
		return Command{Path: path}, nil

	case TypeAgent:
		if mc == nil || strings.TrimSpace(mc.Model) == "" {
			return Command{}, ErrMissingModelConfig
		}
		provider := strings.ToLower(mc.Provider)
		if provider == "" {
			provider = r.defaultProvider
		}
		agent, ok := r.agents[provider]
		if !ok {
			return Command{}, fmt.Errorf("%w: %q", ErrUnknownProvider, mc.Provider)
		}

		path, err := r.lookPath(agent.Command)
		if err != nil {
			return Command{}, &SpawnError{Command: agent.Command, Err: err}
		}

		args := append([]string(nil), agent.Args...)
		if agent.ModelFlag != "" {
			args = append(args, agent.ModelFlag, mc.Model)
		}

		env := map[string]string{
			"TERMHUB_MODEL":    mc.Model,
			"TERMHUB_PROVIDER": provider,
		}
		for k, v := range agent.Env {
			env[k] = v
		}
		return Command{Path: path, Args: args, Env: env}, nil

	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownTerminalType, t)
	}
}
