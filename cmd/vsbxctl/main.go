// Command vsbxctl is a thin demonstration CLI over internal/manager: it
// initializes the manager, wraps a command in the sandbox, runs it, and
// exits with the child's status (spec.md §6 "CLI surface (external
// collaborator)").
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/AgentShepherd/vsbx/internal/logger"
	"github.com/AgentShepherd/vsbx/internal/manager"
	"github.com/AgentShepherd/vsbx/internal/policyconfig"
)

var log = logger.New("vsbxctl")

func main() {
	os.Exit(run(os.Args[1:]))
}

// run implements the full CLI lifecycle and returns the process exit
// code, so tests can exercise it without calling os.Exit.
func run(argv []string) int {
	flags := flag.NewFlagSet("vsbxctl", flag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true

	command := flags.StringP("command", "c", "", "command string to run inside the sandbox")
	settingsPath := flags.StringP("settings", "s", "", "path to a PolicyConfig JSON document")
	shell := flags.String("shell", "/bin/sh", "interpreter used to run the command")

	if err := flags.Parse(argv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// Positional arguments are joined by spaces when -c is absent (§6,
	// §9 open question: this destroys original quoting, matching the
	// collaborator's documented behavior rather than "fixing" it).
	cmd := *command
	if cmd == "" {
		cmd = strings.Join(flags.Args(), " ")
	}
	if strings.TrimSpace(cmd) == "" {
		fmt.Fprintln(os.Stderr, "vsbxctl: no command given (use -c or positional arguments)")
		return 1
	}

	policy, err := loadPolicy(*settingsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vsbxctl: config error:", err)
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "vsbxctl: getwd:", err)
		return 1
	}

	m := manager.New(cwd)
	ctx := context.Background()

	if err := m.Initialize(ctx, policy); err != nil {
		fmt.Fprintln(os.Stderr, "vsbxctl: initialize:", err)
		return 1
	}
	defer m.Reset()

	wrapped, err := m.Wrap(cmd, *shell, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vsbxctl: wrap:", err)
		return 1
	}
	log.Debug("wrapped command: %s", wrapped)

	var stderrBuf bytes.Buffer
	child := exec.CommandContext(ctx, *shell, "-c", wrapped)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = io.MultiWriter(os.Stderr, &stderrBuf)

	runErr := child.Run()

	if annotated := m.AnnotateStderr(cmd, stderrBuf.String()); annotated != stderrBuf.String() {
		fmt.Fprint(os.Stderr, strings.TrimPrefix(annotated, stderrBuf.String()))
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			if exitErr.ExitCode() >= 0 {
				return exitErr.ExitCode()
			}
			// Negative ExitCode means the child was killed by a signal
			// (§7 ChildSignalled): surfaced as exit code 1 with a message.
			fmt.Fprintln(os.Stderr, "vsbxctl: child terminated by signal:", exitErr)
			return 1
		}
		fmt.Fprintln(os.Stderr, "vsbxctl:", runErr)
		return 1
	}
	return 0
}

func loadPolicy(path string) (*policyconfig.PolicyConfig, error) {
	if path == "" {
		cfg := policyconfig.PolicyConfig{}
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	var cfg policyconfig.PolicyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
