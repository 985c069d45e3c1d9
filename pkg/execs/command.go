// Package execs models and runs external commands for fact resolution and
// command requirements.
package execs

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

var (
	ErrEmptyCommand       = errors.New("command must not be empty")
	ErrCommandExecution   = errors.New("command execution")
	ErrExecutableNotFound = errors.New("executable not found")
	ErrTimeout            = errors.New("command timed out")
)

// Command is a single executable invocation.
type Command struct {
	// Command is the executable name or path.
	Command string `json:"command"`
	// Args are the command arguments.
	Args []string `json:"args,omitempty"`
	// Env sets additional environment variables, as KEY=VALUE pairs.
	Env []string `json:"env,omitempty"`
}

// Parse splits a command line into a [Command] using shell-words rules,
// so quoting behaves the way a shell user expects.
func Parse(commandLine string) (Command, error) {
	words, err := shellwords.Parse(commandLine)
	if err != nil {
		return Command{}, fmt.Errorf("parse command line: %w", err)
	}
	if len(words) == 0 {
		return Command{}, ErrEmptyCommand
	}

	return Command{Command: words[0], Args: words[1:]}, nil
}

// Lookup resolves the command's executable on PATH.
func (c Command) Lookup() error {
	if c.Command == "" {
		return ErrEmptyCommand
	}

	_, err := exec.LookPath(c.Command)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrExecutableNotFound, c.Command)
	}

	return nil
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Command
	}

	return fmt.Sprintf("%s %s", c.Command, strings.Join(c.Args, " "))
}

// Result holds the output of an executed command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// TrimmedStdout returns stdout with surrounding whitespace removed.
func (r *Result) TrimmedStdout() string {
	return strings.TrimSpace(r.Stdout)
}
