// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// CommandResult holds the captured output of a finished command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command is a prepared external command.
type Command struct {
	ctx   context.Context
	name  string
	args  []string
	dir   string
	input string
}

// NewCommand prepares name with args without running it.
func NewCommand(name string, args ...string) *Command {
	return &Command{ctx: context.Background(), name: name, args: args}
}

// WithContext binds the command to ctx; cancelling ctx kills the process.
func (c *Command) WithContext(ctx context.Context) *Command {
	c.ctx = ctx
	return c
}

// SetDir sets the working directory of the command.
func (c *Command) SetDir(dir string) *Command {
	c.dir = dir
	return c
}

// SetInput feeds input to the command's stdin.
func (c *Command) SetInput(input string) *Command {
	c.input = input
	return c
}

// String renders the command line for logs.
func (c *Command) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

// Execute runs the command and waits for it. A command that cannot be
// started reports exit code -1 and the start error on Stderr.
func (c *Command) Execute() CommandResult {
	cmd := exec.CommandContext(c.ctx, c.name, c.args...)
	cmd.Dir = c.dir
	if c.input != "" {
		cmd.Stdin = strings.NewReader(c.input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}
	return res
}

// ExecuteCommand runs name with args and returns its result.
func ExecuteCommand(name string, args ...string) CommandResult {
	return NewCommand(name, args...).Execute()
}
