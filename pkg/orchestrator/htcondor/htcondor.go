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

package htcondor

import (
	"bytes"
	"context"
	"fmt"
	"hpc-remap/pkg/logging"
	"hpc-remap/pkg/orchestrator"
	"hpc-remap/pkg/shell"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/spf13/afero"
)

// DefaultSubmitCommand is the HTCondor submission binary.
const DefaultSubmitCommand = "condor_submit"

// SubmitTemplate is the Go template for an HTCondor submit description
// running the job inside a docker universe container.
const SubmitTemplate = `# Generated by generate-remap-jobs. Do not edit.
universe                = docker
docker_image            = {{.ContainerImage}}
executable              = {{.Executable}}
arguments               = {{.Arguments}}
{{- if .ExecutionUser}}
+ProcUser               = "{{.ExecutionUser}}"
{{- end}}
request_memory          = {{.Memory}}
should_transfer_files   = YES
when_to_transfer_output = ON_EXIT
{{- if .StagedFiles}}
transfer_input_files    = {{join .StagedFiles ","}}
{{- end}}
{{- if .LogPrefix}}
output                  = {{.LogPrefix}}/$(ClusterId).$(ProcId).out
error                   = {{.LogPrefix}}/$(ClusterId).$(ProcId).err
log                     = {{.LogPrefix}}/$(ClusterId).log
{{- end}}
queue{{if .Queue}} {{.Queue}}{{end}}
`

var (
	submitTmpl = template.Must(template.New("submit").Funcs(template.FuncMap{"join": strings.Join}).Parse(SubmitTemplate))

	clusterIDPattern = regexp.MustCompile(`(\d+) job\(s\) submitted to cluster (\d+)\.`)
)

// Runner executes a command in dir. It exists so tests can stand in for
// condor_submit.
type Runner func(ctx context.Context, dir, name string, args ...string) shell.CommandResult

func execRunner(ctx context.Context, dir, name string, args ...string) shell.CommandResult {
	return shell.NewCommand(name, args...).WithContext(ctx).SetDir(dir).Execute()
}

// Client implements orchestrator.Scheduler for HTCondor.
type Client struct {
	fs            afero.Fs
	submitCommand string
	run           Runner
}

// Option configures a Client.
type Option func(*Client)

// WithSubmitCommand overrides DefaultSubmitCommand.
func WithSubmitCommand(cmd string) Option {
	return func(c *Client) {
		if cmd != "" {
			c.submitCommand = cmd
		}
	}
}

// WithRunner replaces the process runner used by Submit.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.run = r }
}

// NewClient creates a Client writing descriptors to fs.
func NewClient(fs afero.Fs, opts ...Option) *Client {
	c := &Client{fs: fs, submitCommand: DefaultSubmitCommand, run: execRunner}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ orchestrator.Scheduler = (*Client)(nil)

// Build renders the submit description for def.
func (c *Client) Build(def orchestrator.JobDefinition) (orchestrator.Job, error) {
	if def.DescriptorPath == "" {
		return orchestrator.Job{}, fmt.Errorf("job definition has no descriptor path")
	}
	if def.Executable == "" {
		return orchestrator.Job{}, fmt.Errorf("job %q has no executable", def.DescriptorPath)
	}
	fields := []string{def.Arguments, def.ExecutionUser, def.ContainerImage, def.Memory, def.Executable, def.LogPrefix}
	fields = append(fields, def.StagedFiles...)
	for _, f := range fields {
		if strings.ContainsAny(f, "\r\n") {
			return orchestrator.Job{}, fmt.Errorf("job %q: value %q spans multiple lines", def.DescriptorPath, f)
		}
	}

	var buf bytes.Buffer
	if err := submitTmpl.Execute(&buf, def); err != nil {
		return orchestrator.Job{}, fmt.Errorf("failed to execute submit template: %w", err)
	}
	return orchestrator.Job{Definition: def, Descriptor: buf.Bytes()}, nil
}

// Persist writes the job's submit description, creating the log directory
// it refers to.
func (c *Client) Persist(job orchestrator.Job) error {
	def := job.Definition
	if def.LogPrefix != "" {
		if err := c.fs.MkdirAll(def.LogPrefix, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", def.LogPrefix, err)
		}
	}
	if err := afero.WriteFile(c.fs, def.DescriptorPath, job.Descriptor, 0o644); err != nil {
		return fmt.Errorf("failed to write submit file %s: %w", def.DescriptorPath, err)
	}
	return nil
}

// Submit runs condor_submit from the descriptor's directory so that relative
// staged files resolve there, and returns the cluster id.
func (c *Client) Submit(ctx context.Context, job orchestrator.Job) (string, error) {
	path := job.Definition.DescriptorPath
	logging.Debug("Executing: %s %s", c.submitCommand, path)
	res := c.run(ctx, filepath.Dir(path), c.submitCommand, path)
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s failed with exit code %d: %s\n%s", c.submitCommand, res.ExitCode, res.Stderr, res.Stdout)
	}
	id, err := ParseClusterID(res.Stdout)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", c.submitCommand, path, err)
	}
	return id, nil
}

// ParseClusterID extracts the cluster id from condor_submit output such as
// "3 job(s) submitted to cluster 1234.".
func ParseClusterID(stdout string) (string, error) {
	m := clusterIDPattern.FindStringSubmatch(stdout)
	if m == nil {
		return "", fmt.Errorf("no cluster id in submit output %q", strings.TrimSpace(stdout))
	}
	return m[2], nil
}
