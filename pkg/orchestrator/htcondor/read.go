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
	"bufio"
	"bytes"
	"fmt"
	"hpc-remap/pkg/orchestrator"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// ReadJob parses a submit description written by Persist back into its
// JobDefinition. Only the keys emitted by SubmitTemplate are recognized.
func ReadJob(fs afero.Fs, path string) (orchestrator.JobDefinition, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return orchestrator.JobDefinition{}, fmt.Errorf("failed to read submit file %s: %w", path, err)
	}
	def, err := ParseSubmit(content)
	if err != nil {
		return orchestrator.JobDefinition{}, fmt.Errorf("failed to parse submit file %s: %w", path, err)
	}
	def.DescriptorPath = path
	return def, nil
}

// ParseSubmit parses submit description content.
func ParseSubmit(content []byte) (orchestrator.JobDefinition, error) {
	var def orchestrator.JobDefinition
	sawQueue := false
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "queue" || strings.HasPrefix(line, "queue ") {
			q, err := parseQueue(strings.TrimSpace(strings.TrimPrefix(line, "queue")))
			if err != nil {
				return def, fmt.Errorf("line %d: %w", lineNo, err)
			}
			def.Queue = q
			sawQueue = true
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return def, fmt.Errorf("line %d: expected key = value, got %q", lineNo, line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch strings.ToLower(key) {
		case "docker_image":
			def.ContainerImage = value
		case "executable":
			def.Executable = value
		case "arguments":
			def.Arguments = value
		case "+procuser":
			if unquoted, err := strconv.Unquote(value); err == nil {
				value = unquoted
			}
			def.ExecutionUser = value
		case "request_memory":
			def.Memory = value
		case "transfer_input_files":
			for _, f := range strings.Split(value, ",") {
				if f = strings.TrimSpace(f); f != "" {
					def.StagedFiles = append(def.StagedFiles, f)
				}
			}
		case "output":
			def.LogPrefix = filepath.Dir(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return def, err
	}
	if !sawQueue {
		return def, fmt.Errorf("missing queue statement")
	}
	return def, nil
}

func parseQueue(rest string) (*orchestrator.QueueDirective, error) {
	if rest == "" {
		return nil, nil
	}
	vars, from, ok := strings.Cut(rest, " from ")
	if !ok {
		return nil, fmt.Errorf("unsupported queue statement %q", rest)
	}
	q := &orchestrator.QueueDirective{From: strings.TrimSpace(from)}
	for _, v := range strings.Split(vars, ",") {
		q.Variables = append(q.Variables, strings.TrimSpace(v))
	}
	return q, nil
}
