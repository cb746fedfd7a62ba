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

// Package descriptor turns the file triples of a partition into scheduler
// job definitions, either one per file or one per partition backed by a
// manifest.
package descriptor

import (
	"errors"
	"fmt"
	"hpc-remap/pkg/config"
	"hpc-remap/pkg/orchestrator"
	"hpc-remap/pkg/partition"
	"hpc-remap/pkg/stage"
	"path/filepath"
	"strings"
)

// Placeholder names bound to the manifest columns in manifest mode.
const (
	InputVar  = "input_file"
	OutputVar = "output_file"
)

// ErrDuplicateDescriptor is returned when two jobs of a plan would write the
// same descriptor file.
var ErrDuplicateDescriptor = errors.New("duplicate descriptor path")

// Profile is the resource profile shared by every job of a run.
type Profile struct {
	ExecutionUser  string
	ContainerImage string
	Memory         string
	Executable     string
}

// Transform holds the cdo options common to every job.
type Transform struct {
	GridFile    string
	Timesteps   string
	Compression string
}

// PerFileArguments returns the fixed flags of a per-file job; the input and
// output paths are appended by BuildPerFile. The grid file is referenced by
// its shared absolute path.
func PerFileArguments(t Transform) string {
	var args []string
	if t.Compression != "" {
		args = append(args, "-z", t.Compression)
	}
	args = append(args, "-O", "-remapbil,"+t.GridFile, "-seltimestep,"+t.Timesteps)
	return strings.Join(args, " ")
}

// TemplateArguments returns the arguments of a manifest job. The grid file
// is referenced by its base name since it is staged next to every task.
func TemplateArguments(t Transform) string {
	args := []string{"-O"}
	if t.Compression != "" {
		args = append(args, "-z", t.Compression)
	}
	args = append(args,
		"-seltimestep,"+t.Timesteps,
		"-remapbil,"+stage.BaseName(t.GridFile),
		"$("+InputVar+")",
		"$("+OutputVar+")",
	)
	return strings.Join(args, " ")
}

// Plan is everything built for one partition.
type Plan struct {
	Jobs []orchestrator.JobDefinition
	// Manifest is set in manifest mode when the partition has files.
	Manifest *Manifest
}

// Builder builds job definitions. It is a pure function of its fields and
// its inputs.
type Builder struct {
	Mode              config.Mode
	Profile           Profile
	BaseArguments     string
	TemplateArguments string
	// StagedFiles are relative to the job directory.
	StagedFiles    []string
	ManifestName   string
	DescriptorName string
	// LogDir is relative to the job directory; empty disables scheduler logs.
	LogDir string
}

// NewBuilder derives a Builder from a completed configuration.
func NewBuilder(cfg config.Config) *Builder {
	t := Transform{GridFile: cfg.GridFile, Timesteps: cfg.Timesteps, Compression: cfg.Compression}
	b := &Builder{
		Mode: cfg.Mode,
		Profile: Profile{
			ExecutionUser:  cfg.ExecutionUser,
			ContainerImage: cfg.ContainerImage,
			Memory:         cfg.Memory,
			Executable:     cfg.Executable,
		},
		BaseArguments:     PerFileArguments(t),
		TemplateArguments: TemplateArguments(t),
		ManifestName:      cfg.ManifestName,
		DescriptorName:    cfg.DescriptorName,
		LogDir:            cfg.LogDir,
	}
	if cfg.Mode == config.Manifest {
		b.StagedFiles = []string{"./" + stage.BaseName(cfg.GridFile)}
	}
	return b
}

func (b *Builder) definition(path, arguments string) orchestrator.JobDefinition {
	return orchestrator.JobDefinition{
		DescriptorPath: path,
		Arguments:      arguments,
		ExecutionUser:  b.Profile.ExecutionUser,
		ContainerImage: b.Profile.ContainerImage,
		Memory:         b.Profile.Memory,
		Executable:     b.Profile.Executable,
	}
}

// BuildPerFile builds the self-contained job for one triple.
func (b *Builder) BuildPerFile(t partition.FileTriple) orchestrator.JobDefinition {
	args := strings.Join([]string{b.BaseArguments, t.Input, t.Output}, " ")
	def := b.definition(t.Job, args)
	if b.LogDir != "" {
		def.LogPrefix = filepath.Join(filepath.Dir(t.Job), b.LogDir)
	}
	return def
}

// BuildManifestJob builds the single job of a partition and the manifest its
// queue directive reads. Manifest rows follow the order of triples.
func (b *Builder) BuildManifestJob(jobDir string, triples []partition.FileTriple) (orchestrator.JobDefinition, Manifest, error) {
	manifest, err := NewManifest(filepath.Join(jobDir, b.ManifestName), triples)
	if err != nil {
		return orchestrator.JobDefinition{}, Manifest{}, err
	}

	def := b.definition(filepath.Join(jobDir, b.DescriptorName), b.TemplateArguments)
	def.StagedFiles = append([]string(nil), b.StagedFiles...)
	if b.LogDir != "" {
		def.LogPrefix = filepath.Join(jobDir, b.LogDir)
	}
	def.Queue = &orchestrator.QueueDirective{
		Variables: []string{InputVar, OutputVar},
		From:      manifest.Path,
	}
	return def, manifest, nil
}

// Build dispatches on the mode. A partition without files yields an empty
// plan.
func (b *Builder) Build(layout partition.Layout) (Plan, error) {
	if len(layout.Triples) == 0 {
		return Plan{}, nil
	}

	var plan Plan
	switch b.Mode {
	case config.PerFile:
		plan.Jobs = make([]orchestrator.JobDefinition, 0, len(layout.Triples))
		for _, t := range layout.Triples {
			plan.Jobs = append(plan.Jobs, b.BuildPerFile(t))
		}
	case config.Manifest:
		def, manifest, err := b.BuildManifestJob(layout.JobDir, layout.Triples)
		if err != nil {
			return Plan{}, err
		}
		plan.Jobs = []orchestrator.JobDefinition{def}
		plan.Manifest = &manifest
	default:
		return Plan{}, fmt.Errorf("unknown submission mode %q", b.Mode)
	}

	seen := make(map[string]bool, len(plan.Jobs))
	for _, def := range plan.Jobs {
		if seen[def.DescriptorPath] {
			return Plan{}, fmt.Errorf("%w: %s", ErrDuplicateDescriptor, def.DescriptorPath)
		}
		seen[def.DescriptorPath] = true
	}
	return plan, nil
}
