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

// Package config holds the validated settings shared by every stage of the
// remap job pipeline. Values default to the SARAH-2 remapping setup and can be
// overridden from a YAML or HCL file and from command-line flags.
package config

import (
	"errors"
	"fmt"
	"hpc-remap/pkg/image"
	"hpc-remap/pkg/partition"
	"hpc-remap/pkg/stage"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Mode selects how descriptors are generated for a partition.
type Mode string

const (
	// PerFile builds one self-contained job per input file.
	PerFile Mode = "per-file"
	// Manifest builds one job per partition expanded from a manifest.
	Manifest Mode = "manifest"
)

// DefaultTimesteps selects every other time step of a 48-step day.
const DefaultTimesteps = "1,3,5,7,9,11,13,15,17,19,21,23,25,27,29,31,33,35,37,39,41,43,45,47"

// Config is the full set of recognized options.
type Config struct {
	Mode Mode `yaml:"mode" hcl:"mode,optional"`

	SourceRoot   string   `yaml:"source_root" hcl:"source_root,optional"`
	OutputRoot   string   `yaml:"output_root" hcl:"output_root,optional"`
	JobRoot      string   `yaml:"job_root" hcl:"job_root,optional"`
	PartitionDir string   `yaml:"partition_dir" hcl:"partition_dir,optional"`
	Tag          string   `yaml:"tag" hcl:"tag,optional"`
	Extension    string   `yaml:"extension" hcl:"extension,optional"`
	JobExtension string   `yaml:"job_extension" hcl:"job_extension,optional"`
	Exclude      []string `yaml:"exclude" hcl:"exclude,optional"`

	GridFile    string `yaml:"grid_file" hcl:"grid_file,optional"`
	Timesteps   string `yaml:"timesteps" hcl:"timesteps,optional"`
	Compression string `yaml:"compression" hcl:"compression,optional"`

	Memory         string `yaml:"memory" hcl:"memory,optional"`
	ContainerImage string `yaml:"container_image" hcl:"container_image,optional"`
	Executable     string `yaml:"executable" hcl:"executable,optional"`
	ExecutionUser  string `yaml:"execution_user" hcl:"execution_user,optional"`
	PinImage       bool   `yaml:"pin_image" hcl:"pin_image,optional"`
	ImagePlatform  string `yaml:"image_platform" hcl:"image_platform,optional"`

	LogDir         string `yaml:"log_dir" hcl:"log_dir,optional"`
	ManifestName   string `yaml:"manifest_name" hcl:"manifest_name,optional"`
	DescriptorName string `yaml:"descriptor_name" hcl:"descriptor_name,optional"`
	SubmitCommand  string `yaml:"submit_command" hcl:"submit_command,optional"`

	Workers                  int  `yaml:"workers" hcl:"workers,optional"`
	ContinueOnPartitionError bool `yaml:"continue_on_partition_error" hcl:"continue_on_partition_error,optional"`
	StopOnSubmitError        bool `yaml:"stop_on_submit_error" hcl:"stop_on_submit_error,optional"`
	DryRun                   bool `yaml:"dry_run" hcl:"dry_run,optional"`
}

// Default returns the mode-independent defaults. Call Complete once the mode
// is known to fill in the rest.
func Default() Config {
	return Config{
		Tag:            string(partition.SID),
		Extension:      "nc",
		JobExtension:   partition.DefaultJobExtension,
		GridFile:       "gridfile.txt",
		Timesteps:      DefaultTimesteps,
		Compression:    "zip",
		ContainerImage: "alexgleith/cdo",
		Executable:     "/usr/local/bin/cdo",
		ExecutionUser:  "pvgisproc",
		ImagePlatform:  string(image.LinuxAMD64),
		ManifestName:   "arguments.csv",
		DescriptorName: "job.txt",
		SubmitCommand:  "condor_submit",
		Workers:        1,
	}
}

// Complete fills the options whose defaults depend on the mode and makes the
// filesystem roots absolute.
func (c *Config) Complete() error {
	setDefault := func(field *string, value string) {
		if *field == "" {
			*field = value
		}
	}

	switch c.Mode {
	case PerFile:
		setDefault(&c.SourceRoot, "/eos/jeodpp/data/projects/PVGIS/meteo/sarah2/in_re")
		setDefault(&c.OutputRoot, "/eos/jeodpp/data/projects/PVGIS/mavropa/outs/SID_per_day")
		setDefault(&c.JobRoot, "/eos/jeodpp/data/projects/PVGIS/mavropa/jobs/SID_per_day")
		setDefault(&c.PartitionDir, partition.YearDirFormat)
		setDefault(&c.Memory, "4G")
	case Manifest:
		setDefault(&c.SourceRoot, "/eos/jeodpp/data/projects/PVGIS/meteo/sarah2/in")
		setDefault(&c.OutputRoot, "outs")
		setDefault(&c.JobRoot, "jobs")
		setDefault(&c.PartitionDir, partition.TaggedDirFormat)
		setDefault(&c.Memory, "3G")
		setDefault(&c.LogDir, "logs")
	default:
		return fmt.Errorf("%w: unknown mode %q, expected %q or %q", ErrInvalidConfig, c.Mode, PerFile, Manifest)
	}

	for _, p := range []*string{&c.SourceRoot, &c.OutputRoot, &c.JobRoot, &c.GridFile} {
		if *p == "" || stage.IsRemote(*p) {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve path %q: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

var compressionPattern = regexp.MustCompile(`^(szip|zip(_[1-9])?|zstd(_[1-9][0-9]?)?)$`)

// Validate reports every problem found, joined, each wrapping
// ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, a ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, a...)...))
	}

	if c.Mode != PerFile && c.Mode != Manifest {
		add("unknown mode %q", c.Mode)
	}
	for opt, v := range map[string]string{
		"source_root": c.SourceRoot,
		"output_root": c.OutputRoot,
		"job_root":    c.JobRoot,
		"grid_file":   c.GridFile,
		"extension":   c.Extension,
	} {
		if v == "" {
			add("%s must be set", opt)
		}
	}
	if c.Mode == PerFile && c.IsRemote() {
		add("grid_file %q must be a local path in %s mode, only %s jobs stage it", c.GridFile, PerFile, Manifest)
	}
	if _, err := partition.ParseImageType(c.Tag); err != nil {
		add("tag: %v", err)
	}
	if _, err := partition.DirName(c.PartitionDir, partition.Key{Year: 2000, Tag: partition.SID}); err != nil {
		add("partition_dir: %v", err)
	}
	for opt, v := range map[string]string{
		"job_extension":   c.JobExtension,
		"manifest_name":   c.ManifestName,
		"descriptor_name": c.DescriptorName,
	} {
		if v == "" || strings.ContainsRune(v, filepath.Separator) {
			add("%s %q must be a non-empty file name", opt, v)
		}
	}

	if q, err := resource.ParseQuantity(c.Memory); err != nil {
		add("memory %q: %v", c.Memory, err)
	} else if q.Sign() <= 0 {
		add("memory %q must be positive", c.Memory)
	} else if q.Format == resource.BinarySI {
		add("memory %q: use K, M, G or T suffixes, the scheduler does not understand binary ones", c.Memory)
	}
	if _, err := name.ParseReference(c.ContainerImage); err != nil {
		add("container_image: %v", err)
	}
	if c.ImagePlatform != "" {
		if _, err := image.ParsePlatform(c.ImagePlatform); err != nil {
			add("image_platform: %v", err)
		}
	}
	if !path.IsAbs(c.Executable) {
		add("executable %q must be an absolute path inside the container", c.Executable)
	}
	if err := validateTimesteps(c.Timesteps); err != nil {
		add("timesteps: %v", err)
	}
	if c.Compression != "" && !compressionPattern.MatchString(c.Compression) {
		add("compression %q is not a cdo compression type", c.Compression)
	}
	if c.Workers < 1 {
		add("workers must be at least 1, got %d", c.Workers)
	}
	return errors.Join(errs...)
}

func validateTimesteps(s string) error {
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("%q is not an integer", part)
		}
		if n < 1 {
			return fmt.Errorf("time steps start at 1, got %d", n)
		}
	}
	return nil
}

// IsRemote reports whether the grid file has to be fetched.
func (c *Config) IsRemote() bool {
	return stage.IsRemote(c.GridFile)
}
