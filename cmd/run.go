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

package cmd

import (
	"fmt"
	"hpc-remap/pkg/config"
	"hpc-remap/pkg/image"
	"hpc-remap/pkg/logging"
	"hpc-remap/pkg/orchestrator/htcondor"
	"hpc-remap/pkg/partition"
	"hpc-remap/pkg/run"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// generateOptions holds the flags of the root command. Configuration values
// given on the command line override the configuration file.
type generateOptions struct {
	partitionStart int
	partitionEnd   int
	imageType      string
	year           int
	report         string

	values config.Config
}

var generate generateOptions

func init() {
	generate.addFlags(rootCmd.Flags())
}

func (o *generateOptions) addFlags(f *pflag.FlagSet) {
	f.IntVar(&o.partitionStart, "partition-start", 0, "First year to process in per-file mode.")
	f.IntVar(&o.partitionEnd, "partition-end", 0, "Last year to process in per-file mode, inclusive.")
	f.StringVar(&o.imageType, "image-type", "", "Image type to process in manifest mode: SID or SIS.")
	f.IntVar(&o.year, "year", 0, "Year to process in manifest mode.")
	f.StringVar(&o.report, "report", "", "Write a YAML report of the run to this file.")

	f.StringVar(&o.values.SourceRoot, "source-root", "", "Directory holding the input NetCDF files.")
	f.StringVar(&o.values.OutputRoot, "output-root", "", "Root of the remapped output directories.")
	f.StringVar(&o.values.JobRoot, "job-root", "", "Root of the job descriptor directories.")
	f.StringVar(&o.values.Memory, "memory", "", "Memory requested per job, e.g. 4G.")
	f.StringVar(&o.values.ContainerImage, "container-image", "", "Container image the jobs run in.")
	f.StringVar(&o.values.Executable, "executable", "", "Absolute path of cdo inside the container.")
	f.StringVar(&o.values.ExecutionUser, "execution-user", "", "User the jobs run as.")
	f.StringVar(&o.values.GridFile, "grid-file", "", "Target grid description, a local path or a URL in manifest mode.")
	f.IntVar(&o.values.Workers, "workers", 1, "Number of partitions processed concurrently.")
	f.BoolVar(&o.values.ContinueOnPartitionError, "continue-on-error", false, "Keep processing partitions after one fails.")
	f.BoolVar(&o.values.DryRun, "dry-run", false, "Write descriptors without submitting them.")
	f.BoolVar(&o.values.PinImage, "pin-image", false, "Resolve the container image to a digest before writing descriptors.")
}

// mode tells which mode the command line selects.
func (o *generateOptions) mode(f *pflag.FlagSet) (config.Mode, error) {
	perFile := f.Changed("partition-start") || f.Changed("partition-end")
	manifest := f.Changed("image-type") || f.Changed("year")
	switch {
	case perFile && manifest:
		return "", fmt.Errorf("--partition-start/--partition-end cannot be combined with --image-type/--year")
	case perFile:
		if !f.Changed("partition-start") || !f.Changed("partition-end") {
			return "", fmt.Errorf("--partition-start and --partition-end must be given together")
		}
		return config.PerFile, nil
	case manifest:
		if !f.Changed("image-type") || !f.Changed("year") {
			return "", fmt.Errorf("--image-type and --year must be given together")
		}
		return config.Manifest, nil
	default:
		return "", fmt.Errorf("either --partition-start and --partition-end, or --image-type and --year, are required")
	}
}

func (o *generateOptions) applyOverrides(f *pflag.FlagSet, cfg *config.Config) {
	strs := map[string][2]*string{
		"source-root":     {&cfg.SourceRoot, &o.values.SourceRoot},
		"output-root":     {&cfg.OutputRoot, &o.values.OutputRoot},
		"job-root":        {&cfg.JobRoot, &o.values.JobRoot},
		"memory":          {&cfg.Memory, &o.values.Memory},
		"container-image": {&cfg.ContainerImage, &o.values.ContainerImage},
		"executable":      {&cfg.Executable, &o.values.Executable},
		"execution-user":  {&cfg.ExecutionUser, &o.values.ExecutionUser},
		"grid-file":       {&cfg.GridFile, &o.values.GridFile},
	}
	for name, p := range strs {
		if f.Changed(name) {
			*p[0] = *p[1]
		}
	}
	if f.Changed("workers") {
		cfg.Workers = o.values.Workers
	}
	if f.Changed("continue-on-error") {
		cfg.ContinueOnPartitionError = o.values.ContinueOnPartitionError
	}
	if f.Changed("dry-run") {
		cfg.DryRun = o.values.DryRun
	}
	if f.Changed("pin-image") {
		cfg.PinImage = o.values.PinImage
	}
}

// load builds the validated configuration and the partitions to process.
func (o *generateOptions) load(f *pflag.FlagSet, configFile string) (config.Config, []partition.Key, error) {
	mode, err := o.mode(f)
	if err != nil {
		return config.Config{}, nil, err
	}

	cfg := config.Default()
	if configFile != "" {
		if err := config.Load(configFile, &cfg); err != nil {
			return config.Config{}, nil, err
		}
	}
	if cfg.Mode != "" && cfg.Mode != mode {
		logging.Warn("Ignoring mode %q from %s, the command line selects %s mode", cfg.Mode, configFile, mode)
	}
	cfg.Mode = mode
	o.applyOverrides(f, &cfg)

	var keys []partition.Key
	if mode == config.Manifest {
		tag, err := partition.ParseImageType(o.imageType)
		if err != nil {
			return config.Config{}, nil, err
		}
		if o.year < 1 {
			return config.Config{}, nil, fmt.Errorf("--year must be a positive year, got %d", o.year)
		}
		cfg.Tag = string(tag)
		keys = []partition.Key{{Year: o.year, Tag: tag}}
	}

	if err := cfg.Complete(); err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	if mode == config.PerFile {
		tag, err := partition.ParseImageType(cfg.Tag)
		if err != nil {
			return config.Config{}, nil, err
		}
		keys, err = partition.YearRange(o.partitionStart, o.partitionEnd, tag)
		if err != nil {
			return config.Config{}, nil, err
		}
	}
	return cfg, keys, nil
}

func runGenerateCmd(cmd *cobra.Command, args []string) {
	cfg, keys, err := generate.load(cmd.Flags(), configFile)
	if err != nil {
		logging.Fatal("%v", err)
	}

	if cfg.PinImage {
		pinned, err := image.Pin(cmd.Context(), cfg.ContainerImage, cfg.ImagePlatform)
		if err != nil {
			logging.Fatal("%v", err)
		}
		cfg.ContainerImage = pinned
	}

	fs := afero.NewOsFs()
	client := htcondor.NewClient(fs, htcondor.WithSubmitCommand(cfg.SubmitCommand))
	driver := run.NewDriver(cfg, client, run.WithFs(fs))
	summary := driver.RunAll(cmd.Context(), keys)

	if generate.report != "" {
		if err := writeReport(generate.report, summary); err != nil {
			logging.Error("%v", err)
		} else {
			logging.Info("Report written to %s", generate.report)
		}
	}
	printSummary(cmd.OutOrStdout(), summary)

	if err := summary.Err(); err != nil {
		logging.Fatal("%d of %d partitions failed", len(summary.Failed()), len(summary.Partitions))
	}
}

func writeReport(path string, s run.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err := s.WriteReport(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, s run.Summary) {
	ok := color.New(color.FgGreen, color.Bold)
	failed := color.New(color.FgRed, color.Bold)
	skipped := color.New(color.FgYellow)

	for _, p := range s.Partitions {
		submitted := 0
		for _, sub := range p.Submissions {
			if sub.Err == nil {
				submitted++
			}
		}
		switch {
		case p.Skipped:
			skipped.Fprintf(w, "%-10s skipped\n", p.Key)
		case p.Err != nil:
			failed.Fprintf(w, "%-10s failed   %d files, %d of %d jobs submitted\n", p.Key, p.Files, submitted, len(p.Descriptors))
		default:
			ok.Fprintf(w, "%-10s ok       %d files, %d of %d jobs submitted\n", p.Key, p.Files, submitted, len(p.Descriptors))
		}
	}
	fmt.Fprintf(w, "Run %s: %d jobs submitted\n", s.RunID, s.Submitted())
}
