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

// Package run drives partitions through discovery, job creation, saving and
// submission.
package run

import (
	"context"
	"errors"
	"fmt"
	"hpc-remap/pkg/config"
	"hpc-remap/pkg/descriptor"
	"hpc-remap/pkg/logging"
	"hpc-remap/pkg/orchestrator"
	"hpc-remap/pkg/partition"
	"hpc-remap/pkg/stage"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// SubmissionResult is the outcome of submitting one descriptor: either an
// ID or an Err.
type SubmissionResult struct {
	DescriptorPath string
	ID             string
	Err            error
}

// PartitionOutcome is everything that happened to one partition.
type PartitionOutcome struct {
	Key       partition.Key
	Files     int
	OutputDir string
	JobDir    string
	// Descriptors lists the descriptor files written, in build order.
	Descriptors []string
	// Submissions has one entry per attempted submission, in build order.
	Submissions []SubmissionResult
	// Skipped is set when the partition never started.
	Skipped bool
	Err     error
}

// Driver runs partitions for one configuration.
type Driver struct {
	Fs        afero.Fs
	Config    config.Config
	Scheduler orchestrator.Scheduler
	Builder   *descriptor.Builder
	Stager    stage.Stager
}

// Option configures a Driver.
type Option func(*Driver)

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(d *Driver) { d.Fs = fs }
}

// WithStager replaces stage.Stage.
func WithStager(s stage.Stager) Option {
	return func(d *Driver) { d.Stager = s }
}

// NewDriver creates a Driver for a completed and validated cfg.
func NewDriver(cfg config.Config, sched orchestrator.Scheduler, opts ...Option) *Driver {
	d := &Driver{
		Fs:        afero.NewOsFs(),
		Config:    cfg,
		Scheduler: sched,
		Builder:   descriptor.NewBuilder(cfg),
		Stager:    stage.Stage,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes one partition. Each phase is applied to every job of the
// partition before the next one starts. Failures before submission abort
// the partition without removing what was already written; submission
// failures are recorded per descriptor.
func (d *Driver) Run(ctx context.Context, key partition.Key) PartitionOutcome {
	cfg := d.Config
	out := PartitionOutcome{Key: key}
	log := logging.WithFields(logrus.Fields{"partition": key.String()})
	fail := func(kind error, path string, err error) PartitionOutcome {
		out.Err = &PartitionError{Key: key, Kind: kind, Path: path, Err: err}
		return out
	}

	inputs, err := partition.Discover(d.Fs, cfg.SourceRoot, key, partition.DiscoverOptions{
		Extension: cfg.Extension,
		Exclude:   cfg.Exclude,
	})
	if err != nil {
		return fail(ErrDiscovery, cfg.SourceRoot, err)
	}
	out.Files = len(inputs)
	log.Debugf("Found %d files matching %s in %s", len(inputs), key.Pattern(cfg.Extension), cfg.SourceRoot)

	layout, err := partition.Derive(d.Fs, cfg.OutputRoot, cfg.JobRoot, key, inputs, partition.DeriveOptions{
		DirFormat:    cfg.PartitionDir,
		JobExtension: cfg.JobExtension,
	})
	if err != nil {
		return fail(ErrDirectoryCreation, cfg.JobRoot, err)
	}
	out.OutputDir = layout.OutputDir
	out.JobDir = layout.JobDir
	if len(inputs) == 0 {
		log.Warnf("No input files in %s, nothing to submit", cfg.SourceRoot)
	}

	plan, err := d.Builder.Build(layout)
	if err != nil {
		return fail(ErrBuild, layout.JobDir, err)
	}
	jobs := make([]orchestrator.Job, 0, len(plan.Jobs))
	for _, def := range plan.Jobs {
		job, err := d.Scheduler.Build(def)
		if err != nil {
			return fail(ErrBuild, def.DescriptorPath, err)
		}
		jobs = append(jobs, job)
	}
	log.Info("Job creation: OK")

	if plan.Manifest != nil {
		if len(d.Builder.StagedFiles) > 0 {
			staged, err := d.Stager(ctx, cfg.GridFile, layout.JobDir)
			if err != nil {
				return fail(ErrPersist, cfg.GridFile, err)
			}
			log.Debugf("Staged %s", staged)
		}
		if err := descriptor.WriteManifest(d.Fs, *plan.Manifest); err != nil {
			return fail(ErrPersist, plan.Manifest.Path, err)
		}
	}
	for _, job := range jobs {
		if err := d.Scheduler.Persist(job); err != nil {
			return fail(ErrPersist, job.Definition.DescriptorPath, err)
		}
		out.Descriptors = append(out.Descriptors, job.Definition.DescriptorPath)
	}
	log.Info("Job saving: OK")

	if cfg.DryRun {
		log.Infof("Dry run, not submitting %d jobs", len(jobs))
		return out
	}

	var failed []error
	for i, job := range jobs {
		path := job.Definition.DescriptorPath
		if err := ctx.Err(); err != nil {
			out.Submissions = append(out.Submissions, SubmissionResult{DescriptorPath: path, Err: err})
			failed = append(failed, fmt.Errorf("%s: %w", path, err))
			break
		}
		id, err := d.Scheduler.Submit(ctx, job)
		out.Submissions = append(out.Submissions, SubmissionResult{DescriptorPath: path, ID: id, Err: err})
		if err != nil {
			log.Warnf("Failed to submit %s: %v", path, err)
			failed = append(failed, fmt.Errorf("%s: %w", path, err))
			if cfg.StopOnSubmitError {
				log.Warnf("Stopping submission, %d jobs left unsubmitted", len(jobs)-i-1)
				break
			}
			continue
		}
		log.Debugf("Submitted %s to cluster %s", path, id)
	}
	if len(failed) > 0 {
		log.Warnf("Job submission: %d of %d failed", len(failed), len(jobs))
		return fail(ErrSubmission, layout.JobDir, errors.Join(failed...))
	}
	log.Info("Job submission: OK")
	return out
}

func describe(mode config.Mode, key partition.Key) string {
	if mode == config.PerFile {
		return fmt.Sprintf("year: %d", key.Year)
	}
	return "partition: " + key.String()
}

// RunAll runs every key and collects their outcomes in key order. With one
// worker partitions run one after the other; with more they run
// concurrently, each still going through its phases in order. Unless
// ContinueOnPartitionError is set, the first failed partition stops the run
// and the partitions not yet started are reported as skipped.
func (d *Driver) RunAll(ctx context.Context, keys []partition.Key) Summary {
	s := Summary{RunID: uuid.NewString(), Partitions: make([]PartitionOutcome, len(keys))}
	logging.Info("Run %s: %d partitions in %s mode", s.RunID, len(keys), d.Config.Mode)

	var stop atomic.Bool
	runOne := func(i int, key partition.Key) {
		if stop.Load() {
			s.Partitions[i] = PartitionOutcome{Key: key, Skipped: true}
			return
		}
		if err := ctx.Err(); err != nil {
			s.Partitions[i] = PartitionOutcome{Key: key, Skipped: true, Err: err}
			return
		}
		logging.Info("Starting %s", describe(d.Config.Mode, key))
		out := d.Run(ctx, key)
		s.Partitions[i] = out
		if out.Err != nil {
			logging.Error("%v", out.Err)
			if !d.Config.ContinueOnPartitionError {
				stop.Store(true)
			}
		}
		logging.Info("Finished %s", describe(d.Config.Mode, key))
	}

	if d.Config.Workers <= 1 {
		for i, key := range keys {
			runOne(i, key)
		}
		return s
	}

	var g errgroup.Group
	g.SetLimit(d.Config.Workers)
	for i, key := range keys {
		g.Go(func() error {
			runOne(i, key)
			return nil
		})
	}
	_ = g.Wait()
	return s
}
