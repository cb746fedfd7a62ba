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

package run

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Summary collects the outcomes of a RunAll call.
type Summary struct {
	RunID      string
	Partitions []PartitionOutcome
}

// Failed returns the outcomes carrying an error.
func (s Summary) Failed() []PartitionOutcome {
	var failed []PartitionOutcome
	for _, p := range s.Partitions {
		if p.Err != nil {
			failed = append(failed, p)
		}
	}
	return failed
}

// Submitted counts successful submissions across partitions.
func (s Summary) Submitted() int {
	n := 0
	for _, p := range s.Partitions {
		for _, sub := range p.Submissions {
			if sub.Err == nil {
				n++
			}
		}
	}
	return n
}

// Err joins the errors of every failed partition. It is nil when the whole
// run succeeded.
func (s Summary) Err() error {
	var errs []error
	for _, p := range s.Failed() {
		errs = append(errs, p.Err)
	}
	return errors.Join(errs...)
}

type submissionReport struct {
	Descriptor string `yaml:"descriptor"`
	ClusterID  string `yaml:"cluster_id,omitempty"`
	Error      string `yaml:"error,omitempty"`
}

type partitionReport struct {
	Partition   string             `yaml:"partition"`
	Status      string             `yaml:"status"`
	Files       int                `yaml:"files"`
	JobDir      string             `yaml:"job_dir,omitempty"`
	Descriptors []string           `yaml:"descriptors,omitempty"`
	Submissions []submissionReport `yaml:"submissions,omitempty"`
	Error       string             `yaml:"error,omitempty"`
}

type runReport struct {
	RunID      string            `yaml:"run_id"`
	Submitted  int               `yaml:"submitted"`
	Partitions []partitionReport `yaml:"partitions"`
}

func status(p PartitionOutcome) string {
	switch {
	case p.Skipped:
		return "skipped"
	case p.Err != nil:
		return "failed"
	default:
		return "ok"
	}
}

// WriteReport writes s to w as YAML.
func (s Summary) WriteReport(w io.Writer) error {
	r := runReport{RunID: s.RunID, Submitted: s.Submitted(), Partitions: make([]partitionReport, 0, len(s.Partitions))}
	for _, p := range s.Partitions {
		pr := partitionReport{
			Partition:   p.Key.String(),
			Status:      status(p),
			Files:       p.Files,
			JobDir:      p.JobDir,
			Descriptors: p.Descriptors,
		}
		if p.Err != nil {
			pr.Error = p.Err.Error()
		}
		for _, sub := range p.Submissions {
			sr := submissionReport{Descriptor: sub.DescriptorPath, ClusterID: sub.ID}
			if sub.Err != nil {
				sr.Error = sub.Err.Error()
			}
			pr.Submissions = append(pr.Submissions, sr)
		}
		r.Partitions = append(r.Partitions, pr)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}
	return enc.Close()
}
