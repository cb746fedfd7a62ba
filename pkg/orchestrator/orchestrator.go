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

package orchestrator

import (
	"context"
	"strings"
)

// JobDefinition holds all the necessary parameters to define one unit of
// submittable work. It is general enough to support various schedulers, with
// specific implementations rendering the fields relevant to them.
type JobDefinition struct {
	// DescriptorPath is where the scheduler-specific descriptor is written.
	DescriptorPath string
	// Arguments passed to Executable. In manifest mode they contain
	// placeholders resolved by the scheduler per task.
	Arguments string

	// Resource profile, constant for a whole run.
	ExecutionUser  string
	ContainerImage string
	Memory         string
	Executable     string

	// StagedFiles are copied by the scheduler next to each task.
	StagedFiles []string
	// LogPrefix is the directory receiving the scheduler's stdout, stderr
	// and event logs. Empty means the scheduler default.
	LogPrefix string
	// Queue expands the job into one task per manifest row. Nil queues a
	// single task.
	Queue *QueueDirective
}

// QueueDirective binds manifest columns to argument placeholders.
type QueueDirective struct {
	Variables []string
	From      string
}

func (q QueueDirective) String() string {
	return strings.Join(q.Variables, ",") + " from " + q.From
}

// Job is a JobDefinition rendered into the scheduler's descriptor format.
type Job struct {
	Definition JobDefinition
	Descriptor []byte
}

// Scheduler defines the interface for preparing and submitting jobs on a
// cluster.
type Scheduler interface {
	// Build renders def into a Job. It performs no I/O.
	Build(def JobDefinition) (Job, error)
	// Persist writes the job's descriptor to its DescriptorPath.
	Persist(job Job) error
	// Submit hands a persisted job to the cluster and returns the
	// scheduler's submission id. It does not wait for the job to run.
	Submit(ctx context.Context, job Job) (string, error)
}
