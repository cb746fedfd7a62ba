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
	"hpc-remap/pkg/partition"
)

// Kinds of partition failures. Test with errors.Is.
var (
	ErrDiscovery         = errors.New("discovery failed")
	ErrDirectoryCreation = errors.New("directory creation failed")
	ErrBuild             = errors.New("job creation failed")
	ErrPersist           = errors.New("job saving failed")
	ErrSubmission        = errors.New("job submission failed")
)

// PartitionError is the error of a failed partition.
type PartitionError struct {
	Key partition.Key
	// Kind is one of the Err* kinds above.
	Kind error
	// Path is the file or directory the failure is about, if any.
	Path string
	Err  error
}

func (e *PartitionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("partition %s: %v: %v", e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("partition %s: %v for %s: %v", e.Key, e.Kind, e.Path, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *PartitionError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
