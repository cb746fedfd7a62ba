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

package partition

import (
	"bytes"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	// YearDirFormat names partition directories after the year, e.g. "2005".
	YearDirFormat = "{{.Year}}"
	// TaggedDirFormat names partition directories after tag and year,
	// e.g. "00_SID_2005_remap".
	TaggedDirFormat = "00_{{.Tag}}_{{.Year}}_remap"
	// DefaultJobExtension is appended to the input stem for per-file jobs.
	DefaultJobExtension = "job"
)

// FileTriple ties one input file to its output file and job descriptor.
type FileTriple struct {
	Input  string
	Output string
	Job    string
}

// Layout is the result of Derive for one partition.
type Layout struct {
	Key       Key
	OutputDir string
	JobDir    string
	Triples   []FileTriple
}

// DeriveOptions tunes path derivation.
type DeriveOptions struct {
	// DirFormat is a text/template rendered with the Key to name the
	// partition sub-directory. Defaults to YearDirFormat.
	DirFormat string
	// JobExtension defaults to DefaultJobExtension.
	JobExtension string
}

// DirName renders format for key. The result must be a single path element.
func DirName(format string, key Key) (string, error) {
	if format == "" {
		format = YearDirFormat
	}
	tmpl, err := template.New("partitionDir").Option("missingkey=error").Parse(format)
	if err != nil {
		return "", errors.Wrapf(err, "failed to parse partition directory format %q", format)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, key); err != nil {
		return "", errors.Wrapf(err, "failed to render partition directory format %q", format)
	}
	name := buf.String()
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, filepath.Separator) {
		return "", errors.Errorf("partition directory format %q renders to invalid name %q", format, name)
	}
	return name, nil
}

// Derive computes one FileTriple per input, in input order, and creates the
// partition's output and job directories. Creation is idempotent. On failure
// nothing already created is removed.
func Derive(fs afero.Fs, outputRoot, jobRoot string, key Key, inputs []string, opts DeriveOptions) (Layout, error) {
	dir, err := DirName(opts.DirFormat, key)
	if err != nil {
		return Layout{}, err
	}
	ext := opts.JobExtension
	if ext == "" {
		ext = DefaultJobExtension
	}

	layout := Layout{
		Key:       key,
		OutputDir: filepath.Join(outputRoot, dir),
		JobDir:    filepath.Join(jobRoot, dir),
	}
	for _, d := range []string{layout.OutputDir, layout.JobDir} {
		if err := fs.MkdirAll(d, 0o755); err != nil {
			return Layout{}, errors.Wrapf(err, "failed to create directory %q", d)
		}
	}

	layout.Triples = make([]FileTriple, 0, len(inputs))
	for _, input := range inputs {
		base := filepath.Base(input)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		layout.Triples = append(layout.Triples, FileTriple{
			Input:  input,
			Output: filepath.Join(layout.OutputDir, base),
			Job:    filepath.Join(layout.JobDir, stem+"."+ext),
		})
	}
	return layout, nil
}
