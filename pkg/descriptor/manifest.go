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

package descriptor

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"hpc-remap/pkg/partition"
	"strings"

	"github.com/spf13/afero"
)

// ErrInvalidManifestPath is returned for paths the manifest format cannot
// carry: the scheduler splits rows on commas and lines without quoting.
var ErrInvalidManifestPath = errors.New("path cannot be written to a manifest")

// ManifestRow is one task of a manifest job.
type ManifestRow struct {
	Input  string
	Output string
}

// Manifest lists the tasks of a manifest job. Row i is task i.
type Manifest struct {
	Path string
	Rows []ManifestRow
}

// NewManifest builds the manifest for triples, preserving their order.
func NewManifest(path string, triples []partition.FileTriple) (Manifest, error) {
	m := Manifest{Path: path, Rows: make([]ManifestRow, 0, len(triples))}
	for _, t := range triples {
		for _, p := range []string{t.Input, t.Output} {
			if strings.ContainsAny(p, ",\"\r\n") {
				return Manifest{}, fmt.Errorf("%w: %q", ErrInvalidManifestPath, p)
			}
		}
		m.Rows = append(m.Rows, ManifestRow{Input: t.Input, Output: t.Output})
	}
	return m, nil
}

// WriteManifest writes m to m.Path, one "input,output" line per row.
func WriteManifest(fs afero.Fs, m Manifest) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range m.Rows {
		if err := w.Write([]string{row.Input, row.Output}); err != nil {
			return fmt.Errorf("failed to encode manifest row %v: %w", row, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := afero.WriteFile(fs, m.Path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", m.Path, err)
	}
	return nil
}

// ReadManifest parses a manifest written by WriteManifest.
func ReadManifest(fs afero.Fs, path string) (Manifest, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = 2
	records, err := r.ReadAll()
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	m := Manifest{Path: path, Rows: make([]ManifestRow, 0, len(records))}
	for _, rec := range records {
		m.Rows = append(m.Rows, ManifestRow{Input: rec[0], Output: rec[1]})
	}
	return m, nil
}
