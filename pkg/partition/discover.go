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
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultIgnoreFile is read from the source root when present. It uses the
// .dockerignore syntax.
const DefaultIgnoreFile = ".remapignore"

// DiscoverOptions tunes input discovery.
type DiscoverOptions struct {
	// Extension of the data files, without the dot.
	Extension string
	// Exclude patterns drop matching file names even if they match the
	// partition pattern.
	Exclude []string
	// IgnoreFile overrides DefaultIgnoreFile. Set to "-" to skip it.
	IgnoreFile string
}

// Discover returns the files directly under sourceRoot that belong to key,
// in directory listing order. A missing sourceRoot yields no files and no
// error: the partition simply has no data yet.
func Discover(fs afero.Fs, sourceRoot string, key Key, opts DiscoverOptions) ([]string, error) {
	info, err := fs.Stat(sourceRoot)
	if os.IsNotExist(err) {
		logrus.Debugf("Source root %q does not exist, no files for %s", sourceRoot, key)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat source root %q", sourceRoot)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("source root %q is not a directory", sourceRoot)
	}

	entries, err := afero.ReadDir(fs, sourceRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list source root %q", sourceRoot)
	}

	ignore, err := readIgnorePatterns(fs, sourceRoot, opts)
	if err != nil {
		return nil, err
	}

	pattern := key.Pattern(opts.Extension)
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid partition pattern %q", pattern)
		}
		if !matched {
			continue
		}
		if ignore != nil {
			excluded, err := ignore.MatchesOrParentMatches(name)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to check ignore patterns for %q", name)
			}
			if excluded {
				logrus.Debugf("Ignoring %q", name)
				continue
			}
		}
		files = append(files, filepath.Join(sourceRoot, name))
	}
	return files, nil
}

// readIgnorePatterns combines opts.Exclude with the patterns of the ignore
// file in dir. It returns nil when there is nothing to exclude.
func readIgnorePatterns(fs afero.Fs, dir string, opts DiscoverOptions) (*patternmatcher.PatternMatcher, error) {
	patterns := make([]string, len(opts.Exclude))
	copy(patterns, opts.Exclude)

	name := opts.IgnoreFile
	if name == "" {
		name = DefaultIgnoreFile
	}
	if name != "-" {
		ignorePath := filepath.Join(dir, name)
		file, err := fs.Open(ignorePath)
		switch {
		case err == nil:
			defer file.Close()
			filePatterns, err := ignorefile.ReadAll(file)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read ignore file %q", ignorePath)
			}
			patterns = append(patterns, filePatterns...)
			logrus.Debugf("Found %d patterns in %q", len(filePatterns), ignorePath)
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "failed to open ignore file %q", ignorePath)
		}
	}

	if len(patterns) == 0 {
		return nil, nil
	}
	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pattern matcher")
	}
	return matcher, nil
}
