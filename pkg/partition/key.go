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

// Package partition resolves partition keys to input files and derives the
// output and job paths for each of them.
package partition

import (
	"fmt"
	"strings"

	"github.com/agext/levenshtein"
)

// ImageType is the satellite channel tag that prefixes every input file name.
type ImageType string

const (
	// SID is the direct irradiance channel.
	SID ImageType = "SID"
	// SIS is the global irradiance channel.
	SIS ImageType = "SIS"
)

// ImageTypes lists every recognized image type.
var ImageTypes = []ImageType{SID, SIS}

// ParseImageType validates s against ImageTypes. The error suggests the
// closest known type for typos such as "SDI".
func ParseImageType(s string) (ImageType, error) {
	for _, it := range ImageTypes {
		if string(it) == s {
			return it, nil
		}
	}
	if hint := closestImageType(s); hint != "" {
		return "", fmt.Errorf("unknown image type %q, did you mean %q?", s, hint)
	}
	return "", fmt.Errorf("unknown image type %q, expected one of %s", s, joinImageTypes())
}

func closestImageType(s string) ImageType {
	best, bestDist := ImageType(""), 3
	for _, it := range ImageTypes {
		if d := levenshtein.Distance(strings.ToUpper(s), string(it), nil); d < bestDist {
			best, bestDist = it, d
		}
	}
	return best
}

func joinImageTypes() string {
	names := make([]string, len(ImageTypes))
	for i, it := range ImageTypes {
		names[i] = string(it)
	}
	return strings.Join(names, ", ")
}

// Key identifies one partition of work.
type Key struct {
	Year int
	Tag  ImageType
}

// Pattern is the glob every input file of the partition matches,
// e.g. "SIDin2005*.nc".
func (k Key) Pattern(ext string) string {
	return fmt.Sprintf("%sin%d*.%s", k.Tag, k.Year, ext)
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Tag, k.Year)
}

// YearRange returns one key per year in [start, end], all sharing tag.
func YearRange(start, end int, tag ImageType) ([]Key, error) {
	if start > end {
		return nil, fmt.Errorf("invalid partition range: start year %d is after end year %d", start, end)
	}
	keys := make([]Key, 0, end-start+1)
	for year := start; year <= end; year++ {
		keys = append(keys, Key{Year: year, Tag: tag})
	}
	return keys, nil
}
