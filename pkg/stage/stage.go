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

// Package stage places auxiliary files, such as the remap grid description,
// next to the descriptors that reference them.
package stage

import (
	"context"
	"fmt"
	"hpc-remap/pkg/logging"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
	cp "github.com/otiai10/copy"
)

// Stager copies src into dstDir and returns the staged file path.
type Stager func(ctx context.Context, src, dstDir string) (string, error)

// IsRemote reports whether src must be fetched rather than copied.
func IsRemote(src string) bool {
	return strings.Contains(src, "://") || strings.Contains(src, "::")
}

// BaseName returns the file name src is staged under.
func BaseName(src string) string {
	if IsRemote(src) {
		if i := strings.LastIndex(src, "::"); i >= 0 {
			src = src[i+2:]
		}
		if i := strings.IndexAny(src, "?#"); i >= 0 {
			src = src[:i]
		}
		return path.Base(src)
	}
	return filepath.Base(src)
}

// Stage places src in dstDir. Local files are copied, remote sources are
// downloaded. The source itself is never modified, so concurrent partitions
// may stage the same file.
func Stage(ctx context.Context, src, dstDir string) (string, error) {
	dst := filepath.Join(dstDir, BaseName(src))
	if IsRemote(src) {
		logging.Debug("fetching %s into %s", src, dst)
		client := &getter.Client{
			Ctx:  ctx,
			Src:  src,
			Dst:  dst,
			Mode: getter.ClientModeFile,
		}
		if err := client.Get(); err != nil {
			return "", fmt.Errorf("failed to fetch %s: %w", src, err)
		}
		return dst, nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("failed to stage %s: is a directory", src)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	logging.Debug("copying %s into %s", src, dst)
	if err := cp.Copy(src, dst, cp.Options{Sync: true}); err != nil {
		return "", fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return dst, nil
}
