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

// Package image resolves container image references for job descriptors.
package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/sirupsen/logrus"
)

// DockerPlatform represents the platform the jobs' image must run on.
type DockerPlatform string

const (
	LinuxAMD64 DockerPlatform = "linux/amd64"
	LinuxARM64 DockerPlatform = "linux/arm64"
)

// ParsePlatform converts a platform string (e.g., "linux/amd64") into a
// v1.Platform.
func ParsePlatform(platformStr string) (v1.Platform, error) {
	parts := strings.Split(platformStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return v1.Platform{}, fmt.Errorf("invalid platform format: %q, expected \"os/arch\"", platformStr)
	}
	return v1.Platform{
		OS:           parts[0],
		Architecture: parts[1],
	}, nil
}

// Pin resolves ref to a digest reference, so that every job of a run uses
// the same image even if the tag moves while jobs are queued. References
// that already carry a digest are returned unchanged. An empty platform
// resolves the digest of whatever the tag points to, possibly an index.
func Pin(ctx context.Context, ref string, platform string) (string, error) {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return "", fmt.Errorf("failed to parse image reference %q: %w", ref, err)
	}
	if d, ok := parsed.(name.Digest); ok {
		return d.String(), nil
	}

	opts := []crane.Option{crane.WithContext(ctx)}
	if platform != "" {
		p, err := ParsePlatform(platform)
		if err != nil {
			return "", err
		}
		opts = append(opts, crane.WithPlatform(&p))
	}

	logrus.Debugf("Resolving digest of %s", parsed)
	digest, err := crane.Digest(parsed.String(), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to resolve digest of image %q: %w", ref, err)
	}
	pinned := parsed.Context().Digest(digest).String()
	logrus.Infof("Pinned image %s to %s", ref, pinned)
	return pinned, nil
}
