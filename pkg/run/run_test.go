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
	"bytes"
	"context"
	"errors"
	"fmt"
	"hpc-remap/pkg/config"
	"hpc-remap/pkg/descriptor"
	"hpc-remap/pkg/logging"
	"hpc-remap/pkg/orchestrator"
	"hpc-remap/pkg/orchestrator/htcondor"
	"hpc-remap/pkg/partition"
	"hpc-remap/pkg/shell"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

// fakeScheduler writes descriptors to fs and hands out increasing ids.
type fakeScheduler struct {
	fs          afero.Fs
	failPersist map[string]bool
	failSubmit  map[string]bool

	mu        sync.Mutex
	built     []string
	submitted []string
	nextID    int
}

func newFakeScheduler(fs afero.Fs) *fakeScheduler {
	return &fakeScheduler{fs: fs, failPersist: map[string]bool{}, failSubmit: map[string]bool{}}
}

func (f *fakeScheduler) Build(def orchestrator.JobDefinition) (orchestrator.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, def.DescriptorPath)
	return orchestrator.Job{Definition: def, Descriptor: []byte("arguments = " + def.Arguments + "\n")}, nil
}

func (f *fakeScheduler) Persist(job orchestrator.Job) error {
	path := job.Definition.DescriptorPath
	if f.failPersist[filepath.Base(path)] {
		return fmt.Errorf("disk full writing %s", path)
	}
	return afero.WriteFile(f.fs, path, job.Descriptor, 0o644)
}

func (f *fakeScheduler) Submit(_ context.Context, job orchestrator.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := job.Definition.DescriptorPath
	if f.failSubmit[filepath.Base(path)] {
		return "", fmt.Errorf("schedd unavailable")
	}
	f.nextID++
	f.submitted = append(f.submitted, path)
	return strconv.Itoa(f.nextID), nil
}

func testConfig(t *testing.T, mode config.Mode) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Mode = mode
	cfg.SourceRoot = "/in"
	cfg.OutputRoot = "/out"
	cfg.JobRoot = "/jobs"
	cfg.GridFile = "/grid/gridfile.txt"
	if err := cfg.Complete(); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func writeInputs(t *testing.T, fs afero.Fs, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := afero.WriteFile(fs, filepath.Join("/in", name), []byte("netcdf"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	t.Cleanup(func() { logging.SetOutput(os.Stderr) })
	return &buf
}

func assertExists(t *testing.T, fs afero.Fs, path string, want bool) {
	t.Helper()
	got, err := afero.Exists(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Exists(%q) = %v, want %v", path, got, want)
	}
}

func sid(year int) partition.Key {
	return partition.Key{Year: year, Tag: partition.SID}
}

func TestRunPerFile(t *testing.T) {
	logs := captureLogs(t)
	fs := afero.NewMemMapFs()
	writeInputs(t, fs, "SIDin2005_01.nc", "SIDin2005_02.nc", "SISin2005_01.nc", "SIDin2006_01.nc")
	sched := newFakeScheduler(fs)
	d := NewDriver(testConfig(t, config.PerFile), sched, WithFs(fs))

	out := d.Run(context.Background(), sid(2005))
	if out.Err != nil {
		t.Fatalf("Run: %v", out.Err)
	}

	want := PartitionOutcome{
		Key:         sid(2005),
		Files:       2,
		OutputDir:   "/out/2005",
		JobDir:      "/jobs/2005",
		Descriptors: []string{"/jobs/2005/SIDin2005_01.job", "/jobs/2005/SIDin2005_02.job"},
		Submissions: []SubmissionResult{
			{DescriptorPath: "/jobs/2005/SIDin2005_01.job", ID: "1"},
			{DescriptorPath: "/jobs/2005/SIDin2005_02.job", ID: "2"},
		},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}

	content, err := afero.ReadFile(fs, "/jobs/2005/SIDin2005_01.job")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "/in/SIDin2005_01.nc /out/2005/SIDin2005_01.nc") {
		t.Errorf("descriptor does not end with input and output paths: %q", content)
	}

	for _, line := range []string{"Job creation: OK", "Job saving: OK", "Job submission: OK"} {
		if !strings.Contains(logs.String(), line) {
			t.Errorf("logs are missing %q:\n%s", line, logs.String())
		}
	}
	creation := strings.Index(logs.String(), "Job creation: OK")
	saving := strings.Index(logs.String(), "Job saving: OK")
	submission := strings.Index(logs.String(), "Job submission: OK")
	if !(creation < saving && saving < submission) {
		t.Errorf("phases logged out of order:\n%s", logs.String())
	}
}

func TestRunEmptyPartition(t *testing.T) {
	captureLogs(t)
	for name, setup := range map[string]func(afero.Fs){
		"empty root":   func(fs afero.Fs) { _ = fs.MkdirAll("/in", 0o755) },
		"missing root": func(afero.Fs) {},
		"other years":  func(fs afero.Fs) { _ = afero.WriteFile(fs, "/in/SIDin2009_01.nc", nil, 0o644) },
	} {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			setup(fs)
			sched := newFakeScheduler(fs)
			out := NewDriver(testConfig(t, config.PerFile), sched, WithFs(fs)).Run(context.Background(), sid(2030))
			if out.Err != nil {
				t.Fatalf("Run: %v", out.Err)
			}
			if out.Files != 0 || len(out.Descriptors) != 0 || len(out.Submissions) != 0 {
				t.Errorf("empty partition produced work: %+v", out)
			}
			assertExists(t, fs, "/out/2030", true)
			assertExists(t, fs, "/jobs/2030", true)
		})
	}
}

func TestRunDiscoveryError(t *testing.T) {
	captureLogs(t)
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in", []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
	sched := newFakeScheduler(fs)
	out := NewDriver(testConfig(t, config.PerFile), sched, WithFs(fs)).Run(context.Background(), sid(2005))
	if !errors.Is(out.Err, ErrDiscovery) {
		t.Fatalf("Run error = %v, want ErrDiscovery", out.Err)
	}
	var pe *PartitionError
	if !errors.As(out.Err, &pe) || pe.Path != "/in" || pe.Key != sid(2005) {
		t.Errorf("unexpected partition error %#v", pe)
	}
	assertExists(t, fs, "/jobs/2005", false)
}

func TestRunDirectoryCreationError(t *testing.T) {
	captureLogs(t)
	base := afero.NewMemMapFs()
	writeInputs(t, base, "SIDin2005_01.nc")
	fs := afero.NewReadOnlyFs(base)
	sched := newFakeScheduler(fs)
	out := NewDriver(testConfig(t, config.PerFile), sched, WithFs(fs)).Run(context.Background(), sid(2005))
	if !errors.Is(out.Err, ErrDirectoryCreation) {
		t.Fatalf("Run error = %v, want ErrDirectoryCreation", out.Err)
	}
	if len(sched.built) != 0 {
		t.Errorf("jobs were built after directory creation failed: %v", sched.built)
	}
}

func TestRunPersistFailureAbortsPartition(t *testing.T) {
	captureLogs(t)
	fs := afero.NewMemMapFs()
	writeInputs(t, fs, "SIDin2005_01.nc", "SIDin2005_02.nc", "SIDin2005_03.nc")
	sched := newFakeScheduler(fs)
	sched.failPersist["SIDin2005_02.job"] = true

	out := NewDriver(testConfig(t, config.PerFile), sched, WithFs(fs)).Run(context.Background(), sid(2005))
	if !errors.Is(out.Err, ErrPersist) {
		t.Fatalf("Run error = %v, want ErrPersist", out.Err)
	}
	// Everything is built before anything is saved.
	if len(sched.built) != 3 {
		t.Errorf("built %d jobs, want 3", len(sched.built))
	}
	assertExists(t, fs, "/jobs/2005/SIDin2005_01.job", true)
	assertExists(t, fs, "/jobs/2005/SIDin2005_03.job", false)
	if len(sched.submitted) != 0 || len(out.Submissions) != 0 {
		t.Errorf("jobs were submitted after a saving failure: %v", sched.submitted)
	}
	if diff := cmp.Diff([]string{"/jobs/2005/SIDin2005_01.job"}, out.Descriptors); diff != "" {
		t.Errorf("descriptors mismatch (-want +got):\n%s", diff)
	}
}

func TestRunSubmissionFailures(t *testing.T) {
	tests := []struct {
		name       string
		stop       bool
		wantIDs    []string
		wantFailed []bool
	}{
		{"continue", false, []string{"1", "", "2"}, []bool{false, true, false}},
		{"stop", true, []string{"1", ""}, []bool{false, true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			captureLogs(t)
			fs := afero.NewMemMapFs()
			writeInputs(t, fs, "SIDin2005_01.nc", "SIDin2005_02.nc", "SIDin2005_03.nc")
			sched := newFakeScheduler(fs)
			sched.failSubmit["SIDin2005_02.job"] = true
			cfg := testConfig(t, config.PerFile)
			cfg.StopOnSubmitError = tc.stop

			out := NewDriver(cfg, sched, WithFs(fs)).Run(context.Background(), sid(2005))
			if !errors.Is(out.Err, ErrSubmission) {
				t.Fatalf("Run error = %v, want ErrSubmission", out.Err)
			}
			if len(out.Submissions) != len(tc.wantIDs) {
				t.Fatalf("got %d submission results, want %d", len(out.Submissions), len(tc.wantIDs))
			}
			for i, res := range out.Submissions {
				if res.ID != tc.wantIDs[i] {
					t.Errorf("result %d id = %q, want %q", i, res.ID, tc.wantIDs[i])
				}
				if (res.Err != nil) != tc.wantFailed[i] {
					t.Errorf("result %d error = %v, want failure %v", i, res.Err, tc.wantFailed[i])
				}
			}
			// Persisted files are never rolled back.
			for _, name := range []string{"SIDin2005_01.job", "SIDin2005_02.job", "SIDin2005_03.job"} {
				assertExists(t, fs, "/jobs/2005/"+name, true)
			}
		})
	}
}

func TestRunDryRun(t *testing.T) {
	logs := captureLogs(t)
	fs := afero.NewMemMapFs()
	writeInputs(t, fs, "SIDin2005_01.nc")
	sched := newFakeScheduler(fs)
	cfg := testConfig(t, config.PerFile)
	cfg.DryRun = true

	out := NewDriver(cfg, sched, WithFs(fs)).Run(context.Background(), sid(2005))
	if out.Err != nil {
		t.Fatalf("Run: %v", out.Err)
	}
	assertExists(t, fs, "/jobs/2005/SIDin2005_01.job", true)
	if len(sched.submitted) != 0 || len(out.Submissions) != 0 {
		t.Errorf("dry run submitted %v", sched.submitted)
	}
	if strings.Contains(logs.String(), "Job submission: OK") {
		t.Errorf("dry run logged a submission:\n%s", logs.String())
	}
}

func TestRunCancelledContext(t *testing.T) {
	captureLogs(t)
	fs := afero.NewMemMapFs()
	writeInputs(t, fs, "SIDin2005_01.nc", "SIDin2005_02.nc")
	sched := newFakeScheduler(fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewDriver(testConfig(t, config.PerFile), sched, WithFs(fs)).Run(ctx, sid(2005))
	if !errors.Is(out.Err, ErrSubmission) || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("Run error = %v, want a cancelled submission", out.Err)
	}
	if len(sched.submitted) != 0 {
		t.Errorf("submitted %v after cancellation", sched.submitted)
	}
}

// condorRunner stands in for condor_submit and records its invocations.
type condorRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *condorRunner) run(_ context.Context, dir, name string, args ...string) shell.CommandResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{dir, name}, args...))
	return shell.CommandResult{Stdout: fmt.Sprintf("Submitting job(s)..\n2 job(s) submitted to cluster %d.\n", 100+len(r.calls))}
}

func TestRunManifestWithHTCondor(t *testing.T) {
	captureLogs(t)
	fs := afero.NewMemMapFs()
	writeInputs(t, fs, "SISin2007_0101.nc", "SISin2007_0102.nc", "SIDin2007_0101.nc")
	if err := afero.WriteFile(fs, "/grid/gridfile.txt", []byte("gridtype = lonlat\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &condorRunner{}
	client := htcondor.NewClient(fs, htcondor.WithRunner(runner.run))
	stager := func(_ context.Context, src, dstDir string) (string, error) {
		content, err := afero.ReadFile(fs, src)
		if err != nil {
			return "", err
		}
		dst := filepath.Join(dstDir, filepath.Base(src))
		return dst, afero.WriteFile(fs, dst, content, 0o644)
	}
	cfg := testConfig(t, config.Manifest)
	key := partition.Key{Year: 2007, Tag: partition.SIS}

	out := NewDriver(cfg, client, WithFs(fs), WithStager(stager)).Run(context.Background(), key)
	if out.Err != nil {
		t.Fatalf("Run: %v", out.Err)
	}

	jobDir := "/jobs/00_SIS_2007_remap"
	if out.JobDir != jobDir {
		t.Errorf("JobDir = %q, want %q", out.JobDir, jobDir)
	}
	wantSubs := []SubmissionResult{{DescriptorPath: jobDir + "/job.txt", ID: "101"}}
	if diff := cmp.Diff(wantSubs, out.Submissions); diff != "" {
		t.Errorf("submissions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{jobDir, "condor_submit", jobDir + "/job.txt"}}, runner.calls); diff != "" {
		t.Errorf("condor_submit calls mismatch (-want +got):\n%s", diff)
	}

	m, err := descriptor.ReadManifest(fs, jobDir+"/arguments.csv")
	if err != nil {
		t.Fatal(err)
	}
	wantRows := []descriptor.ManifestRow{
		{Input: "/in/SISin2007_0101.nc", Output: "/out/00_SIS_2007_remap/SISin2007_0101.nc"},
		{Input: "/in/SISin2007_0102.nc", Output: "/out/00_SIS_2007_remap/SISin2007_0102.nc"},
	}
	if diff := cmp.Diff(wantRows, m.Rows); diff != "" {
		t.Errorf("manifest rows mismatch (-want +got):\n%s", diff)
	}

	def, err := htcondor.ReadJob(fs, jobDir+"/job.txt")
	if err != nil {
		t.Fatalf("ReadJob: %v", err)
	}
	if def.Queue == nil || def.Queue.From != jobDir+"/arguments.csv" {
		t.Errorf("queue directive = %+v, want manifest %s", def.Queue, jobDir+"/arguments.csv")
	}
	if diff := cmp.Diff([]string{"./gridfile.txt"}, def.StagedFiles); diff != "" {
		t.Errorf("staged files mismatch (-want +got):\n%s", diff)
	}
	if def.Memory != "3G" || def.LogPrefix != jobDir+"/logs" {
		t.Errorf("unexpected profile: memory %q, log prefix %q", def.Memory, def.LogPrefix)
	}
	assertExists(t, fs, jobDir+"/gridfile.txt", true)
	assertExists(t, fs, jobDir+"/logs", true)
}

func TestRunManifestStagingFailure(t *testing.T) {
	captureLogs(t)
	fs := afero.NewMemMapFs()
	writeInputs(t, fs, "SIDin2007_0101.nc")
	sched := newFakeScheduler(fs)
	stager := func(context.Context, string, string) (string, error) {
		return "", errors.New("no such file")
	}
	out := NewDriver(testConfig(t, config.Manifest), sched, WithFs(fs), WithStager(stager)).
		Run(context.Background(), partition.Key{Year: 2007, Tag: partition.SID})
	if !errors.Is(out.Err, ErrPersist) {
		t.Fatalf("Run error = %v, want ErrPersist", out.Err)
	}
	assertExists(t, fs, "/jobs/00_SID_2007_remap/arguments.csv", false)
	assertExists(t, fs, "/jobs/00_SID_2007_remap/job.txt", false)
}

func TestRunManifestEmptyPartition(t *testing.T) {
	captureLogs(t)
	fs := afero.NewMemMapFs()
	sched := newFakeScheduler(fs)
	staged := false
	stager := func(context.Context, string, string) (string, error) {
		staged = true
		return "", nil
	}
	out := NewDriver(testConfig(t, config.Manifest), sched, WithFs(fs), WithStager(stager)).
		Run(context.Background(), partition.Key{Year: 2031, Tag: partition.SID})
	if out.Err != nil {
		t.Fatalf("Run: %v", out.Err)
	}
	if staged || len(sched.built) != 0 {
		t.Errorf("empty partition staged %v, built %v", staged, sched.built)
	}
	assertExists(t, fs, "/jobs/00_SID_2031_remap", true)
	assertExists(t, fs, "/jobs/00_SID_2031_remap/arguments.csv", false)
}
