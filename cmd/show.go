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

package cmd

import (
	"fmt"
	"hpc-remap/pkg/descriptor"
	"hpc-remap/pkg/orchestrator/htcondor"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show JOBFILE",
	Short: "Prints the settings of a written job descriptor.",
	Long: `The 'show' command parses a descriptor written by generate-remap-jobs and
prints its resource profile and arguments. For manifest jobs it also reports
the number of tasks listed in the manifest.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runShowCmd,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	return showJob(cmd.OutOrStdout(), afero.NewOsFs(), args[0])
}

func showJob(w io.Writer, fs afero.Fs, path string) error {
	def, err := htcondor.ReadJob(fs, path)
	if err != nil {
		return err
	}

	line := func(key, value string) {
		if value != "" {
			fmt.Fprintf(w, "%-16s %s\n", key+":", value)
		}
	}
	line("descriptor", def.DescriptorPath)
	line("container_image", def.ContainerImage)
	line("executable", def.Executable)
	line("arguments", def.Arguments)
	line("execution_user", def.ExecutionUser)
	line("memory", def.Memory)
	line("staged_files", strings.Join(def.StagedFiles, ","))
	line("log_prefix", def.LogPrefix)
	if def.Queue == nil {
		return nil
	}
	line("queue", def.Queue.String())
	m, err := descriptor.ReadManifest(fs, def.Queue.From)
	if err != nil {
		return err
	}
	line("tasks", fmt.Sprint(len(m.Rows)))
	return nil
}
