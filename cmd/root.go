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

// Package cmd defines the generate-remap-jobs command line.
package cmd

import (
	"context"
	"hpc-remap/pkg/logging"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "generate-remap-jobs",
	Short: "Generates and submits cdo remap jobs for SARAH-2 partitions.",
	Long: `generate-remap-jobs discovers the NetCDF files of each partition, derives
their output and job paths, writes one scheduler descriptor per file (per-file
mode) or one manifest-driven descriptor per partition (manifest mode), and
submits the descriptors to HTCondor.

Per-file mode is selected with --partition-start and --partition-end and covers
every year of the inclusive range. Manifest mode is selected with --image-type
and --year and covers a single partition.`,
	Args:              cobra.NoArgs,
	PersistentPreRunE: setupLogging,
	Run:               runGenerateCmd,
	SilenceUsage:      true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML or HCL (.hcl) configuration file.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output.")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if noColor {
		logging.DisableColor()
		color.NoColor = true
	}
	return logging.SetLevel(logLevel)
}

// Execute runs the root command. Interrupts cancel in-flight submissions.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
