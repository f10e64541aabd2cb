/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Command-line interface for simfuzz. Defines the fuzz, check, list-faults and
list-packages commands, binds every flag to viper so settings can also come from a config
file or SIMFUZZ_ environment variables.
*/

package main

import (
	"fmt"
	"os"

	"github.com/kleascm/simfuzz/cmd/simfuzz/commands"
	"github.com/kleascm/simfuzz/pkg/core"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "simfuzz",
		Short: "simfuzz - fuzzing orchestrator for full-system simulators",
		Long: `simfuzz drives a pool of full-system simulator instances through a snapshot,
inject, run and observe loop. Every worker gets its own provisioned simulation project,
faults raised by the simulated target are classified against the campaign policy and
crashing inputs are kept, deduplicated, in the solutions directory.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Configuration file path (yaml, toml or json)")
	pf.String("log-level", "info", "Logging level (debug, info, warn, error)")
	pf.Bool("json-logs", false, "Use JSON log format")
	pf.String("log-dir", "", "Log output directory (empty for console only)")
	pf.String("log-format", "custom", "Log format (text, json, custom)")
	pf.Int("log-max-files", 10, "Maximum number of log files to keep")
	pf.Bool("log-compress", false, "Compress old log files instead of deleting them")
	pf.String("platform-home", "", "Directory holding the installed simulator packages")
	pf.StringSlice("faults", nil, "Fault categories reported as solutions (default: Triple, Double, GeneralProtection, Page, InvalidOpcode, Division)")
	bindFlags(pf, map[string]string{
		"config":        "config",
		"log_level":     "log-level",
		"json_logs":     "json-logs",
		"log_dir":       "log-dir",
		"log_format":    "log-format",
		"log_max_files": "log-max-files",
		"log_compress":  "log-compress",
		"platform_home": "platform-home",
		"faults":        "faults",
	})

	// Fuzz command
	fuzzCmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Run a fuzzing campaign",
		Long: `Run a fuzzing campaign. Seeds from the input directory are executed first, then
mutated corpus entries, until the iteration or time budget is spent or the campaign is
interrupted. The summary is written as JSON next to the solutions.`,
		RunE: commands.RunFuzz,
	}
	ff := fuzzCmd.Flags()
	ff.StringP("input", "i", "", "Directory of seed inputs (required)")
	ff.StringP("corpus", "c", "", "Directory for the retained corpus (required)")
	ff.StringP("solutions", "o", "", "Directory for crashing inputs (required)")
	ff.String("summary-dir", "", "Directory for the campaign summary (default: solutions directory)")
	ff.Int("cores", 0, "Number of parallel simulator instances (0 = one per CPU)")
	ff.Int64("iterations", 0, "Total executions across all workers (0 = unbounded)")
	ff.Duration("duration", 0, "Wall-clock budget (0 = unbounded)")
	ff.Duration("exec-timeout", core.DefaultExecTimeout, "Maximum time from injection to completion")
	ff.Duration("command-timeout", core.DefaultCommandTimeout, "Maximum time for one simulator command")
	ff.Int("max-bridge-retries", core.DefaultMaxBridgeRetries, "Consecutive simulator failures before a worker retires (negative = none)")
	ff.StringArray("command", nil, "Startup command sent to every simulator, %simics% expands to the workspace")
	ff.StringArray("package", nil, "Add-on package as ID:VERSION, ID:latest or ID")
	ff.StringArray("file", nil, "File copied into every workspace as SRC:DST")
	ff.Bool("keep-temp-projects", false, "Keep the per-worker simulation projects after the campaign")
	ff.Bool("no-keep-temp-projects", false, "Remove the per-worker simulation projects (default)")
	ff.String("base-dir", "", "Base platform tree copied into every workspace (required)")
	ff.String("work-dir", "", "Parent directory for the per-worker workspaces (default: system temp)")
	ff.String("metadata", "", "Workspace manifest used to locate the instrumentation module")
	ff.String("artifact", "", "Instrumentation module to inject, as COMPONENT.so or COMPONENT.a")
	ff.String("simulator", "%simics%/simics", "Simulator executable, %simics% expands to the workspace")
	ff.StringArray("simulator-arg", nil, "Argument passed to the simulator")
	ff.String("arch", "x86-64", "Architecture assumed for untagged fault notifications")
	ff.Bool("timeout-is-crash", false, "Keep timed-out inputs as hangs")
	ff.Float64("mutation-rate", 0.01, "Probability of mutation per byte")

	fuzzCmd.MarkFlagRequired("input")
	fuzzCmd.MarkFlagRequired("corpus")
	fuzzCmd.MarkFlagRequired("solutions")
	fuzzCmd.MarkFlagRequired("base-dir")

	// Check command shares the fuzz flags
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a campaign configuration without running it",
		Long: `Perform the checks a campaign needs before it starts: seed inputs present, output
directories writable, base platform and packages resolvable, instrumentation module built
and simulator executable found. Useful in CI before a long campaign.`,
		RunE: commands.PerformSelfCheck,
	}
	checkCmd.Flags().AddFlagSet(ff)

	// Viper keys are bound when the command runs so fuzz and check can share them
	campaignKeys := map[string]string{
		"input_dir":             "input",
		"corpus_dir":            "corpus",
		"solutions_dir":         "solutions",
		"summary_dir":           "summary-dir",
		"cores":                 "cores",
		"iterations":            "iterations",
		"duration":              "duration",
		"exec_timeout":          "exec-timeout",
		"command_timeout":       "command-timeout",
		"max_bridge_retries":    "max-bridge-retries",
		"commands":              "command",
		"packages":              "package",
		"files":                 "file",
		"keep_temp_projects":    "keep-temp-projects",
		"no_keep_temp_projects": "no-keep-temp-projects",
		"base_dir":              "base-dir",
		"work_dir":              "work-dir",
		"metadata":              "metadata",
		"artifact":              "artifact",
		"simulator":             "simulator",
		"simulator_args":        "simulator-arg",
		"arch":                  "arch",
		"timeout_is_crash":      "timeout-is-crash",
		"mutation_rate":         "mutation-rate",
	}
	for _, c := range []*cobra.Command{fuzzCmd, checkCmd} {
		c.PreRun = func(cmd *cobra.Command, args []string) {
			bindFlags(cmd.Flags(), campaignKeys)
		}
	}

	listFaultsCmd := &cobra.Command{
		Use:   "list-faults",
		Short: "List fault categories and the ones the policy reports",
		RunE:  commands.ListFaults,
	}

	listPackagesCmd := &cobra.Command{
		Use:   "list-packages",
		Short: "List installed simulator packages under --platform-home",
		RunE:  commands.ListPackages,
	}

	rootCmd.AddCommand(fuzzCmd, checkCmd, listFaultsCmd, listPackagesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bindFlags binds viper keys to the named flags
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		viper.BindPFlag(key, flags.Lookup(name))
	}
}
