/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utilities.go
Description: Utility commands for simfuzz. Provides list-faults, list-packages and the
self-check that validates a campaign configuration without starting any simulator.
*/

package commands

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kleascm/simfuzz/pkg/fault"
	"github.com/kleascm/simfuzz/pkg/logging"
	"github.com/kleascm/simfuzz/pkg/provision"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ListFaults prints the fault table and marks what the configured policy reports
func ListFaults(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	policy, err := fault.ParsePolicy(fault.ArchX86_64, viper.GetStringSlice("faults"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🧨 simfuzz - x86-64 Fault Categories")
	fmt.Fprintln(out, "===================================")
	fmt.Fprintln(out)
	for _, f := range fault.X86_64Faults() {
		mark := " "
		if policy.Contains(fault.FromX86_64(f)) {
			mark = "*"
		}
		fmt.Fprintf(out, " %s %4d  %s\n", mark, int64(f), f)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "* reported as a solution under the current policy (--faults)")
	return nil
}

// ListPackages prints the add-on packages installed under the platform home
func ListPackages(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	home := viper.GetString("platform_home")
	if home == "" {
		return fmt.Errorf("platform home not specified")
	}
	registry, err := provision.NewRegistry(afero.NewOsFs(), home)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📦 Packages under %s\n\n", registry.Home())
	for _, pkg := range registry.Packages() {
		fmt.Fprintf(out, "  %-6d %-30s %s\n", pkg.Number, pkg.Name, pkg.Version)
	}
	return nil
}

// PerformSelfCheck validates the campaign configuration and every input it refers to
func PerformSelfCheck(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🔍 Performing self-check...")
	fmt.Fprintln(out)

	settings, err := LoadSettings()
	if err != nil {
		return fmt.Errorf("configuration check failed: %w", err)
	}
	fmt.Fprintf(out, "✅ Configuration: %d workers, fault policy %s\n", settings.Campaign.Workers, policyNames(settings.Campaign.Policy))

	fs := afero.NewOsFs()
	var problems []string

	seeds, err := afero.ReadDir(fs, settings.Campaign.InputDir)
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("input directory: %v", err))
	case len(seeds) == 0:
		problems = append(problems, fmt.Sprintf("input directory %s is empty", settings.Campaign.InputDir))
	default:
		fmt.Fprintf(out, "✅ Seed inputs: %d found\n", len(seeds))
	}

	for _, dir := range []string{settings.Campaign.CorpusDir, settings.Campaign.SolutionsDir} {
		if err := checkWritable(dir); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		fmt.Fprintf(out, "✅ Output directory: %s\n", dir)
	}

	if _, err := newProvisioner(fs, settings, nil); err != nil {
		problems = append(problems, fmt.Sprintf("provisioner: %v", err))
	} else {
		fmt.Fprintf(out, "✅ Base platform: %s\n", settings.Workspace.BaseDir)
	}

	if len(settings.Workspace.Packages) > 0 && settings.PlatformHome != "" {
		if registry, err := provision.NewRegistry(fs, settings.PlatformHome); err == nil {
			for _, sel := range settings.Workspace.Packages {
				pkg, err := registry.Resolve(sel)
				if err != nil {
					problems = append(problems, err.Error())
					continue
				}
				fmt.Fprintf(out, "✅ Package %s -> %s %s\n", sel, pkg.Name, pkg.Version)
			}
		}
	}

	if settings.Workspace.Artifact != nil {
		md, err := provision.LoadWorkspaceMetadata(fs, settings.Workspace.MetadataPath)
		if err == nil {
			_, err = md.ResolveLibraryArtifact(fs, settings.Workspace.Artifact.Component, settings.Workspace.Artifact.Kind)
		}
		if err != nil {
			problems = append(problems, fmt.Sprintf("artifact: %v", err))
		} else {
			fmt.Fprintf(out, "✅ Artifact: %s\n", settings.Workspace.Artifact.FileName())
		}
	}

	if dir := viper.GetString("log_dir"); dir != "" {
		if err := checkWritable(dir); err != nil {
			problems = append(problems, err.Error())
		} else if line, err := logDirStatus(dir); err != nil {
			problems = append(problems, fmt.Sprintf("log directory: %v", err))
		} else {
			fmt.Fprintln(out, line)
		}
	}

	// Workspace-relative binaries only exist once a workspace is built
	sim := settings.Simulator
	if !strings.Contains(sim, provision.Placeholder) && (filepath.IsAbs(sim) || filepath.Base(sim) == sim) {
		if _, err := exec.LookPath(sim); err != nil {
			problems = append(problems, fmt.Sprintf("simulator: %v", err))
		} else {
			fmt.Fprintf(out, "✅ Simulator: %s\n", sim)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("self-check failed:\n  %s", strings.Join(problems, "\n  "))
	}
	fmt.Fprintln(out, "\n✨ Self-check passed, ready to fuzz.")
	return nil
}

func policyNames(p *fault.Policy) string {
	faults := p.Faults()
	names := make([]string, len(faults))
	for i, f := range faults {
		names[i] = f.Name()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// logDirStatus summarises the log files already kept in dir
func logDirStatus(dir string) (string, error) {
	manager := logging.NewLogManager(dir, viper.GetInt("log_max_files"), viper.GetBool("log_compress"))
	stats, err := manager.GetLogStats()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Log directory: %s (%d files, %d compressed, %d bytes)", dir, stats.TotalFiles, stats.CompressedFiles, stats.TotalSize), nil
}

// checkWritable creates dir if needed and probes it with a temporary file
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".simfuzz-check-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	probe.Close()
	return os.Remove(filepath.Clean(probe.Name()))
}
