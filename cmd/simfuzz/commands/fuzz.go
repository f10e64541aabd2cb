/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fuzz.go
Description: Fuzz command implementation for simfuzz. Assembles the provisioner, simulator
launcher, mutation engine and orchestrator from the command line and configuration file,
runs the campaign until its budget is spent or the user interrupts it, then prints and
writes the campaign summary.
*/

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kleascm/simfuzz/pkg/bridge"
	"github.com/kleascm/simfuzz/pkg/core"
	"github.com/kleascm/simfuzz/pkg/fault"
	"github.com/kleascm/simfuzz/pkg/provision"
	"github.com/kleascm/simfuzz/pkg/strategies"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Settings is everything the fuzz command needs, resolved from flags, file and environment
type Settings struct {
	Campaign     core.CampaignConfig
	Workspace    provision.Config
	PlatformHome string
	Simulator    string
	SimArgs      []string
	MutationRate float64
	SummaryDir   string
}

// LoadSettings resolves the fuzz settings from viper
func LoadSettings() (*Settings, error) {
	packages, err := parsePackages(viper.GetStringSlice("packages"))
	if err != nil {
		return nil, err
	}
	files, err := parseFiles(viper.GetStringSlice("files"))
	if err != nil {
		return nil, err
	}
	artifact, err := parseArtifact(viper.GetString("artifact"))
	if err != nil {
		return nil, err
	}

	arch, err := fault.ParseArchitecture(viper.GetString("arch"))
	if err != nil {
		return nil, err
	}
	policy, err := fault.ParsePolicy(arch, viper.GetStringSlice("faults"))
	if err != nil {
		return nil, err
	}
	policy.TimeoutIsCrash = viper.GetBool("timeout_is_crash")

	s := &Settings{
		Campaign: core.CampaignConfig{
			InputDir:         viper.GetString("input_dir"),
			CorpusDir:        viper.GetString("corpus_dir"),
			SolutionsDir:     viper.GetString("solutions_dir"),
			Workers:          viper.GetInt("cores"),
			Iterations:       viper.GetInt64("iterations"),
			Duration:         viper.GetDuration("duration"),
			ExecTimeout:      viper.GetDuration("exec_timeout"),
			CommandTimeout:   viper.GetDuration("command_timeout"),
			MaxBridgeRetries: viper.GetInt("max_bridge_retries"),
			Commands:         viper.GetStringSlice("commands"),
			Arch:             arch,
			Policy:           policy,
		},
		Workspace: provision.Config{
			BaseDir:      viper.GetString("base_dir"),
			WorkDir:      viper.GetString("work_dir"),
			Packages:     packages,
			Files:        files,
			Artifact:     artifact,
			MetadataPath: viper.GetString("metadata"),
			Keep:         viper.GetBool("keep_temp_projects") && !viper.GetBool("no_keep_temp_projects"),
		},
		PlatformHome: viper.GetString("platform_home"),
		Simulator:    viper.GetString("simulator"),
		SimArgs:      viper.GetStringSlice("simulator_args"),
		MutationRate: viper.GetFloat64("mutation_rate"),
		SummaryDir:   viper.GetString("summary_dir"),
	}
	if s.SummaryDir == "" {
		s.SummaryDir = s.Campaign.SolutionsDir
	}
	if err := s.Campaign.Validate(); err != nil {
		return nil, err
	}
	if s.Simulator == "" {
		return nil, fmt.Errorf("simulator binary not specified")
	}
	return s, nil
}

// newProvisioner builds the registry when packages are selected and the provisioner on top
func newProvisioner(fs afero.Fs, s *Settings, logger *logrus.Logger) (*provision.Provisioner, error) {
	var registry *provision.Registry
	if len(s.Workspace.Packages) > 0 {
		if s.PlatformHome == "" {
			return nil, fmt.Errorf("packages selected but platform home not specified")
		}
		var err error
		registry, err = provision.NewRegistry(fs, s.PlatformHome)
		if err != nil {
			return nil, err
		}
	}
	return provision.NewProvisioner(fs, s.Workspace, registry, logger)
}

// corpusPool gives crossover access to the campaign corpus once it is open
type corpusPool struct {
	orchestrator *core.Orchestrator
}

func (p *corpusPool) Entries() []*core.CorpusEntry {
	if p.orchestrator == nil || p.orchestrator.Corpus() == nil {
		return nil
	}
	return p.orchestrator.Corpus().Entries()
}

// RunFuzz executes the fuzzing campaign
func RunFuzz(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := SetupLogging()
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer log.Close()
	logger := log.GetLogger()

	settings, err := LoadSettings()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fs := afero.NewOsFs()
	provisioner, err := newProvisioner(fs, settings, logger)
	if err != nil {
		return fmt.Errorf("failed to setup provisioner: %w", err)
	}

	launcher := bridge.NewProcessLauncher(settings.Simulator, settings.SimArgs, logger)
	defer launcher.Cleanup()

	pool := &corpusPool{}
	mutator := strategies.NewDefaultMutator(pool, settings.MutationRate)

	orchestrator, err := core.NewOrchestrator(&settings.Campaign, fs, provisioner, launcher, mutator, logger)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	pool.orchestrator = orchestrator
	orchestrator.AddReporter(core.NewLoggerReporter(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("🚀 simfuzz - Starting Campaign")
	fmt.Println("=============================")
	fmt.Printf("Campaign: %s\n", orchestrator.ID())
	fmt.Printf("Workers: %d | Mutator: %s\n\n", settings.Campaign.Workers, mutator.Name())

	summary, runErr := orchestrator.Run(ctx)
	if summary == nil {
		return fmt.Errorf("campaign failed: %w", runErr)
	}

	printSummary(summary)

	path, err := core.WriteSummary(fs, settings.SummaryDir, summary)
	if err != nil {
		logger.WithError(err).Error("Failed to write campaign summary")
	} else {
		fmt.Printf("Summary written to %s\n", path)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("campaign failed: %w", runErr)
	}
	fmt.Println("\n✨ Campaign completed!")
	return nil
}

// printSummary prints the final campaign statistics
func printSummary(s *core.Summary) {
	rate := 0.0
	if s.Duration > 0 {
		rate = float64(s.Executions) / s.Duration.Seconds()
	}

	fmt.Println("\n📊 Final Statistics")
	fmt.Println("==================")
	fmt.Printf("Total Runtime: %v\n", s.Duration)
	fmt.Printf("Total Executions: %d\n", s.Executions)
	fmt.Printf("Faults Observed: %d\n", s.Faults)
	fmt.Printf("Unclassified Faults: %d\n", s.UnknownFaults)
	fmt.Printf("Timeouts: %d (%d kept as hangs)\n", s.Timeouts, s.Hangs)
	fmt.Printf("Simulator Errors: %d\n", s.BridgeErrors)
	fmt.Printf("Corpus Size: %d\n", s.CorpusSize)
	fmt.Printf("Solutions: %d\n", s.Solutions)
	fmt.Printf("Failed Slots: %d of %d\n", s.FailedSlots, s.Workers)
	fmt.Printf("Average Rate: %.1f executions/sec\n", rate)
}
