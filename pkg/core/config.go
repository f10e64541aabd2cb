/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Campaign configuration consumed by the orchestrator. Workspace composition
(packages, file mappings, retention) lives in the provisioner's own configuration; this
covers budgets, timeouts, the startup command script and the fault policy.
*/

package core

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kleascm/simfuzz/pkg/fault"
)

const (
	DefaultExecTimeout      = 30 * time.Second
	DefaultCommandTimeout   = 60 * time.Second
	DefaultMaxBridgeRetries = 3
	DefaultStopGrace        = 10 * time.Second
	SnapshotName            = "origin"
	InputDir                = "fuzz-input"
	InputFile               = "input.bin"
)

// CampaignConfig contains all parameters for one fuzzing campaign
type CampaignConfig struct {
	InputDir     string `json:"input_dir"`     // Seed inputs
	CorpusDir    string `json:"corpus_dir"`    // Retained interesting inputs
	SolutionsDir string `json:"solutions_dir"` // Deduplicated crashing inputs

	Workers    int           `json:"workers"`    // Parallel simulator instances
	Iterations int64         `json:"iterations"` // Total executions, 0 for unbounded
	Duration   time.Duration `json:"duration"`   // Wall-clock budget, 0 for unbounded

	ExecTimeout      time.Duration `json:"exec_timeout"`       // Injection to completion
	CommandTimeout   time.Duration `json:"command_timeout"`    // One bridge command
	MaxBridgeRetries int           `json:"max_bridge_retries"` // Re-provisions before a slot fails, negative for none
	StopGrace        time.Duration `json:"stop_grace"`         // Drain allowance after the budget ends

	Commands []string           `json:"commands"` // Startup control lines, placeholder expanded
	Arch     fault.Architecture `json:"arch"`     // Assumed when a notification carries no tag
	Policy   *fault.Policy      `json:"-"`
}

// Validate fills defaults and checks that the campaign can start
func (c *CampaignConfig) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input directory not specified")
	}
	if c.CorpusDir == "" {
		return fmt.Errorf("corpus directory not specified")
	}
	if c.SolutionsDir == "" {
		return fmt.Errorf("solutions directory not specified")
	}
	if c.Workers < 0 || c.Iterations < 0 || c.Duration < 0 {
		return fmt.Errorf("workers, iterations and duration must not be negative")
	}

	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = DefaultExecTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.MaxBridgeRetries == 0 {
		c.MaxBridgeRetries = DefaultMaxBridgeRetries
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.Arch == "" {
		c.Arch = fault.ArchX86_64
	}
	if _, err := fault.ParseArchitecture(string(c.Arch)); err != nil {
		return err
	}
	if c.Policy == nil {
		c.Policy = fault.DefaultPolicy()
	}
	return nil
}
