/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: orchestrator.go
Description: Campaign orchestrator. Imports seeds, runs one worker slot per simulator instance
under an errgroup, shares the corpus and solutions stores between slots, classifies every
fault notification and enforces the iteration and wall-clock budgets. When the budget ends
all slots are stopped, in-flight commands are abandoned after a grace period and a summary
is returned.
*/

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/simfuzz/pkg/bridge"
	"github.com/kleascm/simfuzz/pkg/fault"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAllWorkersFailed = errors.New("all worker slots failed")
	ErrNoSeeds          = errors.New("no seed inputs")
	ErrAlreadyRunning   = errors.New("campaign is already running")
)

// SummaryFile is the name WriteSummary uses inside the output directory
const SummaryFile = "campaign_summary.json"

// Orchestrator coordinates the worker slots of one campaign
type Orchestrator struct {
	id     string
	config *CampaignConfig
	fs     afero.Fs
	logger *logrus.Logger

	// Collaborators
	provisioner Provisioner
	launcher    bridge.Launcher
	mutator     Mutator
	feedback    Feedback
	scheduler   Scheduler
	reporters   []Reporter

	// Shared stores
	corpus    *CorpusStore
	solutions *SolutionStore

	stats   Stats
	seeds   chan *CorpusEntry
	claimed int64
	slots   []*Slot

	running bool
	mu      sync.Mutex
}

// NewOrchestrator validates config and wires the collaborators. fs must be the
// filesystem the simulator sees, since inputs are written into workspaces through it.
func NewOrchestrator(config *CampaignConfig, fs afero.Fs, provisioner Provisioner, launcher bridge.Launcher, mutator Mutator, logger *logrus.Logger) (*Orchestrator, error) {
	if config == nil {
		return nil, fmt.Errorf("campaign configuration not specified")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid campaign configuration: %w", err)
	}
	if provisioner == nil || launcher == nil || mutator == nil {
		return nil, fmt.Errorf("provisioner, launcher and mutator are required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Orchestrator{
		id:          uuid.New().String(),
		config:      config,
		fs:          fs,
		logger:      logger,
		provisioner: provisioner,
		launcher:    launcher,
		mutator:     mutator,
		feedback:    NewCoverageFeedback(),
		scheduler:   NewPriorityScheduler(),
	}, nil
}

// ID returns the campaign identifier
func (o *Orchestrator) ID() string { return o.id }

// SetFeedback replaces the default coverage novelty feedback
func (o *Orchestrator) SetFeedback(f Feedback) { o.feedback = f }

// SetScheduler replaces the default priority scheduler
func (o *Orchestrator) SetScheduler(s Scheduler) { o.scheduler = s }

// AddReporter registers a telemetry reporter
func (o *Orchestrator) AddReporter(r Reporter) { o.reporters = append(o.reporters, r) }

// Corpus returns the corpus store, nil before Run
func (o *Orchestrator) Corpus() *CorpusStore { return o.corpus }

// Solutions returns the solutions store, nil before Run
func (o *Orchestrator) Solutions() *SolutionStore { return o.solutions }

// Slots returns the worker slots of the current or last run
func (o *Orchestrator) Slots() []*Slot { return o.slots }

// Run executes the campaign until its budget is exhausted or ctx is done.
// A summary is returned even when every slot failed.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if err := o.prepare(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if o.config.Duration > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, o.config.Duration)
		defer cancel()
	}

	o.stats = Stats{StartTime: time.Now()}
	atomic.StoreInt64(&o.claimed, 0)
	o.slots = make([]*Slot, o.config.Workers)

	o.logger.WithFields(logrus.Fields{
		"campaign":   o.id,
		"workers":    o.config.Workers,
		"iterations": o.config.Iterations,
		"duration":   o.config.Duration,
	}).Info("Starting campaign")

	g, gctx := errgroup.WithContext(runCtx)
	for i := range o.slots {
		slot := newSlot(i, o)
		o.slots[i] = slot
		g.Go(func() error { return slot.run(gctx) })
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var runErr error
	select {
	case runErr = <-done:
	case <-gctx.Done():
		runErr = o.drain(done)
	}

	summary := o.summary()
	if runErr != nil {
		return summary, runErr
	}
	if summary.FailedSlots == len(o.slots) {
		return summary, ErrAllWorkersFailed
	}

	o.logger.WithFields(logrus.Fields{
		"campaign":   o.id,
		"executions": summary.Executions,
		"corpus":     summary.CorpusSize,
		"solutions":  summary.Solutions,
	}).Info("Campaign finished")
	return summary, nil
}

// prepare opens the stores and queues the seeds
func (o *Orchestrator) prepare() error {
	var err error
	if o.corpus, err = OpenCorpusStore(o.fs, o.config.CorpusDir, o.logger); err != nil {
		return err
	}
	if o.solutions, err = OpenSolutionStore(o.fs, o.config.SolutionsDir, o.logger); err != nil {
		return err
	}

	existing := o.corpus.Entries()
	seeds, err := o.corpus.ImportSeeds(o.config.InputDir)
	if err != nil {
		return err
	}
	if len(seeds) == 0 && len(existing) == 0 {
		return fmt.Errorf("%w in %s", ErrNoSeeds, o.config.InputDir)
	}

	o.seeds = make(chan *CorpusEntry, len(seeds))
	for _, seed := range seeds {
		o.seeds <- seed
		o.scheduler.Push(seed)
	}
	close(o.seeds)
	for _, entry := range existing {
		o.scheduler.Push(entry)
	}
	return nil
}

// drain waits for the slots to notice the stop signal. Sessions still busy
// after the grace period are torn down so their commands return.
func (o *Orchestrator) drain(done <-chan error) error {
	select {
	case err := <-done:
		return err
	default:
	}

	o.logger.Info("Budget exhausted, stopping worker slots")
	timer := time.NewTimer(o.config.StopGrace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
	}

	o.logger.Warnf("Worker slots still busy after %s, tearing down sessions", o.config.StopGrace)
	for _, slot := range o.slots {
		slot.abort()
	}
	return <-done
}

// exhausted reports whether the iteration budget is used up
func (o *Orchestrator) exhausted() bool {
	return o.config.Iterations > 0 && atomic.LoadInt64(&o.claimed) >= o.config.Iterations
}

// claimTicket reserves one execution from the iteration budget
func (o *Orchestrator) claimTicket() bool {
	if o.config.Iterations == 0 {
		return true
	}
	if atomic.AddInt64(&o.claimed, 1) <= o.config.Iterations {
		return true
	}
	atomic.AddInt64(&o.claimed, -1)
	return false
}

// releaseTicket returns a reserved execution that never completed
func (o *Orchestrator) releaseTicket() {
	if o.config.Iterations > 0 {
		atomic.AddInt64(&o.claimed, -1)
	}
}

// nextCandidate hands out seeds first, then mutations of scheduled entries
func (o *Orchestrator) nextCandidate() (*CorpusEntry, error) {
	select {
	case seed, ok := <-o.seeds:
		if ok {
			return seed, nil
		}
	default:
	}

	parent := o.scheduler.Next()
	if parent == nil {
		return nil, ErrNoSeeds
	}
	child, err := o.mutator.Mutate(parent)
	if err != nil {
		return nil, fmt.Errorf("mutator %s failed: %w", o.mutator.Name(), err)
	}
	if child == nil {
		return nil, fmt.Errorf("mutator %s produced no candidate", o.mutator.Name())
	}
	return child, nil
}

// record classifies and stores the outcome of one execution
func (o *Orchestrator) record(slot *Slot, exec *Execution, ev bridge.Event) error {
	o.stats.incExecutions()
	defer o.notifyExecution(exec)

	switch exec.Outcome {
	case OutcomeFault:
		arch := eventArch(ev.Arch, o.config.Arch)
		f, err := fault.Classify(arch, ev.Code)
		if err != nil {
			// never treated as benign: the input is kept aside and the slot stops
			o.stats.incUnknownFaults()
			if _, serr := o.solutions.AddUnclassified(exec.Input.Data, arch, ev.Code, slot.ID, ev.Message); serr != nil {
				return serr
			}
			slot.logger.WithFields(logrus.Fields{
				"arch":  arch,
				"code":  ev.Code,
				"input": exec.Input.ID,
				"hash":  InputHash(exec.Input.Data),
			}).WithError(err).Error("Unclassified fault code, input kept under unclassified/")
			return &slotError{err}
		}
		exec.Fault = &f
		o.stats.incFaults()
		slot.setState(SlotFaulted)

		if !fault.IsReportable(f, o.config.Policy) {
			slot.logger.WithFields(logrus.Fields{"fault": f.String(), "code": f.Code()}).Info("Fault outside campaign policy, treating as benign")
			return o.retain(exec)
		}
		rec, isNew, err := o.solutions.Add(exec.Input.Data, f, slot.ID, ev.Message)
		if err != nil {
			return err
		}
		if isNew {
			for _, r := range o.reporters {
				r.OnSolution(rec)
			}
		} else {
			slot.logger.WithFields(logrus.Fields{"fault": f.String(), "solution": rec.ID}).Debug("Duplicate crashing input")
		}
		return nil

	case OutcomeTimeout:
		o.stats.incTimeouts()
		if o.config.Policy.TimeoutIsCrash {
			if _, err := o.solutions.AddTimeout(exec.Input.Data); err != nil {
				return err
			}
			return nil
		}
		return o.retain(exec)

	default:
		return o.retain(exec)
	}
}

// retain forwards coverage feedback and keeps interesting inputs
func (o *Orchestrator) retain(exec *Execution) error {
	if !o.feedback.IsInteresting(exec.Input, exec.Coverage) {
		return nil
	}
	entry := exec.Input
	if o.corpus.Get(entry.ID) != nil {
		// already stored, so new coverage only restores its priority in the schedule
		o.scheduler.Push(entry)
		return nil
	}

	entry.Coverage = exec.Coverage
	if entry.Priority < seedPriority {
		entry.Priority = seedPriority
	}
	if err := o.corpus.Add(entry); err != nil {
		return err
	}
	o.scheduler.Push(entry)
	for _, r := range o.reporters {
		r.OnCorpusAdd(entry)
	}
	return nil
}

func (o *Orchestrator) notifyExecution(exec *Execution) {
	for _, r := range o.reporters {
		r.OnExecution(exec)
	}
}

// summary snapshots the campaign counters
func (o *Orchestrator) summary() *Summary {
	s := &Summary{
		CampaignID:    o.id,
		Executions:    atomic.LoadInt64(&o.stats.Executions),
		Timeouts:      atomic.LoadInt64(&o.stats.Timeouts),
		Faults:        atomic.LoadInt64(&o.stats.Faults),
		UnknownFaults: atomic.LoadInt64(&o.stats.UnknownFaults),
		BridgeErrors:  atomic.LoadInt64(&o.stats.BridgeErrors),
		CorpusSize:    o.corpus.Size(),
		Solutions:     o.solutions.Size(),
		Hangs:         o.solutions.Hangs(),
		Workers:       len(o.slots),
		Duration:      time.Since(o.stats.StartTime),
	}
	for _, slot := range o.slots {
		if slot.State() == SlotFailed {
			s.FailedSlots++
		}
	}
	return s
}

// WriteSummary writes the campaign summary as JSON into dir
func WriteSummary(fs afero.Fs, dir string, summary *Summary) (string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	path := filepath.Join(dir, SummaryFile)
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}
