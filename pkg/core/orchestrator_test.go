/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: orchestrator_test.go
Description: Campaign tests for the orchestrator. Workspaces come from the real provisioner on
an in-memory filesystem and simulators are replaced by an in-process fake that speaks the
bridge line protocol and raises faults according to a harness function.
*/

package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kleascm/simfuzz/pkg/bridge"
	"github.com/kleascm/simfuzz/pkg/fault"
	"github.com/kleascm/simfuzz/pkg/provision"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// harness decides which notification follows RUN for an input, nil for none
type harness func(input []byte) map[string]interface{}

func raiseOn(trigger string, code int64) harness {
	return func(input []byte) map[string]interface{} {
		if bytes.Contains(input, []byte(trigger)) {
			return map[string]interface{}{"event": "exception", "arch": "x86-64", "code": code}
		}
		return stopWithCoverage(input)
	}
}

func stopWithCoverage(input []byte) map[string]interface{} {
	return map[string]interface{}{"event": "stopped", "coverage": hex.EncodeToString([]byte(InputHash(input))[:8])}
}

func neverFinishes(input []byte) map[string]interface{} { return nil }

// teardown records that a session's closer ran
type teardown struct {
	once sync.Once
	done chan struct{}
}

func newTeardown() *teardown { return &teardown{done: make(chan struct{})} }

func (t *teardown) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

type pipeClosers []io.Closer

func (c pipeClosers) Close() error {
	for _, cl := range c {
		cl.Close()
	}
	return nil
}

// fakeLauncher starts in-process simulators. The first dieFirst launches
// produce sessions whose simulator is already gone. A silent simulator reads
// commands but never answers.
type fakeLauncher struct {
	fs       afero.Fs
	harness  harness
	dieFirst int
	silent   bool
	teardown *teardown

	mu       sync.Mutex
	launches int
	commands []string
}

func (l *fakeLauncher) Launch(ctx context.Context, ws *provision.Workspace) (*bridge.Session, error) {
	l.mu.Lock()
	l.launches++
	dead := l.launches <= l.dieFirst
	l.mu.Unlock()

	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	if dead {
		outW.Close()
		go io.Copy(io.Discard, cmdR)
	} else {
		go l.serve(cmdR, outW)
	}
	closers := pipeClosers{cmdW, outR}
	if l.teardown != nil {
		closers = append(closers, l.teardown)
	}
	return bridge.NewSession(outR, cmdW, closers), nil
}

func (l *fakeLauncher) serve(in io.Reader, out *io.PipeWriter) {
	defer out.Close()
	emit := func(v interface{}) bool {
		data, _ := json.Marshal(v)
		_, err := out.Write(append(data, '\n'))
		return err == nil
	}

	var input []byte
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		seqText, line, _ := strings.Cut(scanner.Text(), " ")
		seq, _ := strconv.ParseUint(seqText, 10, 64)
		l.mu.Lock()
		l.commands = append(l.commands, line)
		l.mu.Unlock()
		if l.silent {
			continue
		}

		reply := map[string]interface{}{"seq": seq, "ok": true}
		directive, arg := bridge.ParseCommand(line)
		switch directive {
		case "INPUT":
			data, err := afero.ReadFile(l.fs, arg)
			if err != nil {
				reply = map[string]interface{}{"seq": seq, "ok": false, "error": err.Error()}
			}
			input = data
		case "RUN":
			if !emit(reply) {
				return
			}
			if ev := l.harness(input); ev != nil {
				if !emit(ev) {
					return
				}
			}
			continue
		}
		if !emit(reply) {
			return
		}
	}
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func (l *fakeLauncher) sentCommands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.commands...)
}

type appendMutator struct{}

func (appendMutator) Mutate(e *CorpusEntry) (*CorpusEntry, error) {
	data := append(append([]byte(nil), e.Data...), 'x')
	return &CorpusEntry{Data: data, ParentID: e.ID, Generation: e.Generation + 1}, nil
}

func (appendMutator) Name() string { return "append" }

type identityMutator struct{}

func (identityMutator) Mutate(e *CorpusEntry) (*CorpusEntry, error) {
	return &CorpusEntry{Data: append([]byte(nil), e.Data...), ParentID: e.ID, Generation: e.Generation + 1}, nil
}

func (identityMutator) Name() string { return "identity" }

// flakyMutator fails its first failFirst calls, then appends like appendMutator
type flakyMutator struct {
	failFirst int32
	calls     int32
}

func (m *flakyMutator) Mutate(e *CorpusEntry) (*CorpusEntry, error) {
	if atomic.AddInt32(&m.calls, 1) <= m.failFirst {
		return nil, errors.New("mutation engine hiccup")
	}
	return appendMutator{}.Mutate(e)
}

func (m *flakyMutator) Name() string { return "flaky" }

type emptyMutator struct{}

func (emptyMutator) Mutate(e *CorpusEntry) (*CorpusEntry, error) { return nil, nil }

func (emptyMutator) Name() string { return "empty" }

// gateReporter holds every execution report until release is closed
type gateReporter struct {
	release <-chan struct{}
}

func (r gateReporter) OnExecution(*Execution) { <-r.release }
func (gateReporter) OnCorpusAdd(*CorpusEntry) {}
func (gateReporter) OnSolution(*CrashRecord) {}

// countingProvisioner wraps a provisioner and fails the listed slots
type countingProvisioner struct {
	next  Provisioner
	fail  map[int]bool
	calls int64
}

func (p *countingProvisioner) Provision(ctx context.Context, slot int) (*provision.Workspace, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.fail[slot] {
		return nil, &provision.ProvisioningError{Op: "copy", Path: "/platform", Err: provision.ErrCopyFailed}
	}
	return p.next.Provision(ctx, slot)
}

type campaignFixture struct {
	fs          afero.Fs
	config      *CampaignConfig
	provisioner *countingProvisioner
	launcher    *fakeLauncher
	reporters   []Reporter
}

func newCampaignFixture(t *testing.T, h harness, seeds map[string]string) *campaignFixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/platform/targets/qsp/board.simics", []byte("run-script"), 0644))
	require.NoError(t, fs.MkdirAll("/work", 0755))
	require.NoError(t, fs.MkdirAll("/seeds", 0755))
	for name, data := range seeds {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/seeds", name), []byte(data), 0644))
	}

	prov, err := provision.NewProvisioner(fs, provision.Config{BaseDir: "/platform", WorkDir: "/work"}, nil, quietLogger())
	require.NoError(t, err)

	return &campaignFixture{
		fs: fs,
		config: &CampaignConfig{
			InputDir:       "/seeds",
			CorpusDir:      "/out/corpus",
			SolutionsDir:   "/out/solutions",
			Workers:        1,
			Iterations:     3,
			ExecTimeout:    time.Second,
			CommandTimeout: time.Second,
			StopGrace:      time.Second,
		},
		provisioner: &countingProvisioner{next: prov},
		launcher:    &fakeLauncher{fs: fs, harness: h},
	}
}

func (f *campaignFixture) run(t *testing.T, mutator Mutator) (*Summary, *Orchestrator, error) {
	t.Helper()
	o, err := NewOrchestrator(f.config, f.fs, f.provisioner, f.launcher, mutator, quietLogger())
	require.NoError(t, err)
	for _, r := range f.reporters {
		o.AddReporter(r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	summary, err := o.Run(ctx)
	return summary, o, err
}

func corpusFiles(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}
	return names
}

func TestRacecarCampaign(t *testing.T) {
	f := newCampaignFixture(t, raiseOn("racecar", int64(fault.GeneralProtection)), map[string]string{"seed": "racecar"})

	summary, o, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.Executions)
	assert.Equal(t, 0, summary.FailedSlots)

	assert.NotEmpty(t, corpusFiles(t, f.fs, "/out/corpus"))
	assert.Equal(t, o.Corpus().Size(), len(corpusFiles(t, f.fs, "/out/corpus")))

	records := o.Solutions().Records()
	require.NotEmpty(t, records)
	for _, rec := range records {
		assert.Equal(t, fault.FromX86_64(fault.GeneralProtection), rec.Fault)
		assert.Contains(t, string(rec.Input), "racecar")
	}
	assert.Equal(t, uint64(0), records[0].ID)
}

func TestDuplicateCrashingInputsRecordedOnce(t *testing.T) {
	f := newCampaignFixture(t, raiseOn("boom", int64(fault.Page)), map[string]string{"seed": "boom"})
	f.config.Iterations = 5

	summary, o, err := f.run(t, identityMutator{})
	require.NoError(t, err)

	assert.Equal(t, int64(5), summary.Faults)
	assert.Equal(t, 1, summary.Solutions)
	assert.Len(t, o.Solutions().Records(), 1)

	infos, err := afero.ReadDir(f.fs, "/out/solutions")
	require.NoError(t, err)
	assert.Len(t, infos, 2, "one input file and one record")
}

func TestFaultOutsidePolicyIsNotPersisted(t *testing.T) {
	f := newCampaignFixture(t, raiseOn("trap", int64(fault.Breakpoint)), map[string]string{"seed": "trap"})
	f.config.Iterations = 4

	summary, o, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Equal(t, int64(4), summary.Faults)
	assert.Equal(t, 0, summary.Solutions)
	assert.Empty(t, o.Solutions().Records())
}

func TestPolicyDecidesReportableFaults(t *testing.T) {
	f := newCampaignFixture(t, raiseOn("trap", int64(fault.Breakpoint)), map[string]string{"seed": "trap"})
	f.config.Iterations = 2
	f.config.Policy = fault.NewPolicy(fault.FromX86_64(fault.Breakpoint))

	summary, _, err := f.run(t, identityMutator{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Solutions)
}

func TestUnknownFaultCodeRetiresSlotAndKeepsInput(t *testing.T) {
	f := newCampaignFixture(t, raiseOn("odd", 9999), map[string]string{"seed": "odd"})
	f.config.Iterations = 3

	summary, o, err := f.run(t, appendMutator{})
	require.True(t, errors.Is(err, ErrAllWorkersFailed))

	assert.Equal(t, int64(1), summary.Executions)
	assert.Equal(t, int64(1), summary.UnknownFaults)
	assert.Equal(t, int64(0), summary.Faults)
	assert.Equal(t, 0, summary.Solutions)
	assert.Equal(t, 1, summary.FailedSlots)

	slot := o.Slots()[0]
	assert.Equal(t, SlotFailed, slot.State())
	var cerr *fault.ClassificationError
	require.True(t, errors.As(slot.Err(), &cerr))
	assert.Equal(t, fault.ArchX86_64, cerr.Arch)
	assert.Equal(t, int64(9999), cerr.Code)
	assert.True(t, errors.Is(slot.Err(), fault.ErrUnknownFaultCode))

	hash := InputHash([]byte("odd"))
	data, err := afero.ReadFile(f.fs, filepath.Join("/out/solutions/unclassified", hash))
	require.NoError(t, err)
	assert.Equal(t, "odd", string(data))

	raw, err := afero.ReadFile(f.fs, filepath.Join("/out/solutions/unclassified", hash+".json"))
	require.NoError(t, err)
	var rec UnclassifiedRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, fault.ArchX86_64, rec.Arch)
	assert.Equal(t, int64(9999), rec.Code)
	assert.Equal(t, hash, rec.Hash)
}

func TestUnknownFaultCodeLeavesOtherSlotsRunning(t *testing.T) {
	h := func(input []byte) map[string]interface{} {
		if string(input) == "odd" {
			return map[string]interface{}{"event": "exception", "arch": "x86-64", "code": 9999}
		}
		return stopWithCoverage(input)
	}
	f := newCampaignFixture(t, h, map[string]string{"a": "odd", "b": "even"})
	f.config.Workers = 2
	f.config.Iterations = 6

	summary, o, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Equal(t, int64(6), summary.Executions)
	assert.Equal(t, int64(1), summary.UnknownFaults)
	assert.Equal(t, 1, summary.FailedSlots)

	failed := 0
	for _, slot := range o.Slots() {
		if slot.State() == SlotFailed {
			failed++
			assert.True(t, errors.Is(slot.Err(), fault.ErrUnknownFaultCode))
		}
	}
	assert.Equal(t, 1, failed)
}

func TestStartupCommandsAndSnapshotOrder(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "abc"})
	f.config.Iterations = 2
	f.config.Commands = []string{"CONFIG:%simics%/targets/qsp/board.simics"}

	_, _, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	var directives []string
	for _, line := range f.launcher.sentCommands() {
		d, arg := bridge.ParseCommand(line)
		directives = append(directives, d)
		switch d {
		case "CONFIG":
			assert.NotContains(t, arg, provision.Placeholder)
			assert.True(t, strings.HasPrefix(arg, "/work/"), arg)
			assert.True(t, strings.HasSuffix(arg, "/targets/qsp/board.simics"), arg)
		case "INPUT":
			assert.True(t, strings.HasSuffix(arg, filepath.Join(InputDir, InputFile)), arg)
		}
	}
	assert.Equal(t, []string{"CONFIG", "SNAPSHOT", "INPUT", "RUN", "RESTORE", "INPUT", "RUN"}, directives)
}

func TestCoverageFeedbackGrowsCorpus(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.config.Iterations = 6

	summary, o, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Greater(t, summary.CorpusSize, 1)
	assert.Len(t, corpusFiles(t, f.fs, "/out/corpus"), summary.CorpusSize)
	assert.Equal(t, summary.CorpusSize, o.Corpus().Size())
}

func TestProvisioningFailureRetiresSlot(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.config.Workers = 2
	f.config.Iterations = 4
	f.provisioner.fail = map[int]bool{0: true}

	summary, o, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FailedSlots)
	assert.Equal(t, int64(4), summary.Executions)
	assert.Equal(t, SlotFailed, o.Slots()[0].State())
	assert.True(t, errors.Is(o.Slots()[0].Err(), provision.ErrCopyFailed))
	assert.Equal(t, int64(4), o.Slots()[1].Executions())
}

func TestAllSlotsFailing(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.config.Workers = 2
	f.provisioner.fail = map[int]bool{0: true, 1: true}

	summary, _, err := f.run(t, appendMutator{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllWorkersFailed))
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.FailedSlots)
	// provisioning failures are structural and never retried
	assert.Equal(t, int64(2), atomic.LoadInt64(&f.provisioner.calls))
}

func TestBridgeFailureRetriesThenRetiresSlot(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.config.MaxBridgeRetries = 2
	f.launcher.dieFirst = 100

	summary, o, err := f.run(t, appendMutator{})
	require.True(t, errors.Is(err, ErrAllWorkersFailed))

	assert.Equal(t, 3, f.launcher.launchCount())
	assert.Equal(t, int64(3), atomic.LoadInt64(&f.provisioner.calls))
	assert.Equal(t, int64(3), summary.BridgeErrors)
	assert.Equal(t, int64(0), summary.Executions)
	assert.True(t, errors.Is(o.Slots()[0].Err(), bridge.ErrSessionClosed))

	// every attempt's workspace was cleaned up
	infos, err := afero.ReadDir(f.fs, "/work")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestBridgeFailureRecoversWithFreshWorkspace(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.launcher.dieFirst = 1

	summary, _, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Equal(t, 2, f.launcher.launchCount())
	assert.Equal(t, int64(1), summary.BridgeErrors)
	assert.Equal(t, int64(3), summary.Executions)
	assert.Equal(t, 0, summary.FailedSlots)
}

func TestTimeoutIsBenignByDefault(t *testing.T) {
	f := newCampaignFixture(t, neverFinishes, map[string]string{"seed": "slow"})
	f.config.Iterations = 2
	f.config.ExecTimeout = 20 * time.Millisecond

	summary, _, err := f.run(t, identityMutator{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Timeouts)
	assert.Equal(t, 0, summary.Hangs)
	assert.Equal(t, 0, summary.Solutions)
}

func TestTimeoutPolicyKeepsHangs(t *testing.T) {
	f := newCampaignFixture(t, neverFinishes, map[string]string{"seed": "slow"})
	f.config.Iterations = 2
	f.config.ExecTimeout = 20 * time.Millisecond
	f.config.Policy = fault.DefaultPolicy()
	f.config.Policy.TimeoutIsCrash = true

	summary, _, err := f.run(t, identityMutator{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Timeouts)
	assert.Equal(t, 1, summary.Hangs)
}

func TestWallClockBudget(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.config.Iterations = 0
	f.config.Duration = 100 * time.Millisecond
	f.config.Workers = 2

	start := time.Now()
	summary, _, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Greater(t, summary.Executions, int64(0))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStopSignalInterruptsPendingCommand(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.config.Iterations = 0
	f.config.Duration = 100 * time.Millisecond
	f.config.CommandTimeout = time.Hour
	f.launcher.silent = true

	start := time.Now()
	summary, o, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int64(0), summary.Executions)
	assert.Equal(t, int64(0), summary.BridgeErrors)
	assert.Equal(t, 0, summary.FailedSlots)
	assert.Equal(t, SlotIdle, o.Slots()[0].State())
	assert.Equal(t, []string{bridge.Snapshot(SnapshotName)}, f.launcher.sentCommands())
}

func TestStopGraceTearsDownBusySlots(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.config.Iterations = 0
	f.config.Duration = 100 * time.Millisecond
	f.config.StopGrace = 50 * time.Millisecond
	torn := newTeardown()
	f.launcher.teardown = torn
	// the slot stays busy reporting its first run until its session is torn down
	f.reporters = []Reporter{gateReporter{release: torn.done}}

	start := time.Now()
	summary, _, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int64(1), summary.Executions)
	select {
	case <-torn.done:
	default:
		t.Fatal("session was not torn down")
	}
}

func TestMutatorFailureIsSkipped(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.config.Iterations = 3
	mutator := &flakyMutator{failFirst: 1}

	summary, o, err := f.run(t, mutator)
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.Executions)
	assert.Equal(t, 0, summary.FailedSlots)
	assert.Equal(t, SlotIdle, o.Slots()[0].State())
	assert.Equal(t, int32(3), atomic.LoadInt32(&mutator.calls))
}

func TestMutatorThatNeverProducesRetiresSlot(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	f.config.Workers = 2
	f.config.Iterations = 5

	summary, o, err := f.run(t, emptyMutator{})
	require.True(t, errors.Is(err, ErrAllWorkersFailed))

	// the seed still ran before mutation was needed
	assert.Equal(t, int64(1), summary.Executions)
	assert.Equal(t, 2, summary.FailedSlots)
	for _, slot := range o.Slots() {
		require.Error(t, slot.Err())
		assert.Contains(t, slot.Err().Error(), "produced no candidate")
	}
}

func TestParallelSlotsShareBudget(t *testing.T) {
	f := newCampaignFixture(t, raiseOn("x", int64(fault.InvalidOpcode)), map[string]string{"a": "seed-a", "b": "seed-b"})
	f.config.Workers = 4
	f.config.Iterations = 20

	summary, o, err := f.run(t, appendMutator{})
	require.NoError(t, err)

	assert.Equal(t, int64(20), summary.Executions)
	var perSlot int64
	for _, slot := range o.Slots() {
		perSlot += slot.Executions()
		assert.Equal(t, SlotIdle, slot.State())
	}
	assert.Equal(t, int64(20), perSlot)
}

func TestWorkspacesRemovedUnlessKept(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	_, _, err := f.run(t, appendMutator{})
	require.NoError(t, err)
	infos, err := afero.ReadDir(f.fs, "/work")
	require.NoError(t, err)
	assert.Empty(t, infos)

	kept := newCampaignFixture(t, stopWithCoverage, map[string]string{"seed": "a"})
	prov, err := provision.NewProvisioner(kept.fs, provision.Config{BaseDir: "/platform", WorkDir: "/work", Keep: true}, nil, quietLogger())
	require.NoError(t, err)
	kept.provisioner.next = prov
	_, _, err = kept.run(t, appendMutator{})
	require.NoError(t, err)
	infos, err = afero.ReadDir(kept.fs, "/work")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestRunRequiresSeeds(t *testing.T) {
	f := newCampaignFixture(t, stopWithCoverage, nil)
	_, _, err := f.run(t, appendMutator{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSeeds))
}

func TestWriteSummary(t *testing.T) {
	fs := afero.NewMemMapFs()
	path, err := WriteSummary(fs, "/out", &Summary{CampaignID: "c1", Executions: 7, Solutions: 2})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", SummaryFile), path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	var decoded Summary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(7), decoded.Executions)
	assert.Equal(t, 2, decoded.Solutions)
}
