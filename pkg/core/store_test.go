/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: store_test.go
Description: Tests for the corpus and solutions stores, the scheduler, coverage feedback and
campaign configuration defaults.
*/

package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/kleascm/simfuzz/pkg/fault"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorpusStoreImportsSeeds(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/seeds/one", []byte("racecar"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/seeds/two", []byte("kayak"), 0644))
	require.NoError(t, fs.MkdirAll("/seeds/nested", 0755))

	store, err := OpenCorpusStore(fs, "/corpus", quietLogger())
	require.NoError(t, err)

	seeds, err := store.ImportSeeds("/seeds")
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, 2, store.Size())

	for _, seed := range seeds {
		assert.Equal(t, 0, seed.Generation)
		data, err := afero.ReadFile(fs, "/corpus/"+seed.ID)
		require.NoError(t, err)
		assert.Equal(t, seed.Data, data)
	}

	reopened, err := OpenCorpusStore(fs, "/corpus", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Size())
}

func TestCorpusStoreSkipsKnownSeedsOnRestart(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/seeds/one", []byte("racecar"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/seeds/copy", []byte("racecar"), 0644))

	store, err := OpenCorpusStore(fs, "/corpus", quietLogger())
	require.NoError(t, err)
	seeds, err := store.ImportSeeds("/seeds")
	require.NoError(t, err)
	assert.Len(t, seeds, 1)

	require.NoError(t, afero.WriteFile(fs, "/seeds/two", []byte("kayak"), 0644))
	reopened, err := OpenCorpusStore(fs, "/corpus", quietLogger())
	require.NoError(t, err)
	seeds, err = reopened.ImportSeeds("/seeds")
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, "kayak", string(seeds[0].Data))
	assert.Equal(t, 2, reopened.Size())
	assert.Len(t, corpusFiles(t, fs, "/corpus"), 2)
}

func TestCorpusStoreRejectsMissingInputDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := OpenCorpusStore(fs, "/corpus", quietLogger())
	require.NoError(t, err)

	_, err = store.ImportSeeds("/missing")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/file", []byte("x"), 0644))
	_, err = store.ImportSeeds("/file")
	assert.Error(t, err)
}

func TestCorpusStoreConcurrentAdd(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := OpenCorpusStore(fs, "/corpus", quietLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Add(&CorpusEntry{Data: []byte(fmt.Sprintf("input-%d", i))}))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Size())
	assert.Len(t, corpusFiles(t, fs, "/corpus"), 50)
	assert.Len(t, store.Entries(), 50)
}

func TestSolutionStoreDeduplicates(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := OpenSolutionStore(fs, "/solutions", quietLogger())
	require.NoError(t, err)

	page := fault.FromX86_64(fault.Page)
	first, isNew, err := store.Add([]byte("crash"), page, 0, "")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, uint64(0), first.ID)

	again, isNew, err := store.Add([]byte("crash"), fault.FromX86_64(fault.GeneralProtection), 1, "")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first, again)

	second, isNew, err := store.Add([]byte("other"), page, 1, "")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, uint64(1), second.ID)
	assert.Equal(t, 2, store.Size())
}

func TestSolutionStoreDeduplicatesConcurrently(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := OpenSolutionStore(fs, "/solutions", quietLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, _, err := store.Add([]byte("same bytes"), fault.FromX86_64(fault.Triple), slot, "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, store.Size())
}

func TestSolutionStoreReloadKeepsDedupAndIDs(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := OpenSolutionStore(fs, "/solutions", quietLogger())
	require.NoError(t, err)
	_, _, err = store.Add([]byte("a"), fault.FromX86_64(fault.Double), 0, "double fault")
	require.NoError(t, err)
	_, _, err = store.Add([]byte("b"), fault.FromX86_64(fault.Triple), 0, "")
	require.NoError(t, err)

	reopened, err := OpenSolutionStore(fs, "/solutions", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Size())

	_, isNew, err := reopened.Add([]byte("a"), fault.FromX86_64(fault.Double), 1, "")
	require.NoError(t, err)
	assert.False(t, isNew)

	rec, isNew, err := reopened.Add([]byte("c"), fault.FromX86_64(fault.Page), 1, "")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, uint64(2), rec.ID)

	records := reopened.Records()
	require.Len(t, records, 3)
	assert.Equal(t, fault.FromX86_64(fault.Double), records[0].Fault)
	assert.Equal(t, "double fault", records[0].Message)
	input, err := reopened.Input(records[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), input)
}

func TestSolutionStoreTimeouts(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := OpenSolutionStore(fs, "/solutions", quietLogger())
	require.NoError(t, err)

	isNew, err := store.AddTimeout([]byte("spin"))
	require.NoError(t, err)
	assert.True(t, isNew)
	isNew, err = store.AddTimeout([]byte("spin"))
	require.NoError(t, err)
	assert.False(t, isNew)

	reopened, err := OpenSolutionStore(fs, "/solutions", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Hangs())
	assert.Equal(t, 0, reopened.Size())
}

func TestSolutionStoreKeepsUnclassifiedInputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := OpenSolutionStore(fs, "/solutions", quietLogger())
	require.NoError(t, err)

	isNew, err := store.AddUnclassified([]byte("weird"), fault.ArchX86_64, 77, 2, "vector 77")
	require.NoError(t, err)
	assert.True(t, isNew)
	isNew, err = store.AddUnclassified([]byte("weird"), fault.ArchX86_64, 77, 3, "")
	require.NoError(t, err)
	assert.False(t, isNew)

	hash := InputHash([]byte("weird"))
	data, err := afero.ReadFile(fs, "/solutions/unclassified/"+hash)
	require.NoError(t, err)
	assert.Equal(t, "weird", string(data))

	// kept apart from solutions, also after a reload
	reopened, err := OpenSolutionStore(fs, "/solutions", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Size())
	isNew, err = reopened.AddUnclassified([]byte("weird"), fault.ArchX86_64, 77, 0, "")
	require.NoError(t, err)
	assert.False(t, isNew)
}

func TestPrioritySchedulerOrder(t *testing.T) {
	s := NewPriorityScheduler()
	assert.Nil(t, s.Next())

	low := &CorpusEntry{ID: "low", Priority: 1}
	high := &CorpusEntry{ID: "high", Priority: 3}
	s.Push(low)
	s.Push(high)
	assert.Equal(t, 2, s.Size())

	// high decays 3 -> 2 -> 1, then ties go to the earlier queued entry
	assert.Equal(t, "high", s.Next().ID)
	assert.Equal(t, "high", s.Next().ID)
	assert.Equal(t, "low", s.Next().ID)
	assert.Equal(t, "high", s.Next().ID)
	assert.Equal(t, 2, s.Size())
}

func TestPrioritySchedulerPushBumpsInsteadOfDuplicating(t *testing.T) {
	s := NewPriorityScheduler()
	entry := &CorpusEntry{ID: "e", Priority: 3}
	other := &CorpusEntry{ID: "o", Priority: 2}
	s.Push(entry)
	s.Push(other)

	// e and o take turns as their priorities decay
	assert.Equal(t, "e", s.Next().ID)
	assert.Equal(t, "o", s.Next().ID)
	assert.Equal(t, "e", s.Next().ID)

	for i := 0; i < 10; i++ {
		s.Push(entry)
	}
	assert.Equal(t, 2, s.Size())
	// back at its own priority 3, ahead of o
	assert.Equal(t, "e", s.Next().ID)

	// a lower priority push never demotes
	s.Push(&CorpusEntry{ID: "o", Priority: 1})
	assert.Equal(t, 2, s.Size())
}

func TestCoverageFeedbackNovelty(t *testing.T) {
	f := NewCoverageFeedback()
	entry := &CorpusEntry{ID: "e"}

	assert.False(t, f.IsInteresting(entry, nil))
	assert.True(t, f.IsInteresting(entry, NewCoverage([]byte{1, 0, 2})))
	assert.False(t, f.IsInteresting(entry, NewCoverage([]byte{1, 0, 2})))
	assert.True(t, f.IsInteresting(entry, NewCoverage([]byte{1, 1, 2})))
	assert.Equal(t, 2, f.Unique())
}

func TestNewCoverage(t *testing.T) {
	assert.Nil(t, NewCoverage(nil))
	cov := NewCoverage([]byte{0, 4, 0, 9})
	require.NotNil(t, cov)
	assert.Equal(t, 2, cov.EdgeCount)
	assert.Len(t, cov.Hash, 64)
}

func TestCampaignConfigValidate(t *testing.T) {
	c := &CampaignConfig{InputDir: "in", CorpusDir: "corpus", SolutionsDir: "solutions"}
	require.NoError(t, c.Validate())
	assert.Greater(t, c.Workers, 0)
	assert.Equal(t, DefaultExecTimeout, c.ExecTimeout)
	assert.Equal(t, DefaultMaxBridgeRetries, c.MaxBridgeRetries)
	assert.Equal(t, fault.ArchX86_64, c.Arch)
	assert.True(t, c.Policy.Contains(fault.FromX86_64(fault.Triple)))

	missing := &CampaignConfig{InputDir: "in", CorpusDir: "corpus"}
	assert.Error(t, missing.Validate())

	negative := &CampaignConfig{InputDir: "in", CorpusDir: "corpus", SolutionsDir: "s", Iterations: -1}
	assert.Error(t, negative.Validate())

	badArch := &CampaignConfig{InputDir: "in", CorpusDir: "corpus", SolutionsDir: "s", Arch: "sparc"}
	assert.Error(t, badArch.Validate())
}

func TestSlotStateString(t *testing.T) {
	assert.Equal(t, "idle", SlotIdle.String())
	assert.Equal(t, "observing", SlotObserving.String())
	assert.Equal(t, "failed", SlotFailed.String())
	assert.Equal(t, "SlotState(42)", SlotState(42).String())
}
