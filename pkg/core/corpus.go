/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: corpus.go
Description: Disk-backed corpus store shared by every worker slot. Entries are written to the
corpus directory under their UUID and kept in memory for the mutation engine. Appends are safe
from concurrent workers; entries are not deduplicated here.
*/

package core

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const seedPriority = 100

// CorpusStore manages the collection of retained inputs
type CorpusStore struct {
	fs      afero.Fs
	dir     string
	logger  *logrus.Logger
	entries map[string]*CorpusEntry
	order   []string // insertion order for deterministic listing
	mu      sync.RWMutex
}

// OpenCorpusStore opens dir, creating it if needed, and loads any entries
// left by a previous campaign
func OpenCorpusStore(fs afero.Fs, dir string, logger *logrus.Logger) (*CorpusStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create corpus directory: %w", err)
	}

	c := &CorpusStore{
		fs:      fs,
		dir:     dir,
		logger:  logger,
		entries: make(map[string]*CorpusEntry),
	}

	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory: %w", err)
	}
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		data, err := afero.ReadFile(fs, filepath.Join(dir, info.Name()))
		if err != nil {
			logger.Warnf("Failed to read corpus entry %s: %v", info.Name(), err)
			continue
		}
		c.insert(&CorpusEntry{
			ID:        info.Name(),
			Data:      data,
			Priority:  seedPriority,
			CreatedAt: info.ModTime(),
		})
	}
	if len(c.order) > 0 {
		logger.Infof("Loaded %d existing corpus entries from %s", len(c.order), dir)
	}
	return c, nil
}

// ImportSeeds copies every regular file in inputDir into the corpus as a
// generation zero entry and returns the new entries. Seeds whose content is
// already in the corpus, such as on a restart, are not copied again.
func (c *CorpusStore) ImportSeeds(inputDir string) ([]*CorpusEntry, error) {
	info, err := c.fs.Stat(inputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is not a directory", inputDir)
	}

	infos, err := afero.ReadDir(c.fs, inputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	known := make(map[string]struct{})
	for _, entry := range c.Entries() {
		known[InputHash(entry.Data)] = struct{}{}
	}

	var seeds []*CorpusEntry
	skipped := 0
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		data, err := afero.ReadFile(c.fs, filepath.Join(inputDir, info.Name()))
		if err != nil {
			c.logger.Warnf("Failed to read seed file %s: %v", info.Name(), err)
			continue
		}
		hash := InputHash(data)
		if _, ok := known[hash]; ok {
			skipped++
			continue
		}
		known[hash] = struct{}{}

		entry := &CorpusEntry{Data: data, Priority: seedPriority}
		if err := c.Add(entry); err != nil {
			return seeds, err
		}
		seeds = append(seeds, entry)
	}

	c.logger.Infof("Imported %d seed inputs from %s (%d already in corpus)", len(seeds), inputDir, skipped)
	return seeds, nil
}

// Add writes entry to disk and keeps it in memory. An empty ID is assigned.
func (c *CorpusStore) Add(entry *CorpusEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := afero.WriteFile(c.fs, filepath.Join(c.dir, entry.ID), entry.Data, 0644); err != nil {
		return fmt.Errorf("failed to write corpus entry %s: %w", entry.ID, err)
	}

	c.mu.Lock()
	c.insert(entry)
	c.mu.Unlock()
	return nil
}

func (c *CorpusStore) insert(entry *CorpusEntry) {
	if _, exists := c.entries[entry.ID]; !exists {
		c.order = append(c.order, entry.ID)
	}
	c.entries[entry.ID] = entry
}

// Get retrieves an entry by ID, nil if absent
func (c *CorpusStore) Get(id string) *CorpusEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[id]
}

// Size returns the number of entries
func (c *CorpusStore) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns every entry in insertion order
func (c *CorpusStore) Entries() []*CorpusEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*CorpusEntry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}
