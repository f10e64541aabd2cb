/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: solutions.go
Description: Disk-backed archive of crashing inputs. Every solution is stored as the raw input
named by its SHA-256 plus a JSON record beside it. Byte-identical inputs are recorded once, and
records left by earlier campaigns are reloaded so deduplication spans restarts. Inputs whose fault
could not be classified are kept apart under unclassified/ with the raw architecture and code.
*/

package core

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kleascm/simfuzz/pkg/fault"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	recordSuffix    = ".json"
	timeoutsDir     = "timeouts"
	unclassifiedDir = "unclassified"
)

// UnclassifiedRecord describes an input that raised a fault outside the known taxonomy
type UnclassifiedRecord struct {
	Hash    string             `json:"hash"`
	Arch    fault.Architecture `json:"arch"`
	Code    int64              `json:"code"`
	FoundAt time.Time          `json:"found_at"`
	Slot    int                `json:"slot"`
	Message string             `json:"message,omitempty"`
}

// SolutionStore persists deduplicated crash records
type SolutionStore struct {
	fs      afero.Fs
	dir     string
	logger  *logrus.Logger
	records map[string]*CrashRecord // keyed by input hash
	hangs   map[string]struct{}     // timed-out inputs kept when the policy asks for them
	nextID  uint64
	mu      sync.Mutex
}

// OpenSolutionStore opens dir, creating it if needed, and reloads existing records
func OpenSolutionStore(fs afero.Fs, dir string, logger *logrus.Logger) (*SolutionStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create solutions directory: %w", err)
	}

	s := &SolutionStore{
		fs:      fs,
		dir:     dir,
		logger:  logger,
		records: make(map[string]*CrashRecord),
		hangs:   make(map[string]struct{}),
	}

	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read solutions directory: %w", err)
	}
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), recordSuffix) {
			continue
		}
		data, err := afero.ReadFile(fs, filepath.Join(dir, info.Name()))
		if err != nil {
			logger.Warnf("Failed to read solution record %s: %v", info.Name(), err)
			continue
		}
		var rec CrashRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			logger.Warnf("Skipping malformed solution record %s: %v", info.Name(), err)
			continue
		}
		if rec.Hash == "" {
			rec.Hash = strings.TrimSuffix(info.Name(), recordSuffix)
		}
		s.records[rec.Hash] = &rec
		if rec.ID >= s.nextID {
			s.nextID = rec.ID + 1
		}
	}
	if hangs, err := afero.ReadDir(fs, filepath.Join(dir, timeoutsDir)); err == nil {
		for _, info := range hangs {
			if !info.IsDir() {
				s.hangs[info.Name()] = struct{}{}
			}
		}
	}
	if len(s.records) > 0 {
		logger.Infof("Loaded %d existing solutions from %s", len(s.records), dir)
	}
	return s, nil
}

// Add records input as a solution for f. It returns the stored record and
// whether it was new; a byte-identical input already on record is not stored again.
func (s *SolutionStore) Add(input []byte, f fault.Fault, slot int, message string) (*CrashRecord, bool, error) {
	hash := InputHash(input)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[hash]; ok {
		return rec, false, nil
	}

	rec := &CrashRecord{
		ID:      s.nextID,
		Input:   append([]byte(nil), input...),
		Fault:   f,
		Hash:    hash,
		FoundAt: time.Now(),
		Slot:    slot,
		Message: message,
	}

	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, hash), rec.Input, 0644); err != nil {
		return nil, false, fmt.Errorf("failed to write solution input: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode solution record: %w", err)
	}
	// the record is written last so a reload only ever sees complete solutions
	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, hash+recordSuffix), data, 0644); err != nil {
		return nil, false, fmt.Errorf("failed to write solution record: %w", err)
	}

	s.records[hash] = rec
	s.nextID++
	return rec, true, nil
}

// AddTimeout keeps an input whose execution timed out, deduplicated like solutions.
// It reports whether the input was new.
func (s *SolutionStore) AddTimeout(input []byte) (bool, error) {
	hash := InputHash(input)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hangs[hash]; ok {
		return false, nil
	}
	dir := filepath.Join(s.dir, timeoutsDir)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create timeouts directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(dir, hash), input, 0644); err != nil {
		return false, fmt.Errorf("failed to write timed-out input: %w", err)
	}
	s.hangs[hash] = struct{}{}
	return true, nil
}

// AddUnclassified keeps an input whose fault code could not be classified, with
// the raw architecture and code beside it. It reports whether the input was new.
func (s *SolutionStore) AddUnclassified(input []byte, arch fault.Architecture, code int64, slot int, message string) (bool, error) {
	hash := InputHash(input)
	dir := filepath.Join(s.dir, unclassifiedDir)
	recordPath := filepath.Join(dir, hash+recordSuffix)

	s.mu.Lock()
	defer s.mu.Unlock()

	if exists, _ := afero.Exists(s.fs, recordPath); exists {
		return false, nil
	}
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create unclassified directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(dir, hash), input, 0644); err != nil {
		return false, fmt.Errorf("failed to write unclassified input: %w", err)
	}
	data, err := json.MarshalIndent(&UnclassifiedRecord{
		Hash:    hash,
		Arch:    arch,
		Code:    code,
		FoundAt: time.Now(),
		Slot:    slot,
		Message: message,
	}, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to encode unclassified record: %w", err)
	}
	if err := afero.WriteFile(s.fs, recordPath, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write unclassified record: %w", err)
	}
	return true, nil
}

// Hangs returns the number of distinct timed-out inputs kept
func (s *SolutionStore) Hangs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hangs)
}

// Size returns the number of distinct solutions
func (s *SolutionStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns every solution ordered by discovery ID
func (s *SolutionStore) Records() []*CrashRecord {
	s.mu.Lock()
	out := make([]*CrashRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Input loads the stored input for a record
func (s *SolutionStore) Input(rec *CrashRecord) ([]byte, error) {
	if rec.Input != nil {
		return rec.Input, nil
	}
	return afero.ReadFile(s.fs, filepath.Join(s.dir, rec.Hash))
}
