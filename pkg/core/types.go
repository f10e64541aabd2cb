/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: types.go
Description: Core types for the simfuzz orchestrator. Defines corpus entries, crash records,
coverage feedback, worker slot states, campaign statistics and the interfaces through which
the orchestrator talks to the mutation engine and the workspace provisioner.
*/

package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kleascm/simfuzz/pkg/fault"
	"github.com/kleascm/simfuzz/pkg/provision"
)

// CorpusEntry is a retained input plus the feedback that earned it a place in the corpus
type CorpusEntry struct {
	ID         string    `json:"id"`         // Unique identifier, also the file name on disk
	Data       []byte    `json:"-"`          // Input bytes
	ParentID   string    `json:"parent_id"`  // Entry this one was derived from
	Generation int       `json:"generation"` // 0 for seeds, parent+1 for mutations
	Coverage   *Coverage `json:"coverage"`   // Coverage observed when the entry was kept
	Priority   int       `json:"priority"`   // Scheduling weight, higher runs sooner
	CreatedAt  time.Time `json:"created_at"`
}

// Coverage is the opaque coverage map reported by the simulator for one run
type Coverage struct {
	Bitmap    []byte    `json:"-"`
	EdgeCount int       `json:"edge_count"` // Non-zero bitmap entries
	Hash      string    `json:"hash"`       // SHA-256 of the bitmap
	Timestamp time.Time `json:"timestamp"`
}

// NewCoverage summarises a raw coverage bitmap. Returns nil for an empty map.
func NewCoverage(bitmap []byte) *Coverage {
	if len(bitmap) == 0 {
		return nil
	}
	edges := 0
	for _, b := range bitmap {
		if b != 0 {
			edges++
		}
	}
	sum := sha256.Sum256(bitmap)
	return &Coverage{
		Bitmap:    bitmap,
		EdgeCount: edges,
		Hash:      hex.EncodeToString(sum[:]),
		Timestamp: time.Now(),
	}
}

// CrashRecord is an input known to trigger a reportable fault. Never modified after creation.
type CrashRecord struct {
	ID      uint64      `json:"id"`    // Monotonic discovery identifier
	Input   []byte      `json:"-"`     // Crashing input, stored beside the record
	Fault   fault.Fault `json:"fault"` // Classified fault
	Hash    string      `json:"hash"`  // SHA-256 of Input, used for deduplication
	FoundAt time.Time   `json:"found_at"`
	Slot    int         `json:"slot"` // Worker slot that found it
	Message string      `json:"message,omitempty"`
}

// InputHash returns the content hash used to deduplicate solutions
func InputHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SlotState is the lifecycle state of one worker slot
type SlotState int32

const (
	SlotIdle SlotState = iota
	SlotProvisioning
	SlotRunning
	SlotObserving
	SlotFaulted
	SlotFailed
)

var slotStateNames = [...]string{"idle", "provisioning", "running", "observing", "faulted", "failed"}

func (s SlotState) String() string {
	if s < 0 || int(s) >= len(slotStateNames) {
		return fmt.Sprintf("SlotState(%d)", int32(s))
	}
	return slotStateNames[s]
}

// Outcome is what a single execution ended in
type Outcome int

const (
	OutcomeCompleted Outcome = iota // target stopped normally
	OutcomeTimeout                  // no notification within the execution timeout
	OutcomeFault                    // target raised a processor exception
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFault:
		return "fault"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Execution describes one finished run of a candidate input
type Execution struct {
	Slot     int
	Input    *CorpusEntry
	Outcome  Outcome
	Fault    *fault.Fault // set when the fault code was classified
	Coverage *Coverage
	Duration time.Duration
}

// Stats tracks campaign counters. Updated atomically by every worker.
type Stats struct {
	Executions    int64
	Timeouts      int64
	Faults        int64
	UnknownFaults int64
	BridgeErrors  int64
	StartTime     time.Time
}

func (s *Stats) incExecutions()    { atomic.AddInt64(&s.Executions, 1) }
func (s *Stats) incTimeouts()      { atomic.AddInt64(&s.Timeouts, 1) }
func (s *Stats) incFaults()        { atomic.AddInt64(&s.Faults, 1) }
func (s *Stats) incUnknownFaults() { atomic.AddInt64(&s.UnknownFaults, 1) }
func (s *Stats) incBridgeErrors()  { atomic.AddInt64(&s.BridgeErrors, 1) }

// Summary is the final report of a campaign
type Summary struct {
	CampaignID    string        `json:"campaign_id"`
	Executions    int64         `json:"executions"`
	Timeouts      int64         `json:"timeouts"`
	Faults        int64         `json:"faults"`
	UnknownFaults int64         `json:"unknown_faults"`
	BridgeErrors  int64         `json:"bridge_errors"`
	CorpusSize    int           `json:"corpus_size"`
	Solutions     int           `json:"solutions"`
	Hangs         int           `json:"hangs"`
	FailedSlots   int           `json:"failed_slots"`
	Workers       int           `json:"workers"`
	Duration      time.Duration `json:"duration"`
}

// Mutator proposes new candidates from existing corpus entries
type Mutator interface {
	Mutate(entry *CorpusEntry) (*CorpusEntry, error)
	Name() string
}

// Feedback decides whether a completed run is worth keeping in the corpus
type Feedback interface {
	IsInteresting(entry *CorpusEntry, cov *Coverage) bool
}

// Provisioner supplies one workspace per worker slot
type Provisioner interface {
	Provision(ctx context.Context, slot int) (*provision.Workspace, error)
}
