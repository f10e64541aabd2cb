/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: worker.go
Description: Worker slot implementation. Each slot owns one workspace and one simulator
session for its lifetime, drives candidate inputs through the control bridge and hands every
outcome back to the orchestrator. Provisioning and classification failures retire the slot
immediately; simulator failures are retried with a fresh workspace up to the campaign's retry
bound. A mutator that fails is skipped over until it has failed too many times in a row.
*/

package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kleascm/simfuzz/pkg/bridge"
	"github.com/kleascm/simfuzz/pkg/fault"
	"github.com/kleascm/simfuzz/pkg/provision"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// campaignError marks failures that no amount of re-provisioning can fix,
// such as the corpus or solutions store becoming unwritable
type campaignError struct {
	err error
}

func (e *campaignError) Error() string { return e.err.Error() }
func (e *campaignError) Unwrap() error { return e.err }

// slotError retires the slot that hit it while the rest of the campaign goes on
type slotError struct {
	err error
}

func (e *slotError) Error() string { return e.err.Error() }
func (e *slotError) Unwrap() error { return e.err }

// maxCandidateFailures is how many candidates in a row may fail to materialise
// before the slot gives up
const maxCandidateFailures = 16

// Slot is one worker slot bound to a single simulator process at a time
type Slot struct {
	ID int

	o      *Orchestrator
	logger *logrus.Entry

	state      int32 // SlotState
	retries    int   // consecutive simulator failures
	misses     int   // consecutive candidate failures
	executions int64
	lastErr    error

	mu      sync.Mutex
	session *bridge.Session
}

func newSlot(id int, o *Orchestrator) *Slot {
	return &Slot{
		ID:     id,
		o:      o,
		logger: o.logger.WithFields(logrus.Fields{"campaign": o.id, "slot": id}),
	}
}

// State returns the slot's current lifecycle state
func (s *Slot) State() SlotState {
	return SlotState(atomic.LoadInt32(&s.state))
}

func (s *Slot) setState(st SlotState) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Executions returns the number of runs this slot completed
func (s *Slot) Executions() int64 {
	return atomic.LoadInt64(&s.executions)
}

// Err returns why the slot failed, nil unless its state is SlotFailed
func (s *Slot) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Slot) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.setState(SlotFailed)
}

func (s *Slot) setSession(sess *bridge.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// abort tears down the live session so any blocked command returns
func (s *Slot) abort() {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// run drives the slot until the budget is exhausted, the campaign stops or the
// slot fails. Only campaign-wide failures are returned.
func (s *Slot) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil || s.o.exhausted() {
			s.setState(SlotIdle)
			return nil
		}

		s.setState(SlotProvisioning)
		ws, err := s.o.provisioner.Provision(ctx, s.ID)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(SlotIdle)
				return nil
			}
			s.logger.WithError(err).Error("Provisioning failed, retiring slot")
			s.fail(err)
			return nil
		}

		err = s.drive(ctx, ws)
		if cerr := ws.Close(); cerr != nil {
			s.logger.WithError(cerr).Warn("Failed to clean up workspace")
		}

		var fatal *campaignError
		var retire *slotError
		switch {
		case errors.As(err, &retire):
			s.logger.WithError(retire.err).Error("Retiring slot")
			s.fail(retire.err)
			return nil
		case err == nil || ctx.Err() != nil:
			s.setState(SlotIdle)
			return nil
		case errors.As(err, &fatal):
			s.fail(err)
			return fmt.Errorf("slot %d: %w", s.ID, fatal.err)
		}

		s.o.stats.incBridgeErrors()
		s.retries++
		limit := s.o.config.MaxBridgeRetries
		if limit < 0 {
			limit = 0
		}
		if s.retries > limit {
			s.logger.WithError(err).Errorf("Simulator failed %d times in a row, retiring slot", s.retries)
			s.fail(err)
			return nil
		}
		s.logger.WithError(err).Warnf("Simulator failed, re-provisioning (attempt %d of %d)", s.retries, limit)
	}
}

// drive starts a simulator in ws, prepares it and runs candidates until the
// budget ends. A nil return means the slot stopped cleanly.
func (s *Slot) drive(ctx context.Context, ws *provision.Workspace) error {
	s.setState(SlotRunning)
	sess, err := s.o.launcher.Launch(ctx, ws)
	if err != nil {
		return fmt.Errorf("failed to launch simulator: %w", err)
	}
	s.setSession(sess)
	defer func() {
		s.setSession(nil)
		sess.Close()
	}()

	for _, line := range s.o.config.Commands {
		if _, err := sess.SendCommand(ctx, ws.Expand(line), s.o.config.CommandTimeout); err != nil {
			return err
		}
	}
	if _, err := sess.SendCommand(ctx, bridge.Snapshot(SnapshotName), s.o.config.CommandTimeout); err != nil {
		return err
	}

	inputPath := filepath.Join(ws.Root, InputDir, InputFile)
	if err := s.o.fs.MkdirAll(filepath.Dir(inputPath), 0755); err != nil {
		return &campaignError{fmt.Errorf("failed to create input directory: %w", err)}
	}

	restore := false
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !s.o.claimTicket() {
			return nil
		}

		entry, err := s.o.nextCandidate()
		if err != nil {
			s.o.releaseTicket()
			s.misses++
			if s.misses >= maxCandidateFailures {
				return &slotError{fmt.Errorf("%d candidates in a row failed: %w", s.misses, err)}
			}
			s.logger.WithError(err).Warn("No candidate produced, skipping")
			continue
		}
		s.misses = 0

		s.setState(SlotRunning)
		exec, ev, err := s.execute(ctx, sess, inputPath, entry, restore)
		restore = true
		if err != nil {
			s.o.releaseTicket()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.retries = 0
		atomic.AddInt64(&s.executions, 1)
		if err := s.o.record(s, exec, ev); err != nil {
			var retire *slotError
			if errors.As(err, &retire) {
				return err
			}
			return &campaignError{err}
		}
		if s.State() != SlotFaulted {
			s.setState(SlotIdle)
		}
	}
}

// execute runs one candidate and waits for its outcome
func (s *Slot) execute(ctx context.Context, sess *bridge.Session, inputPath string, entry *CorpusEntry, restore bool) (*Execution, bridge.Event, error) {
	timeout := s.o.config.CommandTimeout

	if restore {
		if _, err := sess.SendCommand(ctx, bridge.Restore(SnapshotName), timeout); err != nil {
			return nil, bridge.Event{}, err
		}
	}
	drainEvents(sess)

	if err := afero.WriteFile(s.o.fs, inputPath, entry.Data, 0644); err != nil {
		return nil, bridge.Event{}, &campaignError{fmt.Errorf("failed to write input: %w", err)}
	}

	start := time.Now()
	deadline := time.NewTimer(s.o.config.ExecTimeout)
	defer deadline.Stop()

	if _, err := sess.SendCommand(ctx, bridge.Inject(inputPath), timeout); err != nil {
		return nil, bridge.Event{}, err
	}
	if _, err := sess.SendCommand(ctx, bridge.Run(), timeout); err != nil {
		return nil, bridge.Event{}, err
	}

	s.setState(SlotObserving)
	exec := &Execution{Slot: s.ID, Input: entry}
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok || ev.Kind == bridge.EventExited {
				return nil, bridge.Event{}, &bridge.BridgeError{
					Session: sess.ID(),
					Message: "simulator exited during execution",
					Err:     bridge.ErrSessionClosed,
				}
			}
			switch ev.Kind {
			case bridge.EventStopped:
				exec.Outcome = OutcomeCompleted
			case bridge.EventException:
				exec.Outcome = OutcomeFault
			default:
				s.logger.Debugf("Ignoring %q notification", ev.Kind)
				continue
			}
			exec.Coverage = NewCoverage(ev.Coverage)
			exec.Duration = time.Since(start)
			return exec, ev, nil
		case <-deadline.C:
			exec.Outcome = OutcomeTimeout
			exec.Duration = time.Since(start)
			return exec, bridge.Event{}, nil
		case <-ctx.Done():
			return nil, bridge.Event{}, ctx.Err()
		}
	}
}

// drainEvents discards notifications left over from a previous run
func drainEvents(sess *bridge.Session) {
	for {
		select {
		case _, ok := <-sess.Events():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// eventArch resolves the architecture tag of a notification
func eventArch(tag string, fallback fault.Architecture) fault.Architecture {
	if tag == "" {
		return fallback
	}
	if arch, err := fault.ParseArchitecture(tag); err == nil {
		return arch
	}
	return fault.Architecture(tag)
}
