/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Reporter hooks for campaign telemetry. The orchestrator notifies every registered
reporter after each execution, corpus addition and new solution.
*/

package core

import (
	"github.com/sirupsen/logrus"
)

// Reporter receives campaign events. Implementations must be safe for
// concurrent use since every worker slot reports directly.
type Reporter interface {
	// OnExecution is called after each finished execution.
	OnExecution(exec *Execution)
	// OnCorpusAdd is called when an input is retained in the corpus.
	OnCorpusAdd(entry *CorpusEntry)
	// OnSolution is called once per distinct crashing input.
	OnSolution(rec *CrashRecord)
}

// LoggerReporter logs campaign events through logrus
type LoggerReporter struct {
	logger *logrus.Logger
}

// NewLoggerReporter creates a new LoggerReporter.
func NewLoggerReporter(logger *logrus.Logger) *LoggerReporter {
	return &LoggerReporter{logger: logger}
}

// OnExecution logs execution results at debug level; faults are promoted to info.
func (r *LoggerReporter) OnExecution(exec *Execution) {
	fields := logrus.Fields{
		"slot":     exec.Slot,
		"outcome":  exec.Outcome.String(),
		"duration": exec.Duration,
	}
	if exec.Input != nil {
		fields["input"] = exec.Input.ID
	}
	if exec.Fault != nil {
		fields["fault"] = exec.Fault.String()
		r.logger.WithFields(fields).Info("Execution raised a fault")
		return
	}
	r.logger.WithFields(fields).Debug("Execution finished")
}

// OnCorpusAdd logs new corpus entries.
func (r *LoggerReporter) OnCorpusAdd(entry *CorpusEntry) {
	fields := logrus.Fields{"id": entry.ID, "generation": entry.Generation}
	if entry.Coverage != nil {
		fields["edges"] = entry.Coverage.EdgeCount
	}
	r.logger.WithFields(fields).Info("Input added to corpus")
}

// OnSolution logs new solutions.
func (r *LoggerReporter) OnSolution(rec *CrashRecord) {
	r.logger.WithFields(logrus.Fields{
		"id":    rec.ID,
		"fault": rec.Fault.String(),
		"code":  rec.Fault.Code(),
		"hash":  rec.Hash,
		"slot":  rec.Slot,
	}).Warn("New solution found")
}
