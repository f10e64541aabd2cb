/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: process.go
Description: Simulator process management. Starts one simulator per workspace with its
standard streams wired to a bridge session, tracks every child it starts, and tears
processes down within a bounded grace period. Each simulator runs in its own process group so
wrapper scripts and the engines they spawn are killed together.
*/

package bridge

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/kleascm/simfuzz/pkg/provision"
	"github.com/sirupsen/logrus"
)

// DefaultGrace is how long a simulator gets to exit after its input is closed
const DefaultGrace = 5 * time.Second

// quitSeq numbers the QUIT line sent on teardown. Sessions start at 1, so
// its reply is never mistaken for one a caller waits on.
const quitSeq = 0

// Launcher starts a simulator against a provisioned workspace
type Launcher interface {
	Launch(ctx context.Context, ws *provision.Workspace) (*Session, error)
}

// ProcessLauncher runs the simulator as a child process speaking the line
// protocol on stdin and stdout
type ProcessLauncher struct {
	Binary string        // executable, placeholder expanded against the workspace
	Args   []string      // arguments, placeholder expanded
	Env    []string      // extra environment entries
	Grace  time.Duration // time allowed between closing stdin and killing

	logger *logrus.Logger

	mu       sync.Mutex
	children map[int]*os.Process // group leaders still running
}

// NewProcessLauncher creates a launcher for binary
func NewProcessLauncher(binary string, args []string, logger *logrus.Logger) *ProcessLauncher {
	if logger == nil {
		logger = logrus.New()
	}
	return &ProcessLauncher{
		Binary:   binary,
		Args:     args,
		Grace:    DefaultGrace,
		logger:   logger,
		children: make(map[int]*os.Process),
	}
}

// Launch starts the simulator in the workspace root
func (l *ProcessLauncher) Launch(ctx context.Context, ws *provision.Workspace) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	binary := ws.Expand(l.Binary)
	if !filepath.IsAbs(binary) && filepath.Base(binary) != binary {
		binary = filepath.Join(ws.Root, binary)
	}
	args := make([]string, len(l.Args))
	for i, a := range l.Args {
		args[i] = ws.Expand(a)
	}

	grace := l.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	cmd := exec.Command(binary, args...)
	cmd.Dir = ws.Root
	cmd.Env = append(os.Environ(), l.Env...)
	// stray holders of the stderr pipe cannot stall Wait past the grace period
	cmd.WaitDelay = grace
	setProcessGroup(cmd)

	// plain pipes: stdin takes a write deadline for QUIT, and Wait never
	// closes the stdout read side before the session drains it
	stdinR, stdin, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	stderr := l.logger.WithFields(logrus.Fields{"slot": ws.Slot, "stream": "stderr"}).WriterLevel(logrus.DebugLevel)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdin.Close()
		stdout.Close()
		stdoutW.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start simulator %s: %w", binary, err)
	}
	stdinR.Close()
	stdoutW.Close()

	l.mu.Lock()
	l.children[cmd.Process.Pid] = cmd.Process
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"slot":      ws.Slot,
		"pid":       cmd.Process.Pid,
		"workspace": ws.Root,
	}).Debug("Simulator started")

	closer := &processCloser{
		launcher: l,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		grace:    grace,
		exited:   make(chan struct{}),
	}
	go closer.reap()

	return NewSession(stdout, stdin, closer), nil
}

// Cleanup kills every simulator still running together with its process group
func (l *ProcessLauncher) Cleanup() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for pid, p := range l.children {
		l.logger.Debugf("Killing simulator process group %d", pid)
		killProcessGroup(p)
	}
	l.children = make(map[int]*os.Process)
	return nil
}

func (l *ProcessLauncher) forget(pid int) {
	l.mu.Lock()
	delete(l.children, pid)
	l.mu.Unlock()
}

type processCloser struct {
	launcher *ProcessLauncher
	cmd      *exec.Cmd
	stdin    *os.File
	stdout   io.Closer
	stderr   io.Closer
	grace    time.Duration

	once   sync.Once
	exited chan struct{}
}

// reap waits for the process so its exit is observed even without Close
func (c *processCloser) reap() {
	c.cmd.Wait()
	c.launcher.forget(c.cmd.Process.Pid)
	c.stderr.Close()
	close(c.exited)
}

// quit asks the simulator to exit. A simulator that stopped reading its
// input cannot hold the write up for longer than the grace period.
func (c *processCloser) quit() {
	c.stdin.SetWriteDeadline(time.Now().Add(c.grace))
	fmt.Fprintf(c.stdin, "%d %s\n", quitSeq, Quit())
	c.stdin.Close()
}

// Close sends QUIT and closes the simulator's input, waits out the grace
// period, then kills whatever is left of the process group
func (c *processCloser) Close() error {
	c.once.Do(func() {
		c.quit()
		select {
		case <-c.exited:
		case <-time.After(c.grace):
			c.launcher.logger.Debugf("Simulator PID %d ignored QUIT, killing its process group", c.cmd.Process.Pid)
		}
		// also takes down children a wrapper left behind when it exited
		killProcessGroup(c.cmd.Process)
		<-c.exited
		c.stdout.Close()
	})
	return nil
}
