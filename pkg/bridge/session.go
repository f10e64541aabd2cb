/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: session.go
Description: Synchronous control channel to one running simulator instance. Commands are
written as numbered text lines and block until the matching JSON reply arrives, the timeout
expires, the caller's context is cancelled, or the simulator goes away. Unsolicited
notifications (stop, exception, exit) are delivered on a separate event channel.
*/

package bridge

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrCommandRejected = errors.New("command rejected")
	ErrCommandTimeout  = errors.New("command timed out")
	ErrCommandAborted  = errors.New("command aborted")
	ErrInvalidCommand  = errors.New("invalid command")
)

// maxLineSize bounds a single protocol line, coverage maps included
const maxLineSize = 16 * 1024 * 1024

// BridgeError reports a failed command on a session. The bridge never retries.
type BridgeError struct {
	Session string
	Command string
	Message string
	Err     error
}

func (e *BridgeError) Error() string {
	msg := fmt.Sprintf("bridge session %s", e.Session)
	if e.Command != "" {
		msg += fmt.Sprintf(" command %q", e.Command)
	}
	msg += ": " + e.Err.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *BridgeError) Unwrap() error { return e.Err }

// CommandResult is the structured value returned by the simulator for one command
type CommandResult struct {
	Seq   uint64
	Value json.RawMessage
}

// String returns the result value decoded as a string, or its raw JSON text
func (r CommandResult) String() string {
	var s string
	if err := json.Unmarshal(r.Value, &s); err == nil {
		return s
	}
	return string(r.Value)
}

// EventKind classifies an unsolicited simulator notification
type EventKind string

const (
	EventStopped   EventKind = "stopped"   // execution finished normally
	EventException EventKind = "exception" // target raised a processor fault
	EventExited    EventKind = "exited"    // simulator is shutting down
)

// Event is an unsolicited notification from the simulator
type Event struct {
	Kind     EventKind
	Arch     string
	Code     int64
	Coverage []byte
	Message  string
}

type wireMessage struct {
	Seq      *uint64         `json:"seq,omitempty"`
	OK       bool            `json:"ok"`
	Value    json.RawMessage `json:"value,omitempty"`
	Error    string          `json:"error,omitempty"`
	Event    EventKind       `json:"event,omitempty"`
	Arch     string          `json:"arch,omitempty"`
	Code     int64           `json:"code,omitempty"`
	Coverage string          `json:"coverage,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// Session is one live control connection. Commands are serialised: each call
// waits for its own reply before the next command is written.
type Session struct {
	id     string
	w      io.Writer
	closer io.Closer

	mu  sync.Mutex
	seq uint64

	replies chan wireMessage
	events  chan Event
	done    chan struct{}
	stop    chan struct{}

	errMu     sync.Mutex
	err       error
	closeOnce sync.Once
}

// NewSession starts reading replies from r and writes commands to w.
// closer, if non-nil, is invoked by Close to tear the simulator down.
func NewSession(r io.Reader, w io.Writer, closer io.Closer) *Session {
	s := &Session{
		id:      uuid.New().String(),
		w:       w,
		closer:  closer,
		replies: make(chan wireMessage, 16),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	go s.readLoop(r)
	return s
}

// ID returns the session identifier used in logs and errors
func (s *Session) ID() string { return s.id }

// Events delivers unsolicited notifications. The channel is closed when the
// simulator's output ends.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session can no longer receive replies
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session ended, or nil while it is alive
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *Session) readLoop(r io.Reader) {
	defer close(s.events)
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg wireMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			// simulator console chatter shares the stream and is not protocol
			continue
		}

		if msg.Event != "" {
			ev := Event{Kind: msg.Event, Arch: msg.Arch, Code: msg.Code, Message: msg.Message}
			if msg.Coverage != "" {
				if cov, err := hex.DecodeString(msg.Coverage); err == nil {
					ev.Coverage = cov
				}
			}
			select {
			case s.events <- ev:
			case <-s.stop:
				return
			}
			continue
		}
		if msg.Seq != nil {
			select {
			case s.replies <- msg:
			case <-s.stop:
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		s.setErr(fmt.Errorf("%w: %v", ErrSessionClosed, err))
	} else {
		s.setErr(ErrSessionClosed)
	}
}

// SendCommand sends one control line and blocks until its reply. A zero timeout
// waits until the context is done.
func (s *Session) SendCommand(ctx context.Context, line string, timeout time.Duration) (CommandResult, error) {
	fail := func(err error, message string) (CommandResult, error) {
		return CommandResult{}, &BridgeError{Session: s.id, Command: line, Message: message, Err: err}
	}

	if strings.ContainsAny(line, "\r\n") || strings.TrimSpace(line) == "" {
		return fail(ErrInvalidCommand, "command must be a single non-empty line")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return fail(ErrSessionClosed, "")
	default:
	}

	s.seq++
	seq := s.seq
	if _, err := fmt.Fprintf(s.w, "%d %s\n", seq, line); err != nil {
		return fail(ErrSessionClosed, err.Error())
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	for {
		select {
		case msg := <-s.replies:
			if *msg.Seq != seq {
				// late reply to an earlier command that timed out
				continue
			}
			if !msg.OK {
				return fail(ErrCommandRejected, msg.Error)
			}
			return CommandResult{Seq: seq, Value: msg.Value}, nil
		case <-s.done:
			// the reply may have been queued just before the simulator exited
			for {
				select {
				case msg := <-s.replies:
					if *msg.Seq != seq {
						continue
					}
					if !msg.OK {
						return fail(ErrCommandRejected, msg.Error)
					}
					return CommandResult{Seq: seq, Value: msg.Value}, nil
				default:
					return fail(ErrSessionClosed, "")
				}
			}
		case <-s.stop:
			return fail(ErrSessionClosed, "session torn down")
		case <-timer:
			return fail(ErrCommandTimeout, timeout.String())
		case <-ctx.Done():
			return fail(ErrCommandAborted, ctx.Err().Error())
		}
	}
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setErr(ErrSessionClosed)
		close(s.stop)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
