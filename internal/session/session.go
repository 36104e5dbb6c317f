// Package session binds a supervised shell to the clients attached to it:
// output fan-out, replay history, and shared viewport reconciliation.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bterminal/bterminal/internal/fanout"
	"github.com/bterminal/bterminal/internal/logx"
	"github.com/bterminal/bterminal/internal/metrics"
	"github.com/bterminal/bterminal/internal/shell"
	"github.com/bterminal/bterminal/pkg/types"
	"pkt.systems/pslog"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrInvalidSize     = errors.New("invalid terminal size")
)

// Kind classifies a message on a session's output channel.
type Kind uint8

const (
	// KindOutput carries raw terminal bytes.
	KindOutput Kind = iota
	// KindControl carries an encoded JSON control message such as SetSize.
	KindControl
	// KindExit marks the end of the shell's output.
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindControl:
		return "control"
	case KindExit:
		return "exit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one item on a session's output channel.
type Message struct {
	Kind Kind
	Data []byte
}

// Subscription is a reader's position on a session's output channel.
type Subscription = fanout.Subscription[Message]

// Session is a live, attachable shell.
type Session struct {
	ID        string
	CreatedAt time.Time

	proc shell.Process
	out  *fanout.Channel[Message]
	log  pslog.Logger

	// histMu pairs the history with histSeq, the sequence number of the
	// next message the monitor has yet to consume.
	histMu  sync.Mutex
	history *History
	histSeq uint64

	vpMu      sync.Mutex
	viewports map[string]shell.Size
	size      shell.Size

	clients   atomic.Int64
	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id string, proc shell.Process, size shell.Size, fanoutCapacity, historyBytes int, log pslog.Logger) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		proc:      proc,
		out:       fanout.New[Message](fanoutCapacity),
		history:   NewHistory(historyBytes),
		log:       logx.WithSession(log, id),
		viewports: make(map[string]shell.Size),
		size:      size,
		closed:    make(chan struct{}),
	}
}

// startReader feeds the PTY reader into the output channel. The reader's
// empty chunk becomes KindExit.
func (s *Session) startReader() {
	s.proc.StartReader(func(chunk []byte) {
		if len(chunk) == 0 {
			s.out.Send(Message{Kind: KindExit})
			return
		}
		metrics.PTYBytesTotal.WithLabelValues("out").Add(float64(len(chunk)))
		s.out.Send(Message{Kind: KindOutput, Data: chunk})
	})
}

// Subscribe returns a subscription receiving every message sent after the call.
func (s *Session) Subscribe() *Subscription {
	return s.out.Subscribe()
}

// History returns a copy of the buffered output.
func (s *Session) History() []byte {
	return s.history.Snapshot()
}

// Join registers an attached client and returns the history to replay
// together with a subscription for live output. The subscription starts
// exactly where the history ends, so no output is lost or repeated.
func (s *Session) Join() ([]byte, *Subscription) {
	s.histMu.Lock()
	history := s.history.Snapshot()
	sub := s.out.SubscribeAt(s.histSeq)
	s.histMu.Unlock()

	s.clients.Add(1)
	metrics.ClientsAttached.Inc()
	return history, sub
}

// record appends output to the history and advances histSeq to next.
func (s *Session) record(output []byte, next uint64) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	if len(output) > 0 {
		s.history.Write(output)
	}
	s.histSeq = next
}

// Leave drops a client registered with Join, including its viewport.
func (s *Session) Leave(clientID string) {
	s.clients.Add(-1)
	metrics.ClientsAttached.Dec()
	if err := s.RemoveClientViewport(clientID); err != nil {
		s.log.Warn("viewport reconcile on leave failed", "client", clientID, "err", err)
	}
}

// Write sends keystrokes to the shell.
func (s *Session) Write(p []byte) error {
	if err := s.proc.Write(p); err != nil {
		return err
	}
	metrics.PTYBytesTotal.WithLabelValues("in").Add(float64(len(p)))
	return nil
}

// UpdateClientViewport records a client's viewport and resizes the shared
// terminal to the reconciled size.
func (s *Session) UpdateClientViewport(clientID string, size shell.Size) error {
	if !size.Valid() {
		return ErrInvalidSize
	}
	s.vpMu.Lock()
	defer s.vpMu.Unlock()

	s.viewports[clientID] = size
	s.log.Debug("viewport updated", "client", clientID, "size", size.String())
	return s.reconcileLocked()
}

// RemoveClientViewport forgets a client's viewport. If other clients remain
// the terminal is reconciled to their sizes; otherwise the size is kept.
func (s *Session) RemoveClientViewport(clientID string) error {
	s.vpMu.Lock()
	defer s.vpMu.Unlock()

	if _, ok := s.viewports[clientID]; !ok {
		return nil
	}
	delete(s.viewports, clientID)
	s.log.Debug("viewport removed", "client", clientID)
	if len(s.viewports) == 0 || s.isClosed() {
		return nil
	}
	return s.reconcileLocked()
}

func (s *Session) reconcileLocked() error {
	target, ok := Reconcile(s.viewports)
	if !ok || target == s.size {
		return nil
	}
	if err := s.proc.Resize(target); err != nil {
		return fmt.Errorf("resize session %s to %s: %w", s.ID, target, err)
	}
	s.size = target
	s.log.Debug("terminal resized", "size", target.String())

	data, err := json.Marshal(types.SetSizeMessage(target.Rows, target.Cols))
	if err != nil {
		return fmt.Errorf("encode SetSize: %w", err)
	}
	s.out.Send(Message{Kind: KindControl, Data: data})
	return nil
}

// Reconcile returns the smallest rows and smallest cols over all viewports.
// It reports false for an empty table.
func Reconcile(viewports map[string]shell.Size) (shell.Size, bool) {
	var out shell.Size
	first := true
	for _, vp := range viewports {
		if first {
			out = vp
			first = false
			continue
		}
		out.Rows = min(out.Rows, vp.Rows)
		out.Cols = min(out.Cols, vp.Cols)
	}
	return out, !first
}

// Size returns the current effective terminal size.
func (s *Session) Size() shell.Size {
	s.vpMu.Lock()
	defer s.vpMu.Unlock()
	return s.size
}

// Viewports returns the number of clients that have reported a viewport.
func (s *Session) Viewports() int {
	s.vpMu.Lock()
	defer s.vpMu.Unlock()
	return len(s.viewports)
}

// Clients returns the number of attached clients.
func (s *Session) Clients() int {
	return int(s.clients.Load())
}

// Pid returns the shell's process id.
func (s *Session) Pid() int {
	return s.proc.Pid()
}

// Detail summarizes the session for the HTTP API.
func (s *Session) Detail() types.SessionDetail {
	size := s.Size()
	return types.SessionDetail{
		ID:           s.ID,
		Rows:         size.Rows,
		Cols:         size.Cols,
		Clients:      s.Clients(),
		HistoryBytes: s.history.Len(),
		CreatedAt:    s.CreatedAt,
	}
}

// Done is closed once the session has been shut down.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close shuts the shell's process group down. Attached clients observe the
// Exit message on their own. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.proc.Shutdown()
		s.log.Debug("session closed")
	})
}
