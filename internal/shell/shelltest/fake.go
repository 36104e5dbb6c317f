// Package shelltest provides an in-memory shell.Process for tests.
package shelltest

import (
	"bytes"
	"errors"
	"sync"

	"github.com/bterminal/bterminal/internal/shell"
)

// Process is a fake shell.Process. Output is injected with Emit and
// termination with Exit; Shutdown behaves like a real PTY and reports EOF to
// the reader.
type Process struct {
	mu        sync.Mutex
	pid       int
	sink      func([]byte)
	written   bytes.Buffer
	sizes     []shell.Size
	shutdowns int
	exited    bool

	// WriteErr and ResizeErr, when set, are returned by Write and Resize.
	WriteErr  error
	ResizeErr error
}

// NewProcess returns a fake process with the given pid.
func NewProcess(pid int) *Process {
	return &Process{pid: pid}
}

// StartReader implements shell.Process.
func (p *Process) StartReader(sink func([]byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink == nil {
		p.sink = sink
	}
}

// Emit delivers chunk to the reader sink as terminal output.
func (p *Process) Emit(chunk []byte) {
	p.mu.Lock()
	sink, exited := p.sink, p.exited
	p.mu.Unlock()
	if sink == nil || exited || len(chunk) == 0 {
		return
	}
	sink(append([]byte(nil), chunk...))
}

// Exit simulates the shell terminating: the sink receives one empty chunk.
func (p *Process) Exit() {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink([]byte{})
	}
}

// Write implements shell.Process.
func (p *Process) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteErr != nil {
		return p.WriteErr
	}
	if p.exited {
		return errors.New("fake process exited")
	}
	p.written.Write(data)
	return nil
}

// Resize implements shell.Process.
func (p *Process) Resize(size shell.Size) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ResizeErr != nil {
		return p.ResizeErr
	}
	p.sizes = append(p.sizes, size)
	return nil
}

// Shutdown implements shell.Process.
func (p *Process) Shutdown() {
	p.mu.Lock()
	p.shutdowns++
	p.mu.Unlock()
	p.Exit()
}

// Pid implements shell.Process.
func (p *Process) Pid() int {
	return p.pid
}

// Written returns everything written to the process so far.
func (p *Process) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// Sizes returns every size applied through Resize, in order.
func (p *Process) Sizes() []shell.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shell.Size(nil), p.sizes...)
}

// Shutdowns returns how many times Shutdown was called.
func (p *Process) Shutdowns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdowns
}

// Spawner hands out fake processes and remembers them.
type Spawner struct {
	mu     sync.Mutex
	procs  []*Process
	shells []string

	// Err, when set, makes Spawn fail.
	Err error
}

// Spawn implements shell.Spawner.
func (s *Spawner) Spawn(shellPath string, size shell.Size) (shell.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p := NewProcess(1000 + len(s.procs))
	s.procs = append(s.procs, p)
	s.shells = append(s.shells, shellPath)
	return p, nil
}

// Last returns the most recently spawned process, or nil.
func (s *Spawner) Last() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

// LastShell returns the shell path of the most recent Spawn call.
func (s *Spawner) LastShell() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.shells) == 0 {
		return ""
	}
	return s.shells[len(s.shells)-1]
}

// Count returns how many processes were spawned.
func (s *Spawner) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}
