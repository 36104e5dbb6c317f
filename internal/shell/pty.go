package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	ptylib "github.com/creack/pty"
	"golang.org/x/sys/unix"
	"pkt.systems/pslog"
)

// reapTimeout bounds how long Shutdown waits for the shell to be reaped
// after the group has been killed.
const reapTimeout = 5 * time.Second

// killGroup sends SIGKILL to every process in the group led by pgid.
var killGroup = func(pgid int) error {
	return unix.Kill(-pgid, unix.SIGKILL)
}

// PTYSpawner starts shells on real pseudo-terminals.
type PTYSpawner struct {
	// Env is appended after the process environment and TerminalEnv.
	Env    []string
	Logger pslog.Logger
}

// Spawn allocates a PTY and starts shellPath as the leader of a new session
// (and therefore process group). No I/O is started.
func (s PTYSpawner) Spawn(shellPath string, size Size) (Process, error) {
	if !size.Valid() {
		size = DefaultSize()
	}

	cmd := exec.Command(shellPath)
	cmd.Env = append(os.Environ(), TerminalEnv()...)
	cmd.Env = append(cmd.Env, s.Env...)
	if home, err := os.UserHomeDir(); err == nil {
		cmd.Dir = home
	}

	// creack/pty sets Setsid and Setctty, so the shell leads its own group.
	ptmx, err := ptylib.StartWithSize(cmd, &ptylib.Winsize{
		Rows: size.Rows,
		Cols: size.Cols,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY session: %w", err)
	}

	logger := s.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	p := &PTYProcess{
		cmd:    cmd,
		pgid:   cmd.Process.Pid,
		master: ptmx,
		exited: make(chan struct{}),
		kill:   killGroup,
		log:    logger.With("pid", cmd.Process.Pid, "shell", shellPath),
	}
	go p.reap()

	p.log.Debug("pty process spawned", "size", size.String())
	return p, nil
}

// PTYProcess is a shell attached to the slave side of a PTY whose master
// side this process owns.
type PTYProcess struct {
	cmd  *exec.Cmd
	pgid int

	masterMu sync.Mutex
	master   *os.File

	writeMu sync.Mutex

	readerOnce   sync.Once
	shutdownOnce sync.Once

	// reapMu orders group kills before the shell is reaped; once reaped the
	// pgid may belong to an unrelated group and is never signalled.
	reapMu  sync.Mutex
	reaped  bool
	exited  chan struct{}
	waitErr error

	kill func(pgid int) error

	log pslog.Logger
}

// Pid returns the shell's process id, which is also its process group id.
func (p *PTYProcess) Pid() int {
	return p.pgid
}

// Exited is closed once the shell has been reaped.
func (p *PTYProcess) Exited() <-chan struct{} {
	return p.exited
}

func (p *PTYProcess) reap() {
	if waitExited(p.pgid) {
		// The shell is a zombie, so the group id still belongs to it. Background
		// jobs can keep the slave open; killing the group lets the reader see EOF.
		p.reapMu.Lock()
		if err := p.kill(p.pgid); err != nil && !errors.Is(err, unix.ESRCH) {
			p.log.Debug("pty group cleanup failed", "err", err)
		}
		p.waitErr = p.cmd.Wait()
		p.reaped = true
		p.reapMu.Unlock()
	} else {
		err := p.cmd.Wait()
		p.reapMu.Lock()
		p.waitErr = err
		p.reaped = true
		p.reapMu.Unlock()
	}
	close(p.exited)
	p.log.Debug("pty process exited", "err", p.waitErr)
}

// StartReader implements Process.
func (p *PTYProcess) StartReader(sink func(chunk []byte)) {
	p.readerOnce.Do(func() {
		go p.readLoop(sink)
	})
}

func (p *PTYProcess) readLoop(sink func(chunk []byte)) {
	// The read is a blocking syscall; keep it on its own thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	buf := make([]byte, ChunkSize)
	for {
		n, err := p.master.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.log.Trace("pty read", "bytes", n)
			sink(chunk)
		}
		if err != nil || n == 0 {
			p.log.Debug("pty reader stopped", "err", err)
			sink([]byte{})
			return
		}
	}
}

// Write implements Process.
func (p *PTYProcess) Write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	for len(data) > 0 {
		n, err := p.master.Write(data)
		if err != nil {
			return fmt.Errorf("pty write: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// Resize implements Process.
func (p *PTYProcess) Resize(size Size) error {
	if !size.Valid() {
		return fmt.Errorf("invalid terminal size %s", size)
	}
	p.masterMu.Lock()
	defer p.masterMu.Unlock()

	if err := ptylib.Setsize(p.master, &ptylib.Winsize{
		Rows: size.Rows,
		Cols: size.Cols,
	}); err != nil {
		return fmt.Errorf("resize: %w", err)
	}
	return nil
}

// Shutdown kills the shell's process group, reaps the shell and closes the
// master side. Safe to call more than once and from any goroutine.
func (p *PTYProcess) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.reapMu.Lock()
		if !p.reaped {
			if err := p.kill(p.pgid); err != nil && !errors.Is(err, unix.ESRCH) {
				p.log.Warn("pty group kill failed", "err", err)
			}
		}
		p.reapMu.Unlock()

		select {
		case <-p.exited:
		case <-time.After(reapTimeout):
			p.log.Warn("pty process not reaped after kill", "timeout", reapTimeout.String())
		}

		p.masterMu.Lock()
		_ = p.master.Close()
		p.masterMu.Unlock()
		p.log.Debug("pty process shut down")
	})
}
