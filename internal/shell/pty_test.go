package shell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func spawnSh(t *testing.T) *PTYProcess {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	proc, err := PTYSpawner{}.Spawn("/bin/sh", Size{Rows: 24, Cols: 80})
	if err != nil {
		t.Skipf("cannot allocate pty: %v", err)
	}
	p := proc.(*PTYProcess)
	t.Cleanup(p.Shutdown)
	return p
}

// collector gathers reader output and counts sentinel chunks.
type collector struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	sentinels int
	done      chan struct{}
}

func newCollector() *collector {
	return &collector{done: make(chan struct{})}
}

func (c *collector) sink(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(chunk) > ChunkSize {
		panic("chunk larger than ChunkSize")
	}
	if len(chunk) == 0 {
		c.sentinels++
		if c.sentinels == 1 {
			close(c.done)
		}
		return
	}
	c.buf.Write(chunk)
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestPTYProcessEcho(t *testing.T) {
	p := spawnSh(t)
	c := newCollector()
	p.StartReader(c.sink)
	p.StartReader(func([]byte) { t.Error("second reader must not start") })

	if err := p.Write([]byte("echo he''llo\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if !waitFor(t, 5*time.Second, func() bool { return strings.Contains(c.String(), "hello") }) {
		t.Fatalf("expected output to contain hello, got %q", c.String())
	}
}

func TestPTYProcessResize(t *testing.T) {
	p := spawnSh(t)
	if err := p.Resize(Size{Rows: 40, Cols: 100}); err != nil {
		t.Fatalf("Resize() error: %v", err)
	}
	if err := p.Resize(Size{}); err == nil {
		t.Fatal("expected error for zero size")
	}
}

func TestPTYProcessExitSendsSentinelOnce(t *testing.T) {
	p := spawnSh(t)
	c := newCollector()
	p.StartReader(c.sink)

	if err := p.Write([]byte("exit\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not report EOF after shell exit")
	}
	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("shell was not reaped")
	}

	p.Shutdown()
	p.Shutdown()
	time.Sleep(50 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sentinels != 1 {
		t.Fatalf("expected exactly one sentinel, got %d", c.sentinels)
	}
}

func TestPTYProcessShutdownKillsGroup(t *testing.T) {
	var kills atomic.Int32
	orig := killGroup
	killGroup = func(pgid int) error {
		kills.Add(1)
		return orig(pgid)
	}
	defer func() { killGroup = orig }()

	p := spawnSh(t)
	c := newCollector()
	p.StartReader(c.sink)

	if err := p.Write([]byte("sleep 1000 & echo BGPID:$!\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	re := regexp.MustCompile(`BGPID:(\d+)`)
	var bgPID int
	if !waitFor(t, 5*time.Second, func() bool {
		m := re.FindStringSubmatch(c.String())
		if m == nil {
			return false
		}
		bgPID, _ = strconv.Atoi(m[1])
		return true
	}) {
		t.Fatalf("background pid not printed, output %q", c.String())
	}

	before := kills.Load()
	p.Shutdown()
	p.Shutdown()
	if got := kills.Load() - before; got > 2 {
		t.Errorf("expected Shutdown to signal at most once more than reap, got %d", got)
	}

	gone := waitFor(t, 5*time.Second, func() bool {
		err := unix.Kill(bgPID, 0)
		if errors.Is(err, unix.ESRCH) {
			return true
		}
		stat, readErr := os.ReadFile("/proc/" + strconv.Itoa(bgPID) + "/stat")
		return readErr == nil && strings.Contains(string(stat), ") Z ")
	})
	if !gone {
		t.Fatalf("background job %d survived shutdown", bgPID)
	}

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not stop after shutdown")
	}
}

func TestPTYProcessShutdownAfterReapSendsNoSignal(t *testing.T) {
	var kills atomic.Int32
	orig := killGroup
	killGroup = func(pgid int) error {
		kills.Add(1)
		return orig(pgid)
	}
	defer func() { killGroup = orig }()

	p := spawnSh(t)
	p.StartReader(func([]byte) {})
	if err := p.Write([]byte("exit\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("shell was not reaped")
	}

	before := kills.Load()
	p.Shutdown()
	if got := kills.Load() - before; got != 0 {
		t.Fatalf("expected no group signal after reap, got %d", got)
	}
}

func TestWatchParentDetectsReparent(t *testing.T) {
	var ppid atomic.Int32
	ppid.Store(100)
	orig := getppid
	getppid = func() int { return int(ppid.Load()) }
	defer func() { getppid = orig }()

	fired := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go WatchParent(ctx, 10*time.Millisecond, func() { close(fired) })

	time.Sleep(30 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("watchdog fired while parent unchanged")
	default:
	}

	ppid.Store(1)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire after reparent")
	}
}

func TestWatchParentDisabled(t *testing.T) {
	done := make(chan struct{})
	go func() {
		WatchParent(context.Background(), 0, func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled watchdog should return immediately")
	}
}

func TestResolveShell(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	sh, err := ResolveShell("/definitely/not/a/shell")
	if err != nil {
		t.Fatalf("ResolveShell() error: %v", err)
	}
	if sh != "/bin/bash" && sh != "/bin/sh" {
		t.Errorf("unexpected fallback shell %s", sh)
	}
}
