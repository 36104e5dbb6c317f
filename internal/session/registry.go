package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bterminal/bterminal/internal/events"
	"github.com/bterminal/bterminal/internal/logx"
	"github.com/bterminal/bterminal/internal/metrics"
	"github.com/bterminal/bterminal/internal/shell"
	"github.com/bterminal/bterminal/pkg/types"
	"pkt.systems/pslog"
)

// Options configures a Registry.
type Options struct {
	// Shell is the program started for every session.
	Shell string
	// Spawner starts shells; defaults to shell.PTYSpawner.
	Spawner shell.Spawner
	// Events receives lifecycle notifications; may be nil.
	Events events.Publisher
	// FanoutCapacity bounds each session's output channel.
	FanoutCapacity int
	// HistoryBytes bounds each session's replay buffer.
	HistoryBytes int
	Logger       pslog.Logger
}

// Registry owns every live session, keyed by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	shell          string
	spawner        shell.Spawner
	events         events.Publisher
	fanoutCapacity int
	historyBytes   int
	log            pslog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	log := logx.OrDefault(opts.Logger)
	spawner := opts.Spawner
	if spawner == nil {
		spawner = shell.PTYSpawner{Logger: log}
	}
	return &Registry{
		sessions:       make(map[string]*Session),
		shell:          opts.Shell,
		spawner:        spawner,
		events:         opts.Events,
		fanoutCapacity: opts.FanoutCapacity,
		historyBytes:   opts.HistoryBytes,
		log:            log,
	}
}

// Create spawns a shell and registers it under id. A duplicate id is
// rejected with ErrSessionExists and the registry is left unchanged.
func (r *Registry) Create(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	r.mu.RLock()
	_, exists := r.sessions[id]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrSessionClosed
	}
	if exists {
		metrics.SessionCreatesTotal.WithLabelValues("conflict").Inc()
		return nil, ErrSessionExists
	}

	size := shell.DefaultSize()
	proc, err := r.spawner.Spawn(r.shell, size)
	if err != nil {
		metrics.SessionCreatesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("spawn shell for session %s: %w", id, err)
	}

	sess := newSession(id, proc, size, r.fanoutCapacity, r.historyBytes, r.log)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		proc.Shutdown()
		return nil, ErrSessionClosed
	}
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		proc.Shutdown()
		metrics.SessionCreatesTotal.WithLabelValues("conflict").Inc()
		return nil, ErrSessionExists
	}
	r.sessions[id] = sess
	r.mu.Unlock()

	metrics.SessionsActive.Inc()
	metrics.SessionCreatesTotal.WithLabelValues("ok").Inc()
	r.publish(events.Created(id))

	sub := sess.Subscribe()
	go sess.monitor(sub, r.onExit)
	sess.startReader()

	logx.WithSession(pslog.Ctx(ctx), id).Info("session created", "pid", proc.Pid(), "shell", r.shell)
	return sess, nil
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// List returns the registered session ids in lexical order.
func (r *Registry) List() []types.SessionSummary {
	r.mu.RLock()
	out := make([]types.SessionSummary, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, types.SessionSummary{ID: id})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove unregisters id and shuts its shell down. It reports whether a
// session was registered under id.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	r.deleted(sess)
	sess.Close()
	return true
}

// onExit runs when a session's shell output ends. The session is removed
// only if it is still the registered instance for its id.
func (r *Registry) onExit(sess *Session) {
	r.mu.Lock()
	current, ok := r.sessions[sess.ID]
	removed := ok && current == sess
	if removed {
		delete(r.sessions, sess.ID)
	}
	r.mu.Unlock()

	if removed {
		r.deleted(sess)
	}
	sess.Close()
}

func (r *Registry) deleted(sess *Session) {
	metrics.SessionsActive.Dec()
	r.publish(events.Deleted(sess.ID))
	sess.log.Info("session deleted")
}

func (r *Registry) publish(ev events.Event) {
	if r.events != nil {
		r.events.Publish(ev)
	}
}

// Close shuts down every session and rejects further creates.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		sessions = append(sessions, sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		r.deleted(sess)
		sess.Close()
	}
	r.log.Info("session registry closed", "sessions", len(sessions))
}

// WatchParent closes the registry if the server is orphaned. It blocks
// until ctx is done or the watchdog fires; interval <= 0 disables it.
func (r *Registry) WatchParent(ctx context.Context, interval time.Duration) {
	shell.WatchParent(ctx, interval, func() {
		r.log.Warn("parent process gone, shutting sessions down")
		r.Close()
	})
}
