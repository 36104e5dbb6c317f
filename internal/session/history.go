package session

import "sync"

// DefaultHistoryBytes is the replay buffer size kept per session.
const DefaultHistoryBytes = 100_000

// History is a fixed-size circular buffer holding the most recent terminal
// output of a session. Escape sequences are stored unmodified so a joining
// client can replay them verbatim. Once full, new bytes overwrite the oldest.
type History struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	// pos is the next write position within data.
	pos int
	// total counts every byte ever written; stored = min(total, capacity).
	total uint64
}

// NewHistory creates a history buffer holding at most capacity bytes.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryBytes
	}
	return &History{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends p, dropping the oldest bytes beyond capacity.
func (h *History) Write(p []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.total += uint64(len(p))
	if len(p) >= h.capacity {
		copy(h.data, p[len(p)-h.capacity:])
		h.pos = 0
		return
	}
	for len(p) > 0 {
		n := copy(h.data[h.pos:], p)
		h.pos = (h.pos + n) % h.capacity
		p = p[n:]
	}
}

// Snapshot returns a copy of the retained bytes, oldest first. It returns
// nil when nothing has been written.
func (h *History) Snapshot() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored := h.storedLocked()
	if stored == 0 {
		return nil
	}
	out := make([]byte, stored)
	if uint64(stored) < uint64(h.capacity) {
		copy(out, h.data[:stored])
		return out
	}
	n := copy(out, h.data[h.pos:])
	copy(out[n:], h.data[:h.pos])
	return out
}

// Len returns the number of retained bytes.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.storedLocked()
}

// Total returns the number of bytes ever written.
func (h *History) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func (h *History) storedLocked() int {
	if h.total > uint64(h.capacity) {
		return h.capacity
	}
	return int(h.total)
}
