// Package shell supervises shell processes attached to pseudo-terminals.
package shell

import (
	"fmt"
	"os"
)

// ChunkSize is the largest chunk the PTY reader hands to its sink.
const ChunkSize = 1024

// Default terminal dimensions for a freshly spawned shell.
const (
	DefaultRows uint16 = 24
	DefaultCols uint16 = 80
)

// Size is a terminal viewport in character cells.
type Size struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// DefaultSize returns 24x80.
func DefaultSize() Size {
	return Size{Rows: DefaultRows, Cols: DefaultCols}
}

// Valid reports whether both dimensions are non-zero.
func (s Size) Valid() bool {
	return s.Rows > 0 && s.Cols > 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Rows, s.Cols)
}

// Process is one shell running on a pseudo-terminal.
//
// Write and Resize are serialized independently, so a blocked write never
// holds up a resize. Shutdown kills the whole process group and reaps the
// shell; it is idempotent.
type Process interface {
	// StartReader starts copying terminal output to sink in chunks of at
	// most ChunkSize bytes. When the terminal reports EOF or an error, sink
	// receives one zero-length chunk and the reader stops. Only the first
	// call has any effect.
	StartReader(sink func(chunk []byte))
	Write(p []byte) error
	Resize(size Size) error
	Shutdown()
	Pid() int
}

// Spawner starts shells. It is the seam tests replace with a fake.
type Spawner interface {
	Spawn(shellPath string, size Size) (Process, error)
}

// TerminalEnv is the fixed environment advertised to every shell.
func TerminalEnv() []string {
	return []string{
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		"LANG=en_US.UTF-8",
		"LC_ALL=en_US.UTF-8",
	}
}

// ResolveShell returns preferred if it exists, otherwise the first common
// shell found on this machine.
func ResolveShell(preferred string) (string, error) {
	candidates := []string{"/bin/bash", "/bin/sh"}
	if preferred != "" {
		candidates = append([]string{preferred}, candidates...)
	}
	for _, sh := range candidates {
		if _, err := os.Stat(sh); err == nil {
			return sh, nil
		}
	}
	return "", fmt.Errorf("no shell found")
}
