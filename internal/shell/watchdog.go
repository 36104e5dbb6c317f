package shell

import (
	"context"
	"time"

	"golang.org/x/sys/unix"
)

var getppid = unix.Getppid

// WatchParent polls the parent pid every interval and calls onOrphan once
// if it changes, which happens when the server's parent dies and the server
// is re-parented. It returns when ctx is done or after onOrphan runs. A
// non-positive interval disables the watchdog.
func WatchParent(ctx context.Context, interval time.Duration, onOrphan func()) {
	if interval <= 0 || onOrphan == nil {
		return
	}
	parent := getppid()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if getppid() != parent {
				onOrphan()
				return
			}
		}
	}
}
