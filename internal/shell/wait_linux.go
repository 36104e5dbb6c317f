//go:build linux

package shell

import "golang.org/x/sys/unix"

// waitExited blocks until pid has exited but leaves it unreaped, so neither
// its pid nor its process group id can be reused yet. It reports false if
// the wait failed.
func waitExited(pid int) bool {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err != unix.EINTR {
			return err == nil
		}
	}
}
