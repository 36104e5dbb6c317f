//go:build !linux

package shell

func waitExited(int) bool {
	return false
}
