//go:build windows

package cli

import (
	"os"
	"os/exec"
)

// setSysProcAttr is a no-op on Windows. Run gatekeeper under a service
// wrapper such as NSSM for production deployments.
func setSysProcAttr(cmd *exec.Cmd) {}

// isProcessRunning reports whether pid names a live process. On Windows
// FindProcess opens a process handle and fails when there is none.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}

// stopProcess kills the process. Windows has no SIGTERM, so in-flight
// requests are not drained.
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
