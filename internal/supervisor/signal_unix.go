//go:build !windows

package supervisor

import "syscall"

var (
	sigTerm = syscall.SIGTERM
	sigKill = syscall.SIGKILL
)

func signalPID(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}

// signalGroup signals the process group led by pid.
func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		return syscall.Kill(pid, sig)
	}
	return nil
}
