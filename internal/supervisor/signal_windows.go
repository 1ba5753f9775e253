//go:build windows

package supervisor

import (
	"os"
	"syscall"
)

var (
	sigTerm = syscall.SIGTERM
	sigKill = syscall.SIGKILL
)

// signalPID terminates pid. Windows has no termination signal, so both
// signals end the process.
func signalPID(pid int, _ syscall.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func signalGroup(pid int, sig syscall.Signal) error { return signalPID(pid, sig) }
