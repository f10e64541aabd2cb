//go:build unix

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: process_unix.go
Description: Process group handling for simulators on Unix systems.
*/

package bridge

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the simulator as leader of a new process group
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills every process in the group led by p
func killProcessGroup(p *os.Process) {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		p.Kill()
	}
}
