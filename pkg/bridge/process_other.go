//go:build !unix

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: process_other.go
Description: Fallback process handling where process groups are not available. Only the
simulator itself is killed.
*/

package bridge

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(p *os.Process) {
	p.Kill()
}
