/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: commands.go
Description: Control command vocabulary understood by the simulator side of the bridge.
The simulator defines the exact semantics; these helpers only build well-formed lines.
*/

package bridge

import "strings"

const (
	cmdConfig   = "CONFIG:"
	cmdInject   = "INPUT:"
	cmdSnapshot = "SNAPSHOT:"
	cmdRestore  = "RESTORE:"
	cmdRun      = "RUN"
	cmdQuit     = "QUIT"
)

// Config loads a configuration script into the simulator
func Config(path string) string { return cmdConfig + path }

// Inject points the harness at the input file for the next run
func Inject(path string) string { return cmdInject + path }

// Snapshot records the current machine state under name
func Snapshot(name string) string { return cmdSnapshot + name }

// Restore rewinds the machine to a named snapshot
func Restore(name string) string { return cmdRestore + name }

// Run resumes execution
func Run() string { return cmdRun }

// Quit asks the simulator to exit
func Quit() string { return cmdQuit }

// ParseCommand splits a command line into its directive and argument.
// Lines without a colon are bare directives such as RUN.
func ParseCommand(line string) (directive, arg string) {
	line = strings.TrimSpace(line)
	if d, a, ok := strings.Cut(line, ":"); ok {
		return strings.ToUpper(d), a
	}
	return strings.ToUpper(line), ""
}
