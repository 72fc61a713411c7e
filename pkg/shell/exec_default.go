package shell

import (
	"os/exec"
)

// DefaultExec runs the command in the current working directory with the environment of this process.
// A process that could not be started reports exit status 1.
func DefaultExec(c *Command) Result {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	err := cmd.Run()
	if err == nil {
		return Result{}
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return Result{ExitStatus: exitErr.ExitCode(), Error: exitErr}
	}

	return Result{ExitStatus: 1, Error: err}
}
