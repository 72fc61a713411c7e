package shell

import (
	"io"
)

// Command is a process to run. Stdout and Stderr are set by Capture.
type Command struct {
	Name string
	Args []string

	Stdout io.Writer
	Stderr io.Writer
}

type Exec func(*Command) Result

type Result struct {
	ExitStatus int
	Error      error
}
