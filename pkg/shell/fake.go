package shell

import (
	"fmt"
	"io"
	"strings"
)

// FakeInput identifies an expected invocation by its name and arguments.
type FakeInput struct {
	Name string
	Args string
}

type FakeOutput struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

func NewFakeInput(name string, args []string) FakeInput {
	return FakeInput{Name: name, Args: strings.Join(args, "\x00")}
}

// NewFake returns an Exec that answers only the expected inputs, writing the canned output
// and failing with the canned exit status.
func NewFake(expectations map[FakeInput]FakeOutput) Exec {
	return func(cmd *Command) Result {
		input := NewFakeInput(cmd.Name, cmd.Args)
		output, ok := expectations[input]
		if !ok {
			return Result{ExitStatus: 1, Error: fmt.Errorf("unexpected command: %s %v", cmd.Name, cmd.Args)}
		}

		for _, w := range []struct {
			dst io.Writer
			s   string
		}{{cmd.Stdout, output.Stdout}, {cmd.Stderr, output.Stderr}} {
			if w.dst == nil {
				continue
			}
			if _, err := io.WriteString(w.dst, w.s); err != nil {
				return Result{ExitStatus: 1, Error: err}
			}
		}

		if output.ExitStatus != 0 {
			return Result{ExitStatus: output.ExitStatus, Error: fmt.Errorf("exit status %d", output.ExitStatus)}
		}

		return Result{}
	}
}
