package shell

type Shell struct {
	Exec Exec
}

func New(exec Exec) *Shell {
	if exec == nil {
		exec = DefaultExec
	}
	return &Shell{Exec: exec}
}

// Wait runs the command and wait until it returns
func (s *Shell) Wait(cmd *Command) Result {
	return s.Exec(cmd)
}
