package shell

import (
	"bytes"
	"fmt"
	"strings"
)

type CaptureResult struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

type CaptureOpts struct {
	LogStdout func(string)
	LogStderr func(string)
}

// Capture runs the command, buffering its stdout and stderr.
// Each complete line is also handed to the corresponding log function as it is written.
// A non-zero exit is reported as an error that includes the captured stderr.
func (s *Shell) Capture(cmd *Command, opts ...CaptureOpts) (*CaptureResult, error) {
	opt := CaptureOpts{}
	for _, o := range opts {
		if o.LogStdout != nil {
			opt.LogStdout = o.LogStdout
		}
		if o.LogStderr != nil {
			opt.LogStderr = o.LogStderr
		}
	}

	stdout := &lineWriter{log: opt.LogStdout}
	stderr := &lineWriter{log: opt.LogStderr}

	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r := s.Wait(cmd)

	stdout.flush()
	stderr.flush()

	res := &CaptureResult{
		ExitStatus: r.ExitStatus,
		Stdout:     stdout.buf.String(),
		Stderr:     stderr.buf.String(),
	}

	if r.Error != nil {
		errOut := strings.TrimSpace(res.Stderr)
		if errOut != "" {
			return res, fmt.Errorf("%s %s: %v: %s", cmd.Name, strings.Join(cmd.Args, " "), r.Error, errOut)
		}
		return res, fmt.Errorf("%s %s: %v", cmd.Name, strings.Join(cmd.Args, " "), r.Error)
	}

	return res, nil
}

type lineWriter struct {
	buf     bytes.Buffer
	pending []byte
	log     func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if w.log == nil {
		return n, err
	}
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.log(string(w.pending[:i]))
		w.pending = w.pending[i+1:]
	}
	return n, err
}

func (w *lineWriter) flush() {
	if w.log != nil && len(w.pending) > 0 {
		w.log(string(w.pending))
		w.pending = nil
	}
}
