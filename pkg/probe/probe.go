// Package probe finds out the latest upstream version of an app channel.
//
// A probe is a file next to the app. latest.py is loaded by a Python interpreter and its
// get_latest(channel) is called, latest.sh is executed with the channel as its only argument,
// and latest.yaml declares where to look the versions up (see pkg/releasetracker).
package probe

import (
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/buildmatrix/pkg/releasetracker"
	"github.com/variantdev/buildmatrix/pkg/shell"
	"github.com/variantdev/buildmatrix/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

const (
	KindModule = "module"
	KindExec   = "exec"
	KindSpec   = "spec"
)

// Probe reports the latest version of a channel.
// It returns false when the probe ran fine but had nothing to report.
type Probe interface {
	LatestVersion(channel string) (string, bool, error)
}

// ModuleProbe loads a Python file as a module and calls its get_latest(channel).
type ModuleProbe struct {
	Path   string
	Python string

	sh     *shell.Shell
	Logger logr.Logger
}

const bootstrap = `import contextlib, importlib.util, sys
path, channel = sys.argv[1], sys.argv[2]
spec = importlib.util.spec_from_file_location("latest", path)
mod = importlib.util.module_from_spec(spec)
sys.modules["latest"] = mod
with contextlib.redirect_stdout(sys.stderr):
    spec.loader.exec_module(mod)
    version = mod.get_latest(channel)
if version is not None:
    print(version)
`

func (p *ModuleProbe) LatestVersion(channel string) (string, bool, error) {
	return capture(p.sh, p.Logger, &shell.Command{
		Name: p.Python,
		Args: []string{"-c", bootstrap, p.Path, channel},
	})
}

// ExecProbe runs an executable with the channel as its sole argument and reads the version from its stdout.
type ExecProbe struct {
	Path string

	sh     *shell.Shell
	Logger logr.Logger
}

func (p *ExecProbe) LatestVersion(channel string) (string, bool, error) {
	return capture(p.sh, p.Logger, &shell.Command{
		Name: p.Path,
		Args: []string{channel},
	})
}

func capture(sh *shell.Shell, logger logr.Logger, cmd *shell.Command) (string, bool, error) {
	res, err := sh.Capture(cmd, shell.CaptureOpts{
		LogStderr: func(s string) {
			logger.V(1).Info(s, "probe", cmd.Name)
		},
	})
	if err != nil {
		return "", false, errors.Wrapf(err, "running probe %s", cmd.Name)
	}

	v := strings.TrimSpace(res.Stdout)

	return v, v != "", nil
}

// SpecProbe evaluates a declarative release tracker spec read from a YAML file.
// Sources and arguments in the file may refer to {{ .App }} and {{ .Channel }}.
type SpecProbe struct {
	Path string
	App  string

	fs          vfs.FS
	trackerOpts []releasetracker.Option
	Logger      logr.Logger
}

func (p *SpecProbe) LatestVersion(channel string) (string, bool, error) {
	bs, err := p.fs.ReadFile(p.Path)
	if err != nil {
		return "", false, errors.Wrapf(err, "reading %s", p.Path)
	}

	spec := releasetracker.Spec{}
	if err := yaml.Unmarshal(bs, &spec); err != nil {
		return "", false, errors.Wrapf(err, "parsing %s", p.Path)
	}

	spec, err = spec.Render(map[string]string{"App": p.App, "Channel": channel})
	if err != nil {
		return "", false, errors.Wrapf(err, "rendering %s", p.Path)
	}

	opts := append([]releasetracker.Option{releasetracker.Logger(p.Logger)}, p.trackerOpts...)

	tracker, err := releasetracker.New(spec, opts...)
	if err != nil {
		return "", false, err
	}

	latest, err := tracker.Latest("")
	if err != nil {
		return "", false, errors.Wrapf(err, "%s", p.Path)
	}

	return latest.Version, true, nil
}

type timedProbe struct {
	kind    string
	probe   Probe
	metrics *telemetry.Metrics
}

func (p *timedProbe) LatestVersion(channel string) (string, bool, error) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveProbe(p.kind, start, time.Now())
	}()

	return p.probe.LatestVersion(channel)
}
