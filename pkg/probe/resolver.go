package probe

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/buildmatrix/pkg/config"
	"github.com/variantdev/buildmatrix/pkg/releasetracker"
	"github.com/variantdev/buildmatrix/pkg/shell"
	"github.com/variantdev/buildmatrix/pkg/telemetry"
	"k8s.io/klog/klogr"
)

const DefaultPython = "python3"

// Candidate is a place a probe may live, relative to the app directory.
type Candidate struct {
	// Path may contain the {channel} placeholder.
	Path string
	Kind string
}

// Candidates is the search order of probes. The first existing file wins.
var Candidates = []Candidate{
	{Path: "ci/latest.py", Kind: KindModule},
	{Path: "ci/latest.sh", Kind: KindExec},
	{Path: "{channel}/latest.py", Kind: KindModule},
	{Path: "{channel}/latest.sh", Kind: KindExec},
	{Path: "ci/latest.yaml", Kind: KindSpec},
	{Path: "{channel}/latest.yaml", Kind: KindSpec},
}

// Resolver locates and runs the probe of an app channel.
type Resolver struct {
	fs          vfs.FS
	sh          *shell.Shell
	python      string
	trackerOpts []releasetracker.Option
	metrics     *telemetry.Metrics

	Logger logr.Logger
}

type Option func(*Resolver)

func WithFS(fs vfs.FS) Option {
	return func(r *Resolver) {
		r.fs = fs
	}
}

// WithExec sets the function used to run module and exec probes.
func WithExec(e shell.Exec) Option {
	return func(r *Resolver) {
		r.sh = shell.New(e)
	}
}

// WithPython sets the interpreter that loads latest.py probes.
func WithPython(python string) Option {
	return func(r *Resolver) {
		r.python = python
	}
}

func WithLogger(l logr.Logger) Option {
	return func(r *Resolver) {
		r.Logger = l
	}
}

// WithTrackerOptions are passed on to the release trackers of latest.yaml probes.
func WithTrackerOptions(opts ...releasetracker.Option) Option {
	return func(r *Resolver) {
		r.trackerOpts = append(r.trackerOpts, opts...)
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, o := range opts {
		o(r)
	}

	if r.fs == nil {
		r.fs = vfs.HostOSFS
	}

	if r.sh == nil {
		r.sh = shell.New(shell.DefaultExec)
	}

	if r.python == "" {
		r.python = DefaultPython
	}

	if r.Logger == nil {
		r.Logger = klogr.New()
	}

	return r
}

// Locate returns the path and kind of the first probe of the channel that exists in appDir.
func (r *Resolver) Locate(appDir, channel string) (string, string, bool, error) {
	for _, c := range Candidates {
		rel := strings.Replace(c.Path, "{channel}", channel, -1)
		p := config.JoinPath(appDir, rel)

		info, err := r.fs.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", "", false, errors.Wrapf(err, "stat %s", p)
		}

		if info.Mode().IsRegular() {
			return p, c.Kind, true, nil
		}
	}

	return "", "", false, nil
}

// Probe returns the probe for the channel, or false when the app has none.
func (r *Resolver) Probe(appDir, channel string) (Probe, bool, error) {
	p, kind, ok, err := r.Locate(appDir, channel)
	if err != nil || !ok {
		return nil, false, err
	}

	var probe Probe
	switch kind {
	case KindModule:
		probe = &ModuleProbe{Path: p, Python: r.python, sh: r.sh, Logger: r.Logger}
	case KindExec:
		probe = &ExecProbe{Path: p, sh: r.sh, Logger: r.Logger}
	case KindSpec:
		probe = &SpecProbe{Path: p, App: filepath.Base(appDir), fs: r.fs, trackerOpts: r.trackerOpts, Logger: r.Logger}
	default:
		return nil, false, errors.Errorf("unsupported probe kind %q", kind)
	}

	r.Logger.Info("probe.found", "path", p, "kind", kind)

	return &timedProbe{kind: kind, probe: probe, metrics: r.metrics}, true, nil
}

// Resolve returns the latest version of the channel of the app in appDir.
// It returns false when there is no probe or the probe reported nothing.
// A failing probe is an error and no other candidate is tried.
func (r *Resolver) Resolve(appDir, channel string) (string, bool, error) {
	probe, ok, err := r.Probe(appDir, channel)
	if err != nil {
		return "", false, err
	}
	if !ok {
		r.Logger.Info("probe.none", "app", appDir, "channel", channel)
		return "", false, nil
	}

	v, ok, err := probe.LatestVersion(channel)
	if err != nil {
		return "", false, err
	}

	r.Logger.Info("probe.latest", "app", appDir, "channel", channel, "version", v)

	return v, ok, nil
}
