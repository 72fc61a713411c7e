package matrix

import (
	"os"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/buildmatrix/pkg/config"
	"k8s.io/klog/klogr"
)

// AllApps selects every app found under the apps directory.
const AllApps = "all"

const DefaultAppsDir = "./apps"

var ErrAppNotFound = errors.New("not found")

// Driver runs a Builder over several apps and folds their results in order.
type Driver struct {
	fs      vfs.FS
	appsDir string
	builder *Builder

	Logger logr.Logger
}

type DriverOption func(*Driver)

func WithAppsDir(dir string) DriverOption {
	return func(d *Driver) {
		d.appsDir = dir
	}
}

func WithDriverFS(fs vfs.FS) DriverOption {
	return func(d *Driver) {
		d.fs = fs
	}
}

func WithDriverLogger(l logr.Logger) DriverOption {
	return func(d *Driver) {
		d.Logger = l
	}
}

func NewDriver(b *Builder, opts ...DriverOption) *Driver {
	d := &Driver{
		builder: b,
		appsDir: DefaultAppsDir,
	}
	for _, o := range opts {
		o(d)
	}

	if d.fs == nil {
		d.fs = vfs.HostOSFS
	}

	if d.Logger == nil {
		d.Logger = klogr.New()
	}

	return d
}

// Run computes the matrix of apps, either AllApps or a comma separated list of app names.
// channels restricts the channels of named apps and is ignored for AllApps.
func (d *Driver) Run(apps string, channels []string) (Result, error) {
	if apps == AllApps {
		return d.runAll()
	}

	names := strings.Split(apps, ",")

	d.Logger.Info("run.apps", "apps", names, "channels", channels)

	dirs := make([]string, 0, len(names))
	for _, name := range names {
		dir := config.JoinPath(d.appsDir, name)
		if _, err := d.fs.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				return Result{}, errors.Wrapf(ErrAppNotFound, "app %q", name)
			}
			return Result{}, errors.Wrapf(err, "stat %s", dir)
		}
		dirs = append(dirs, dir)
	}

	return d.build(dirs, channels, false)
}

// Discover returns the directories right under the apps directory that carry a metadata file, sorted by name.
func (d *Driver) Discover() ([]string, error) {
	infos, err := d.fs.ReadDir(d.appsDir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", d.appsDir)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name() < infos[j].Name()
	})

	var dirs []string
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}

		dir := config.JoinPath(d.appsDir, info.Name())

		_, ok, err := config.Locate(d.fs, dir)
		if err != nil {
			return nil, err
		}
		if !ok {
			d.Logger.V(1).Info("app.skip", "dir", dir, "reason", "no metadata")
			continue
		}

		dirs = append(dirs, dir)
	}

	return dirs, nil
}

func (d *Driver) runAll() (Result, error) {
	d.Logger.Info("run.all", "dir", d.appsDir)

	dirs, err := d.Discover()
	if err != nil {
		return Result{}, err
	}

	return d.build(dirs, nil, true)
}

// build folds the results of the apps in dirs.
// With skipEmpty, apps whose metadata file holds no document are left out instead of failing the run.
func (d *Driver) build(dirs []string, channels []string, skipEmpty bool) (Result, error) {
	res := NewResult()
	for _, dir := range dirs {
		meta, path, err := config.LoadApp(d.fs, dir)
		if skipEmpty && errors.Cause(err) == config.ErrEmpty {
			d.Logger.Info("app.skip", "dir", dir, "reason", "empty metadata")
			continue
		}
		if err != nil {
			return Result{}, err
		}
		d.Logger.Info("app.loaded", "path", path)

		r, err := d.builder.BuildForApp(dir, meta, channels)
		if err != nil {
			return Result{}, err
		}
		res = res.Merge(r)
	}

	d.Logger.Info("run.done", "images", len(res.Images), "platforms", len(res.ImagePlatforms))

	return res, nil
}
