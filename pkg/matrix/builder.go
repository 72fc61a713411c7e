// Package matrix decides which images of an app need building and lays out their per-platform jobs.
package matrix

import (
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/buildmatrix/pkg/config"
	"github.com/variantdev/buildmatrix/pkg/registry"
	"github.com/variantdev/buildmatrix/pkg/semver"
	"github.com/variantdev/buildmatrix/pkg/telemetry"
	"k8s.io/klog/klogr"
)

// DefaultTestablePlatforms are the platforms CI can run health checks on.
var DefaultTestablePlatforms = []string{"linux/amd64"}

// Versions resolves the latest upstream version of an app channel.
type Versions interface {
	Resolve(appDir, channel string) (string, bool, error)
}

// TagLister lists the tags already pushed for an image.
type TagLister interface {
	Tags(image string) ([]string, error)
}

type Builder struct {
	fs                vfs.FS
	versions          Versions
	registry          TagLister
	testablePlatforms []string
	forRelease        bool
	force             bool
	metrics           *telemetry.Metrics

	Logger logr.Logger
}

type Option func(*Builder)

func WithFS(fs vfs.FS) Option {
	return func(b *Builder) {
		b.fs = fs
	}
}

func WithLogger(l logr.Logger) Option {
	return func(b *Builder) {
		b.Logger = l
	}
}

// WithTestablePlatforms replaces DefaultTestablePlatforms.
func WithTestablePlatforms(platforms []string) Option {
	return func(b *Builder) {
		b.testablePlatforms = platforms
	}
}

// ForRelease admits every declared platform instead of only the testable ones.
func ForRelease(v bool) Option {
	return func(b *Builder) {
		b.forRelease = v
	}
}

// Force builds every channel with a version, whatever is already published.
func Force(v bool) Option {
	return func(b *Builder) {
		b.force = v
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

func New(versions Versions, registry TagLister, opts ...Option) *Builder {
	b := &Builder{
		versions:          versions,
		registry:          registry,
		testablePlatforms: DefaultTestablePlatforms,
	}
	for _, o := range opts {
		o(b)
	}

	if b.fs == nil {
		b.fs = vfs.HostOSFS
	}

	if b.Logger == nil {
		b.Logger = klogr.New()
	}

	return b
}

// ImageName is the app name for stable channels and "<app>-<channel>" otherwise.
func ImageName(meta *config.AppMetadata, ch config.Channel) string {
	if ch.Stable {
		return meta.App
	}
	return meta.App + "-" + ch.Name
}

// Tags returns the tags an image version is pushed under.
// With semverTags, every shorter dotted prefix of version follows, most specific first.
func Tags(version string, semverTags bool) []string {
	tags := []string{registry.RollingTag, version}
	if semverTags {
		tags = append(tags, semver.Truncations(version)...)
	}
	return tags
}

// BuildForApp returns the images and platform jobs of the app in appDir.
// channels restricts the channels considered, nil meaning all of them.
func (b *Builder) BuildForApp(appDir string, meta *config.AppMetadata, channels []string) (Result, error) {
	log := b.Logger.WithValues("app", meta.App)

	chs := meta.FilterChannels(channels)

	names := make([]string, 0, len(chs))
	for _, ch := range chs {
		names = append(names, ch.Name)
	}
	log.Info("app.start", "dir", appDir, "channels", names, "forRelease", b.forRelease, "force", b.force)

	res := NewResult()

	for _, ch := range chs {
		r, err := b.buildChannel(appDir, meta, ch)
		if err != nil {
			return Result{}, errors.Wrapf(err, "app %s channel %s", meta.App, ch.Name)
		}
		res = res.Merge(r)
	}

	log.Info("app.done", "images", len(res.Images), "platforms", len(res.ImagePlatforms))

	return res, nil
}

func (b *Builder) buildChannel(appDir string, meta *config.AppMetadata, ch config.Channel) (Result, error) {
	log := b.Logger.WithValues("app", meta.App, "channel", ch.Name)

	version, ok, err := b.versions.Resolve(appDir, ch.Name)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		log.Info("channel.skip", "reason", "no version found")
		b.metrics.ObserveChannel(telemetry.ChannelNoVersion)
		return NewResult(), nil
	}

	image := BuildImage{
		Name:    ImageName(meta, ch),
		Version: version,
	}

	if !b.force {
		published, found := b.publishedVersion(image.Name)
		log.Info("channel.compare", "image", image.Name, "published", published, "latest", version)

		if found && published == version {
			log.Info("channel.skip", "reason", "already published", "version", version)
			b.metrics.ObserveChannel(telemetry.ChannelUpToDate)
			return NewResult(), nil
		}
		image.Compared = true
		if found {
			image.PublishedVersion = &published
		}
	}

	image.Tags = Tags(version, meta.Semver)

	layout := b.layout(appDir, ch.Name)

	jobs := []PlatformJob{}
	for _, platform := range ch.Platforms {
		testable := contains(b.testablePlatforms, platform)
		if !testable && !b.forRelease {
			log.V(1).Info("platform.skip", "platform", platform)
			continue
		}

		targetOS, targetArch, err := ParsePlatform(platform)
		if err != nil {
			return Result{}, err
		}
		if ch.Tests == nil {
			return Result{}, errors.Errorf("platform %s: tests is required to build a channel", platform)
		}

		job := PlatformJob{
			Name:         image.Name,
			Platform:     platform,
			TargetOS:     targetOS,
			TargetArch:   targetArch,
			Version:      version,
			Channel:      ch.Name,
			LabelType:    LabelType,
			Dockerfile:   layout.dockerfile,
			Context:      layout.context,
			GossConfig:   layout.gossConfig,
			TestsEnabled: ch.Tests.Enabled && testable,
		}
		if ch.Tests.TestType() == config.TestTypeCLI {
			job.GossArgs = CLIGossArgs
		}

		image.Platforms = append(image.Platforms, platform)
		jobs = append(jobs, job)
		b.metrics.ObservePlatformJob(job.TestsEnabled)
	}

	log.Info("channel.build", "image", image.Name, "version", version, "tags", image.Tags, "platforms", image.Platforms)
	b.metrics.ObserveChannel(telemetry.ChannelBuilt)

	return Result{
		Images:         []BuildImage{image},
		ImagePlatforms: jobs,
	}, nil
}

// publishedVersion looks up the version currently in the registry.
// Lookup failures are logged and treated as nothing published.
func (b *Builder) publishedVersion(image string) (string, bool) {
	tags, err := b.registry.Tags(image)
	if err != nil {
		b.Logger.Error(err, "registry.tags", "image", image)
		b.metrics.ObserveRegistryQuery(telemetry.RegistryError)
		return "", false
	}

	b.Logger.V(1).Info("registry.tags", "image", image, "tags", tags)

	v, ok := registry.SelectPublished(tags)
	if !ok {
		b.metrics.ObserveRegistryQuery(telemetry.RegistryNotFound)
		return "", false
	}

	b.metrics.ObserveRegistryQuery(telemetry.RegistryFound)
	return v, true
}

type buildLayout struct {
	dockerfile string
	context    string
	gossConfig string
}

// layout prefers a channel directory with its own Dockerfile over the app directory.
// Anything that cannot be stat'ed as a regular file counts as absent.
func (b *Builder) layout(appDir, channel string) buildLayout {
	channelDir := config.JoinPath(appDir, channel)
	dockerfile := config.JoinPath(channelDir, "Dockerfile")

	if info, err := b.fs.Stat(dockerfile); err == nil && info.Mode().IsRegular() {
		return buildLayout{
			dockerfile: dockerfile,
			context:    channelDir,
			gossConfig: config.JoinPath(channelDir, "goss.yaml"),
		}
	}

	return buildLayout{
		dockerfile: config.JoinPath(appDir, "Dockerfile"),
		context:    appDir,
		gossConfig: config.JoinPath(appDir, "ci", "goss.yaml"),
	}
}
