package releasetracker

import (
	"github.com/go-logr/logr"
	"github.com/google/go-github/v27/github"
	"github.com/variantdev/buildmatrix/pkg/registry"
	"github.com/variantdev/buildmatrix/pkg/shell"
	"github.com/variantdev/buildmatrix/pkg/vhttpget"
)

type loggerOption struct {
	l logr.Logger
}

func (o *loggerOption) SetOption(r *Tracker) error {
	r.Logger = o.l
	return nil
}

func Logger(l logr.Logger) Option {
	return &loggerOption{l: l}
}

type execOption struct {
	e shell.Exec
}

func (o *execOption) SetOption(r *Tracker) error {
	r.sh = shell.New(o.e)
	return nil
}

// Commander sets the function used to run exec providers.
func Commander(e shell.Exec) Option {
	return &execOption{e: e}
}

type httpGetterOption struct {
	g vhttpget.Getter
}

func (o *httpGetterOption) SetOption(r *Tracker) error {
	r.httpGetter = o.g
	return nil
}

func HTTPGetter(g vhttpget.Getter) Option {
	return &httpGetterOption{g: g}
}

type githubOption struct {
	c *github.Client
}

func (o *githubOption) SetOption(r *Tracker) error {
	r.github = o.c
	return nil
}

// GitHubClient overrides the client used by the githubTags and githubReleases providers.
func GitHubClient(c *github.Client) Option {
	return &githubOption{c: c}
}

type registryOption struct {
	opts []registry.Option
}

func (o *registryOption) SetOption(r *Tracker) error {
	r.registryOpts = append(r.registryOpts, o.opts...)
	return nil
}

// RegistryOptions are appended to the options of the dockerImageTags provider's client.
func RegistryOptions(opts ...registry.Option) Option {
	return &registryOption{opts: opts}
}

type githubTokenOption struct {
	token string
}

func (o *githubTokenOption) SetOption(r *Tracker) error {
	r.githubToken = o.token
	return nil
}

// GitHubToken authenticates the githubTags and githubReleases providers.
// It is ignored when GitHubClient is given.
func GitHubToken(token string) Option {
	return &githubTokenOption{token: token}
}

type dockerCredentialsOption struct {
	username, password string
}

func (o *dockerCredentialsOption) SetOption(r *Tracker) error {
	r.dockerUsername = o.username
	r.dockerPassword = o.password
	return nil
}

func DockerCredentials(username, password string) Option {
	return &dockerCredentialsOption{username: username, password: password}
}
