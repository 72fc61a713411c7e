package releasetracker

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/go-logr/logr"
	"github.com/google/go-github/v27/github"
	"github.com/variantdev/buildmatrix/pkg/registry"
	"github.com/variantdev/buildmatrix/pkg/semver"
	"github.com/variantdev/buildmatrix/pkg/shell"
	"github.com/variantdev/buildmatrix/pkg/vhttpget"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/klogr"
)

const (
	defaultGitHubHost = "api.github.com"
	defaultDockerHost = "registry-1.docker.io"
)

type Release struct {
	// Semver is the semantic version of the release.
	//
	// For "1.2.3" this is a semver object of "1.2.3", and for "1.2.3.123" it is a semver of "1.2.3-123" so that we can
	// even handle versions that are not precisely semver-compatible.
	Semver *semver.Version

	// Version is the original version string obtained from a release provider, with the "v" prefix removed
	Version string
}

type Tracker struct {
	Spec Spec

	Logger logr.Logger

	sh *shell.Shell

	httpGetter vhttpget.Getter

	github *github.Client

	registryOpts []registry.Option

	githubToken string

	dockerUsername, dockerPassword string
}

type Option interface {
	SetOption(r *Tracker) error
}

func New(conf Spec, opts ...Option) (*Tracker, error) {
	tracker := &Tracker{}

	for _, o := range opts {
		if err := o.SetOption(tracker); err != nil {
			return nil, err
		}
	}

	if tracker.sh == nil {
		tracker.sh = shell.New(shell.DefaultExec)
	}

	if tracker.Logger == nil {
		tracker.Logger = klogr.New()
	}

	if tracker.httpGetter == nil {
		tracker.httpGetter = vhttpget.New()
	}

	tracker.Spec = conf

	return tracker, nil
}

// Latest returns the greatest release satisfying constraint.
// An empty constraint falls back to Spec.Constraint, and then to any version.
func (p *Tracker) Latest(constraint string) (*Release, error) {
	if constraint == "" {
		constraint = p.Spec.Constraint
	}

	all, err := p.GetReleases()
	if err != nil {
		return nil, err
	}

	return getLatest(constraint, all)
}

func getLatest(constraint string, all []*Release) (*Release, error) {
	if constraint == "" {
		constraint = "> 0.0.0-0"
	}

	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, err
	}

	var latest *Release

	for _, r := range all {
		if !cons.Check(r.Semver) {
			continue
		}

		if latest == nil || latest.Semver.LessThan(r.Semver) {
			latest = r
		}
	}

	if latest == nil {
		vers := []string{}
		for _, r := range all {
			vers = append(vers, r.Semver.String())
		}
		return nil, fmt.Errorf("no semver matching %q found in %v", constraint, vers)
	}

	return latest, nil
}

type ReleaseProvider interface {
	All() ([]*Release, error)
}

type execProvider struct {
	command string
	args    []string

	runtime *Tracker
}

var _ ReleaseProvider = &execProvider{}

func (p *execProvider) All() ([]*Release, error) {
	vs, err := p.runtime.exec(p.command, p.args)
	if err != nil {
		return nil, err
	}

	return p.runtime.versionStringsToReleases(vs), nil
}

type jsonPathProvider struct {
	spec JSONPath

	runtime *Tracker
}

var _ ReleaseProvider = &jsonPathProvider{}

func (p *jsonPathProvider) All() ([]*Release, error) {
	res, err := p.runtime.httpGetter.DoRequest(p.spec.Source)
	if err != nil {
		return nil, err
	}

	tmp := interface{}(nil)
	if err := yaml.Unmarshal([]byte(res), &tmp); err != nil {
		return nil, err
	}

	p.runtime.Logger.V(2).Info("http response", "url", p.spec.Source, "body", res)

	vs, err := extractVersionStrings(tmp, p.spec.Versions)
	if err != nil {
		return nil, err
	}

	return p.runtime.versionStringsToReleases(vs), nil
}

type githubProvider struct {
	host, source string
	releases     bool
	prereleases  bool

	runtime *Tracker
}

var _ ReleaseProvider = &githubProvider{}

func (p *githubProvider) All() ([]*Release, error) {
	owner, repo, err := splitRepo(p.source)
	if err != nil {
		return nil, err
	}

	client, err := p.runtime.githubClient(p.host)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	opt := github.ListOptions{PerPage: 100}

	var vs []string
	for {
		var resp *github.Response
		if p.releases {
			var rs []*github.RepositoryRelease
			rs, resp, err = client.Repositories.ListReleases(ctx, owner, repo, &opt)
			if err != nil {
				return nil, err
			}
			for _, r := range rs {
				if r.GetDraft() || (r.GetPrerelease() && !p.prereleases) {
					continue
				}
				vs = append(vs, r.GetTagName())
			}
		} else {
			var ts []*github.RepositoryTag
			ts, resp, err = client.Repositories.ListTags(ctx, owner, repo, &opt)
			if err != nil {
				return nil, err
			}
			for _, t := range ts {
				vs = append(vs, t.GetName())
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	return p.runtime.versionStringsToReleases(vs), nil
}

type dockerImageTagsProvider struct {
	host, source string

	runtime *Tracker
}

var _ ReleaseProvider = &dockerImageTagsProvider{}

func (p *dockerImageTagsProvider) All() ([]*Release, error) {
	host := p.host
	if host == "" {
		host = defaultDockerHost
	}

	opts := append([]registry.Option{
		registry.WithAPI(registry.APIV2),
		registry.WithCredentials(p.runtime.dockerUsername, p.runtime.dockerPassword),
		registry.WithLogger(p.runtime.Logger),
	}, p.runtime.registryOpts...)

	client, err := registry.New(host, "", opts...)
	if err != nil {
		return nil, err
	}

	tags, err := client.Tags(p.source)
	if err != nil {
		return nil, err
	}

	return p.runtime.versionStringsToReleases(tags), nil
}

func (p *Tracker) githubClient(host string) (*github.Client, error) {
	if p.github != nil {
		return p.github, nil
	}

	var hc *http.Client
	if p.githubToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.githubToken})
		hc = oauth2.NewClient(context.Background(), ts)
	}

	if host == "" || host == defaultGitHubHost {
		return github.NewClient(hc), nil
	}

	return github.NewEnterpriseClient(
		fmt.Sprintf("https://%s/api/v3/", host),
		fmt.Sprintf("https://%s/api/uploads/", host),
		hc,
	)
}

func splitRepo(source string) (string, string, error) {
	parts := strings.Split(strings.Trim(source, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid github repository %q: must be OWNER/REPO", source)
	}
	return parts[0], parts[1], nil
}

func (p *Tracker) exec(cmd string, args []string) ([]string, error) {
	res, err := p.sh.Capture(&shell.Command{Name: cmd, Args: args}, shell.CaptureOpts{
		LogStderr: func(s string) {
			p.Logger.V(1).Info(s, "command", cmd)
		},
	})
	if err != nil {
		return nil, err
	}

	entries := strings.Split(res.Stdout, "\n")

	vs := []string{}

	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			vs = append(vs, e)
		}
	}

	return vs, nil
}

func extractVersionStrings(tmp interface{}, jpath string) ([]string, error) {
	got, err := jsonpath.Get(jpath, tmp)
	if err != nil {
		return nil, err
	}

	raw := []interface{}{}
	switch typed := got.(type) {
	case []interface{}:
		raw = typed
	case map[string]interface{}:
		raw = append(raw, typed)
	case string:
		raw = append(raw, typed)
	default:
		return nil, fmt.Errorf("unexpected type of result from jsonpath: \"%s\": %v", jpath, typed)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("jsonpath: \"%s\": returned nothing", jpath)
	}

	vs := []string{}
	for _, r := range raw {
		switch typed := r.(type) {
		case map[string]interface{}:
			for k := range typed {
				vs = append(vs, k)
			}
		case string:
			vs = append(vs, typed)
		default:
			return nil, fmt.Errorf("jsonpath: unexpected type of result: %T=%v", typed, typed)
		}
	}

	return vs, nil
}

// versionStringsToReleases parses vs into releases sorted in ascending order.
// Strings that do not parse as versions are dropped.
func (p *Tracker) versionStringsToReleases(vs []string) []*Release {
	rs := []*Release{}
	for i, s := range vs {
		v, err := semver.Parse(s)
		if err != nil {
			p.Logger.V(1).Info("ignoring unparsable version", "index", i, "version", s, "err", err.Error())
			continue
		}

		rs = append(rs, &Release{
			Semver:  v,
			Version: strings.TrimPrefix(strings.TrimSpace(s), "v"),
		})
	}

	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Semver.LessThan(rs[j].Semver)
	})

	return rs
}

func (p *Tracker) GetProvider() (ReleaseProvider, error) {
	versionsFrom := p.Spec.VersionsFrom

	if versionsFrom.JSONPath.Source != "" {
		return &jsonPathProvider{spec: versionsFrom.JSONPath, runtime: p}, nil
	} else if versionsFrom.Exec.Command != "" {
		return &execProvider{command: versionsFrom.Exec.Command, args: versionsFrom.Exec.Args, runtime: p}, nil
	} else if versionsFrom.DockerImageTags.Source != "" {
		return &dockerImageTagsProvider{host: versionsFrom.DockerImageTags.Host, source: versionsFrom.DockerImageTags.Source, runtime: p}, nil
	} else if versionsFrom.GitHubTags.Source != "" {
		return &githubProvider{host: versionsFrom.GitHubTags.Host, source: versionsFrom.GitHubTags.Source, runtime: p}, nil
	} else if versionsFrom.GitHubReleases.Source != "" {
		return &githubProvider{
			host:        versionsFrom.GitHubReleases.Host,
			source:      versionsFrom.GitHubReleases.Source,
			releases:    true,
			prereleases: versionsFrom.GitHubReleases.IncludePrereleases,
			runtime:     p,
		}, nil
	}
	return nil, fmt.Errorf("no versions provider specified")
}

func (p *Tracker) GetReleases() ([]*Release, error) {
	pp, err := p.GetProvider()
	if err != nil {
		return nil, err
	}

	all, err := pp.All()
	if err != nil {
		return nil, err
	}

	if p.Spec.ValidVersionPattern == "" {
		return all, nil
	}

	pattern, err := regexp.Compile(p.Spec.ValidVersionPattern)
	if err != nil {
		return nil, fmt.Errorf("validVersionPattern: %v", err)
	}

	var filtered []*Release

	for i := range all {
		r := all[i]

		if pattern.MatchString(r.Version) {
			filtered = append(filtered, r)
		}
	}

	return filtered, nil
}
