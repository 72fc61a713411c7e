package releasetracker

import (
	"github.com/variantdev/buildmatrix/pkg/tmpl"
)

// Spec declares where the releases of an upstream come from and which of them qualify.
type Spec struct {
	VersionsFrom VersionsFrom `yaml:"versionsFrom"`

	// Constraint is a semver constraint like "~1.2" or ">= 2, < 3". Empty means any version.
	Constraint string `yaml:"constraint"`

	// ValidVersionPattern filters releases by their version string before the constraint is applied.
	ValidVersionPattern string `yaml:"validVersionPattern"`
}

type VersionsFrom struct {
	Exec            Exec            `yaml:"exec"`
	JSONPath        JSONPath        `yaml:"jsonPath"`
	GitHubTags      GitHubTags      `yaml:"githubTags"`
	GitHubReleases  GitHubReleases  `yaml:"githubReleases"`
	DockerImageTags DockerImageTags `yaml:"dockerImageTags"`
}

type Exec struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type JSONPath struct {
	Source   string `yaml:"source"`
	Versions string `yaml:"versions"`
}

type GitHubTags struct {
	Host   string `yaml:"host"`
	Source string `yaml:"source"`
}

type GitHubReleases struct {
	Host   string `yaml:"host"`
	Source string `yaml:"source"`

	IncludePrereleases bool `yaml:"includePrereleases"`
}

type DockerImageTags struct {
	Host   string `yaml:"host"`
	Source string `yaml:"source"`
}

// Render returns a copy of s with every source and exec argument rendered as a template against data.
func (s Spec) Render(data interface{}) (Spec, error) {
	r := s
	var err error

	fields := []struct {
		name string
		v    *string
	}{
		{"exec.command", &r.VersionsFrom.Exec.Command},
		{"jsonPath.source", &r.VersionsFrom.JSONPath.Source},
		{"githubTags.source", &r.VersionsFrom.GitHubTags.Source},
		{"githubReleases.source", &r.VersionsFrom.GitHubReleases.Source},
		{"dockerImageTags.source", &r.VersionsFrom.DockerImageTags.Source},
		{"constraint", &r.Constraint},
	}
	for _, f := range fields {
		*f.v, err = tmpl.Render(f.name, *f.v, data)
		if err != nil {
			return Spec{}, err
		}
	}

	r.VersionsFrom.Exec.Args, err = tmpl.RenderAll("exec.args", s.VersionsFrom.Exec.Args, data)
	if err != nil {
		return Spec{}, err
	}

	return r, nil
}
