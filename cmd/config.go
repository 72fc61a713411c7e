package cmd

import (
	"strings"

	"github.com/variantdev/buildmatrix/pkg/matrix"
	"github.com/variantdev/buildmatrix/pkg/probe"
	"github.com/variantdev/buildmatrix/pkg/registry"
)

// Config is what the environment tells about the repository and its registry.
type Config struct {
	RepoOwner         string
	RegistryHost      string
	RegistryAPI       string
	RegistryToken     string
	RegistryUsername  string
	RegistryPassword  string
	AppsDir           string
	TestablePlatforms []string
	Python            string
	MetricsFile       string
	Pushgateway       string

	// Credentials for the version sources of an app's release tracker.
	GitHubToken    string
	DockerUsername string
	DockerPassword string
}

func readConfig(getenv func(string) string) Config {
	get := func(name, def string) string {
		if v := getenv(name); v != "" {
			return v
		}
		return def
	}

	c := Config{
		RepoOwner:         getenv("REPO_OWNER"),
		RegistryHost:      get("REGISTRY_HOST", registry.DefaultHost),
		RegistryAPI:       get("REGISTRY_API", registry.APIQuay),
		RegistryToken:     getenv("REGISTRY_TOKEN"),
		RegistryUsername:  getenv("REGISTRY_USERNAME"),
		RegistryPassword:  getenv("REGISTRY_PASSWORD"),
		AppsDir:           get("APPS_DIR", matrix.DefaultAppsDir),
		TestablePlatforms: matrix.DefaultTestablePlatforms,
		Python:            get("PYTHON", probe.DefaultPython),
		MetricsFile:       getenv("BUILDMATRIX_METRICS_FILE"),
		Pushgateway:       getenv("BUILDMATRIX_PUSHGATEWAY"),
		GitHubToken:       getenv("GITHUB_TOKEN"),
		DockerUsername:    getenv("DOCKER_USERNAME"),
		DockerPassword:    getenv("DOCKER_PASSWORD"),
	}

	if v := getenv("TESTABLE_PLATFORMS"); v != "" {
		c.TestablePlatforms = splitList(v)
	}

	return c
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
