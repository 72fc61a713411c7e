package config

const (
	TestTypeWeb = "web"
	TestTypeCLI = "cli"
)

// AppMetadata is the declarative description of a single app found next to its Dockerfile.
type AppMetadata struct {
	App      string    `yaml:"app" json:"app"`
	Semver   bool      `yaml:"semver" json:"semver"`
	Channels []Channel `yaml:"channels" json:"channels"`
}

// Channel is a release track of an app.
// Stable channels publish under the bare app name, others under "<app>-<channel>".
type Channel struct {
	Name      string   `yaml:"name" json:"name"`
	Stable    bool     `yaml:"stable" json:"stable"`
	Platforms []string `yaml:"platforms" json:"platforms"`
	Tests     *Tests   `yaml:"tests" json:"tests"`
}

type Tests struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Type    string `yaml:"type" json:"type"`
}

// TestType returns the declared test type, defaulting to "web".
func (t *Tests) TestType() string {
	if t == nil || t.Type == "" {
		return TestTypeWeb
	}
	return t.Type
}

// FilterChannels returns the channels whose names are listed in names, in declaration order.
// A nil names returns every channel.
func (m *AppMetadata) FilterChannels(names []string) []Channel {
	if names == nil {
		return m.Channels
	}

	wanted := map[string]struct{}{}
	for _, n := range names {
		wanted[n] = struct{}{}
	}

	var chs []Channel
	for _, ch := range m.Channels {
		if _, ok := wanted[ch.Name]; ok {
			chs = append(chs, ch)
		}
	}
	return chs
}
