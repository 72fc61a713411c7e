package releasetracker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v27/github"
	"github.com/variantdev/buildmatrix/pkg/registry"
	"github.com/variantdev/buildmatrix/pkg/shell"
	"github.com/variantdev/buildmatrix/pkg/vhttpget"
	"gopkg.in/yaml.v3"
)

type config struct {
	ReleaseChannel Spec `yaml:"releaseChannel"`
}

func parse(t *testing.T, input string) Spec {
	t.Helper()

	conf := &config{}
	if err := yaml.Unmarshal([]byte(input), conf); err != nil {
		t.Fatal(err)
	}
	return conf.ReleaseChannel
}

func TestProvider_JSONPath(t *testing.T) {
	spec := parse(t, `releaseChannel:
  versionsFrom:
    jsonPath:
      source: https://example.com/releases.json
      versions: "$.releases[*].version"
`)

	getter := vhttpget.NewTester(map[string]string{
		"https://example.com/releases.json": `{"releases":[{"version":"1.2.0"},{"version":"v1.10.1"},{"version":"nightly"}]}`,
	})

	tracker, err := New(spec, HTTPGetter(getter))
	if err != nil {
		t.Fatal(err)
	}

	latest, err := tracker.Latest("")
	if err != nil {
		t.Fatal(err)
	}

	if latest.Version != "1.10.1" {
		t.Errorf("unexpected version: expected=%v, got=%v", "1.10.1", latest.Version)
	}
}

func TestProvider_JSONPathMapKeys(t *testing.T) {
	spec := parse(t, `releaseChannel:
  versionsFrom:
    jsonPath:
      source: https://example.com/releases.json
      versions: "$"
`)

	getter := vhttpget.NewTester(map[string]string{
		"https://example.com/releases.json": `{"2079.5.1":{},"2079.4.0":{},"2135.4.0":{}}`,
	})

	tracker, err := New(spec, HTTPGetter(getter))
	if err != nil {
		t.Fatal(err)
	}

	latest, err := tracker.Latest("< 2100")
	if err != nil {
		t.Fatal(err)
	}

	if latest.Version != "2079.5.1" {
		t.Errorf("unexpected version: expected=%v, got=%v", "2079.5.1", latest.Version)
	}
}

func TestProvider_Exec(t *testing.T) {
	spec := parse(t, `releaseChannel:
  versionsFrom:
    exec:
      command: sh
      args:
      - -c
      - curl -s https://example.com/versions
`)

	expectedInput := shell.NewFakeInput("sh", []string{"-c", "curl -s https://example.com/versions"})
	expectedStdout := `1.13.7
1.12.6

1.11.8
1.10.13
`
	fake := shell.NewFake(map[shell.FakeInput]shell.FakeOutput{
		expectedInput: {Stdout: expectedStdout},
	})

	tracker, err := New(spec, Commander(fake))
	if err != nil {
		t.Fatal(err)
	}

	latest, err := tracker.Latest("~1.12")
	if err != nil {
		t.Fatal(err)
	}

	if latest.Version != "1.12.6" {
		t.Errorf("unexpected version: expected=%v, got=%v", "1.12.6", latest.Version)
	}

	all, err := tracker.GetReleases()
	if err != nil {
		t.Fatal(err)
	}

	var vs []string
	for _, r := range all {
		vs = append(vs, r.Version)
	}

	if d := cmp.Diff([]string{"1.10.13", "1.11.8", "1.12.6", "1.13.7"}, vs); d != "" {
		t.Errorf("unexpected releases: %s", d)
	}
}

func TestProvider_ExecFailure(t *testing.T) {
	spec := parse(t, `releaseChannel:
  versionsFrom:
    exec:
      command: fail
`)

	fake := shell.NewFake(map[shell.FakeInput]shell.FakeOutput{
		shell.NewFakeInput("fail", nil): {Stderr: "boom", ExitStatus: 2},
	})

	tracker, err := New(spec, Commander(fake))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tracker.Latest(""); err == nil {
		t.Error("expected error")
	}
}

func TestProvider_ValidVersionPattern(t *testing.T) {
	spec := parse(t, `releaseChannel:
  versionsFrom:
    exec:
      command: versions
  validVersionPattern: "^[0-9]+\\.[0-9]+\\.[0-9]+$"
`)

	fake := shell.NewFake(map[shell.FakeInput]shell.FakeOutput{
		shell.NewFakeInput("versions", nil): {Stdout: "2.0.0-rc.1\n1.9.0\n1.9.1.4\n"},
	})

	tracker, err := New(spec, Commander(fake))
	if err != nil {
		t.Fatal(err)
	}

	latest, err := tracker.Latest("")
	if err != nil {
		t.Fatal(err)
	}

	if latest.Version != "1.9.0" {
		t.Errorf("unexpected version: expected=%v, got=%v", "1.9.0", latest.Version)
	}
}

func TestProvider_NoMatch(t *testing.T) {
	spec := parse(t, `releaseChannel:
  versionsFrom:
    exec:
      command: versions
  constraint: ">= 3"
`)

	fake := shell.NewFake(map[shell.FakeInput]shell.FakeOutput{
		shell.NewFakeInput("versions", nil): {Stdout: "1.0.0\n2.0.0\n"},
	})

	tracker, err := New(spec, Commander(fake))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tracker.Latest(""); err == nil {
		t.Error("expected error when nothing satisfies the constraint")
	}
}

func TestProvider_None(t *testing.T) {
	tracker, err := New(Spec{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tracker.GetReleases(); err == nil {
		t.Error("expected error")
	}
}

func newGitHubServer(t *testing.T, path string, pages [][]map[string]interface{}) (*github.Client, func()) {
	t.Helper()

	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		page := 0
		if p := r.URL.Query().Get("page"); p == "2" {
			page = 1
		}
		if page+1 < len(pages) {
			w.Header().Set("Link", `<`+serverURL+path+`?page=2>; rel="next"`)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pages[page])
	}))
	serverURL = server.URL

	client := github.NewClient(nil)
	u, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	client.BaseURL = u

	return client, server.Close
}

func TestProvider_GitHubTags(t *testing.T) {
	spec := parse(t, `releaseChannel:
  versionsFrom:
    githubTags:
      source: helm/helm
`)

	client, done := newGitHubServer(t, "/repos/helm/helm/tags", [][]map[string]interface{}{
		{{"name": "v3.0.0"}, {"name": "v2.16.1"}},
		{{"name": "v3.1.0-rc.1"}, {"name": "v2.9.0"}},
	})
	defer done()

	tracker, err := New(spec, GitHubClient(client))
	if err != nil {
		t.Fatal(err)
	}

	latest, err := tracker.Latest("< 3.0.0")
	if err != nil {
		t.Fatal(err)
	}

	if latest.Version != "2.16.1" {
		t.Errorf("unexpected version: expected=%v, got=%v", "2.16.1", latest.Version)
	}
}

func TestProvider_GitHubReleases(t *testing.T) {
	spec := parse(t, `releaseChannel:
  versionsFrom:
    githubReleases:
      source: mikefarah/yq
`)

	client, done := newGitHubServer(t, "/repos/mikefarah/yq/releases", [][]map[string]interface{}{
		{
			{"tag_name": "v4.1.0", "draft": true},
			{"tag_name": "v4.0.0-beta", "prerelease": true},
			{"tag_name": "v3.4.1"},
		},
	})
	defer done()

	tracker, err := New(spec, GitHubClient(client))
	if err != nil {
		t.Fatal(err)
	}

	latest, err := tracker.Latest("")
	if err != nil {
		t.Fatal(err)
	}

	if latest.Version != "3.4.1" {
		t.Errorf("unexpected version: expected=%v, got=%v", "3.4.1", latest.Version)
	}
}

func TestProvider_GitHubInvalidSource(t *testing.T) {
	tracker, err := New(Spec{VersionsFrom: VersionsFrom{GitHubTags: GitHubTags{Source: "helm"}}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tracker.GetReleases(); err == nil {
		t.Error("expected error for source without owner")
	}
}

func TestProvider_DockerImageTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/library/alpine/tags/list" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"tags": []string{"latest", "3.10", "3.9.4", "edge"}})
	}))
	defer server.Close()

	spec := Spec{VersionsFrom: VersionsFrom{DockerImageTags: DockerImageTags{Host: server.URL, Source: "library/alpine"}}}

	tracker, err := New(spec, RegistryOptions(registry.WithHTTPClient(server.Client())))
	if err != nil {
		t.Fatal(err)
	}

	latest, err := tracker.Latest("")
	if err != nil {
		t.Fatal(err)
	}

	if latest.Version != "3.10" {
		t.Errorf("unexpected version: expected=%v, got=%v", "3.10", latest.Version)
	}
}

func TestProvider_DockerImageTagsCredentials(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "bot" || pass != "s3cret" {
				t.Errorf("unexpected basic auth: ok=%v user=%q pass=%q", ok, user, pass)
				w.WriteHeader(http.StatusForbidden)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"token": "t0k"})
		case "/v2/acme/tool/tags/list":
			if r.Header.Get("Authorization") != "Bearer t0k" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="`+serverURL+`/token",service="registry",scope="repository:acme/tool:pull"`)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"tags": []string{"1.0.0", "1.1.0"}})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()
	serverURL = server.URL

	spec := Spec{VersionsFrom: VersionsFrom{DockerImageTags: DockerImageTags{Host: server.URL, Source: "acme/tool"}}}

	tracker, err := New(spec,
		DockerCredentials("bot", "s3cret"),
		RegistryOptions(registry.WithHTTPClient(server.Client())),
	)
	if err != nil {
		t.Fatal(err)
	}

	latest, err := tracker.Latest("")
	if err != nil {
		t.Fatal(err)
	}

	if latest.Version != "1.1.0" {
		t.Errorf("unexpected version: expected=%v, got=%v", "1.1.0", latest.Version)
	}
}

func TestGitHubToken(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{{"name": "v1.0.0"}})
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	spec := Spec{VersionsFrom: VersionsFrom{GitHubTags: GitHubTags{Host: host, Source: "acme/tool"}}}

	tracker, err := New(spec, GitHubToken("ghp_abc"))
	if err != nil {
		t.Fatal(err)
	}

	client, err := tracker.githubClient(host)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	client.BaseURL = u
	tracker.github = client

	if _, err := tracker.GetReleases(); err != nil {
		t.Fatal(err)
	}

	if auth != "Bearer ghp_abc" {
		t.Errorf("unexpected Authorization header: %q", auth)
	}
}

func TestSpec_Render(t *testing.T) {
	spec := parse(t, `releaseChannel:
  versionsFrom:
    exec:
      command: ./{{ .Channel }}/versions.sh
      args:
      - --app={{ .App }}
  constraint: "~{{ .Major }}"
`)

	got, err := spec.Render(map[string]string{"App": "plex", "Channel": "beta", "Major": "1"})
	if err != nil {
		t.Fatal(err)
	}

	want := Spec{
		VersionsFrom: VersionsFrom{Exec: Exec{Command: "./beta/versions.sh", Args: []string{"--app=plex"}}},
		Constraint:   "~1",
	}

	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("%s", d)
	}

	if _, err := spec.Render(map[string]string{}); err == nil {
		t.Error("expected error for missing key")
	}
}
