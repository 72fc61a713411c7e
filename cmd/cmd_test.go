package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/twpayne/go-vfs/vfst"
	"github.com/variantdev/buildmatrix/pkg/matrix"
	"github.com/variantdev/buildmatrix/pkg/shell"
	"k8s.io/klog/klogr"
)

const plexMetadata = `app: plex
semver: true
channels:
- name: stable
  stable: true
  platforms: ["linux/amd64", "linux/arm64"]
  tests:
    enabled: true
- name: beta
  platforms: ["linux/amd64", "linux/arm64"]
  tests:
    enabled: true
    type: cli
`

func newTestRunner(t *testing.T, env map[string]string) (*runner, *bytes.Buffer, func()) {
	t.Helper()

	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/apps/plex/metadata.yaml":   plexMetadata,
		"/apps/plex/ci/latest.sh":    "#!/bin/sh\n",
		"/apps/plex/Dockerfile":      "",
		"/apps/plex/beta/Dockerfile": "",
	})
	if err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/repository/home-operations/plex/tag/":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"tags": []map[string]string{{"name": "rolling"}, {"name": "1.40.1"}, {"name": "1.40"}},
			})
		case "/api/v1/repository/home-operations/plex-beta/tag/":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"tags": []map[string]string{{"name": "rolling"}, {"name": "1.41.0"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	vars := map[string]string{
		"REPO_OWNER":    "home-operations",
		"REGISTRY_HOST": server.URL,
		"APPS_DIR":      "/apps",
	}
	for k, v := range env {
		vars[k] = v
	}

	stdout := &bytes.Buffer{}

	r := &runner{
		fs: fs,
		exec: shell.NewFake(map[shell.FakeInput]shell.FakeOutput{
			shell.NewFakeInput("/apps/plex/ci/latest.sh", []string{"stable"}): {Stdout: "1.40.2\n"},
			shell.NewFakeInput("/apps/plex/ci/latest.sh", []string{"beta"}):   {Stdout: "1.41.0\n"},
		}),
		getenv: func(name string) string { return vars[name] },
		stdout: stdout,
		log:    klogr.New(),
	}

	return r, stdout, func() {
		server.Close()
		clean()
	}
}

func TestRootCmd(t *testing.T) {
	r, stdout, clean := newTestRunner(t, nil)
	defer clean()

	cmd := newRootCmd(r)
	cmd.SetArgs([]string{"plex", "true", "false"})

	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	got := matrix.Result{}
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not a build matrix: %v\n%s", err, stdout.String())
	}

	published := "1.40.1"
	wantImages := []matrix.BuildImage{
		{
			Name:             "plex",
			Version:          "1.40.2",
			PublishedVersion: &published,
			Tags:             []string{"rolling", "1.40.2", "1.40", "1"},
			Platforms:        []string{"linux/amd64", "linux/arm64"},
		},
	}

	if d := cmp.Diff(wantImages, got.Images); d != "" {
		t.Errorf("unexpected images: %s", d)
	}

	var tested []bool
	for _, j := range got.ImagePlatforms {
		tested = append(tested, j.TestsEnabled)
	}
	if d := cmp.Diff([]bool{true, false}, tested); d != "" {
		t.Errorf("unexpected tests_enabled: %s", d)
	}
}

func TestRootCmd_ForceAndChannels(t *testing.T) {
	r, stdout, clean := newTestRunner(t, map[string]string{"TESTABLE_PLATFORMS": "linux/amd64, linux/arm64"})
	defer clean()

	cmd := newRootCmd(r)
	cmd.SetArgs([]string{"plex", "false", "true", "beta"})

	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	got := matrix.Result{}
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatal(err)
	}

	if len(got.Images) != 1 || got.Images[0].Name != "plex-beta" || got.Images[0].PublishedVersion != nil {
		t.Fatalf("unexpected images: %+v", got.Images)
	}

	if len(got.ImagePlatforms) != 2 {
		t.Fatalf("expected both testable platforms, got %+v", got.ImagePlatforms)
	}

	for _, j := range got.ImagePlatforms {
		if j.GossArgs != matrix.CLIGossArgs || !j.TestsEnabled || j.Context != "/apps/plex/beta" {
			t.Errorf("unexpected job: %+v", j)
		}
	}
}

func TestRootCmd_MissingApp(t *testing.T) {
	r, stdout, clean := newTestRunner(t, nil)
	defer clean()

	cmd := newRootCmd(r)
	cmd.SetArgs([]string{"plex,jellyfin", "false", "false"})

	err := cmd.Execute()
	if errors.Cause(err) != matrix.ErrAppNotFound {
		t.Errorf("unexpected error: %v", err)
	}

	if stdout.Len() != 0 {
		t.Errorf("expected no output, got %s", stdout.String())
	}
}

func TestRootCmd_Args(t *testing.T) {
	r, _, clean := newTestRunner(t, nil)
	defer clean()

	for _, args := range [][]string{{"plex", "true"}, {"plex", "true", "false", "stable", "extra"}} {
		cmd := newRootCmd(r)
		cmd.SetArgs(args)

		if err := cmd.Execute(); err == nil {
			t.Errorf("expected error for args %v", args)
		}
	}
}

func TestReadConfig(t *testing.T) {
	got := readConfig(func(string) string { return "" })

	want := Config{
		RegistryHost:      "quay.io",
		RegistryAPI:       "quay",
		AppsDir:           "./apps",
		TestablePlatforms: []string{"linux/amd64"},
		Python:            "python3",
	}

	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("%s", d)
	}
}

func TestReadConfig_Credentials(t *testing.T) {
	env := map[string]string{
		"GITHUB_TOKEN":       "ghp_abc",
		"DOCKER_USERNAME":    "bot",
		"DOCKER_PASSWORD":    "s3cret",
		"TESTABLE_PLATFORMS": "linux/amd64, linux/arm64",
	}

	got := readConfig(func(k string) string { return env[k] })

	want := Config{
		RegistryHost:      "quay.io",
		RegistryAPI:       "quay",
		AppsDir:           "./apps",
		TestablePlatforms: []string{"linux/amd64", "linux/arm64"},
		Python:            "python3",
		GitHubToken:       "ghp_abc",
		DockerUsername:    "bot",
		DockerPassword:    "s3cret",
	}

	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("%s", d)
	}
}
