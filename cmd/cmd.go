package cmd

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/buildmatrix/pkg/loginfra"
	"github.com/variantdev/buildmatrix/pkg/matrix"
	"github.com/variantdev/buildmatrix/pkg/probe"
	"github.com/variantdev/buildmatrix/pkg/registry"
	"github.com/variantdev/buildmatrix/pkg/releasetracker"
	"github.com/variantdev/buildmatrix/pkg/shell"
	"github.com/variantdev/buildmatrix/pkg/telemetry"
	"k8s.io/klog/klogr"
)

const metricsJob = "buildmatrix"

type runner struct {
	fs     vfs.FS
	exec   shell.Exec
	getenv func(string) string
	stdout io.Writer

	registryOpts []registry.Option

	log logr.Logger
}

func Execute() {
	log := klogr.New()

	r := &runner{
		fs:     vfs.HostOSFS,
		exec:   shell.DefaultExec,
		getenv: os.Getenv,
		stdout: os.Stdout,
		log:    log,
	}

	cmd := newRootCmd(r)

	fs, err := loginfra.Init(os.Args[1:])
	if err != nil {
		log.Error(err, err.Error())
		os.Exit(1)
	}

	// Hand parsing of remaining flags to pflags and cobra
	pflag.CommandLine.AddGoFlagSet(fs)

	if err := cmd.Execute(); err != nil {
		log.Error(err, err.Error())
		os.Exit(1)
	}
}

func newRootCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buildmatrix <apps> <forRelease> <force> [channels]",
		Short: "Compute the images and platform jobs to build for the apps of this repository",
		Long: `Compute the images and platform jobs to build for the apps of this repository.

apps is "all" or a comma separated list of app names.
forRelease "true" builds every declared platform instead of only the testable ones.
force "true" builds even when the latest version is already published.
channels is a comma separated list of channels to consider for the named apps.

The build matrix is written to stdout as JSON. Logs go to stderr.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var channels []string
			if len(args) == 4 {
				channels = strings.Split(args[3], ",")
			}
			return r.run(args[0], args[1] == "true", args[2] == "true", channels)
		},
	}

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	cmd.SetOutput(os.Stderr)

	return cmd
}

func (r *runner) run(apps string, forRelease, force bool, channels []string) error {
	conf := readConfig(r.getenv)

	r.log.Info("run.start", "apps", apps, "forRelease", forRelease, "force", force, "channels", channels, "owner", conf.RepoOwner)

	metrics := telemetry.NewMetrics()

	regOpts := append([]registry.Option{
		registry.WithAPI(conf.RegistryAPI),
		registry.WithToken(conf.RegistryToken),
		registry.WithCredentials(conf.RegistryUsername, conf.RegistryPassword),
		registry.WithLogger(r.log),
	}, r.registryOpts...)

	reg, err := registry.New(conf.RegistryHost, conf.RepoOwner, regOpts...)
	if err != nil {
		return err
	}

	resolver := probe.NewResolver(
		probe.WithFS(r.fs),
		probe.WithExec(r.exec),
		probe.WithPython(conf.Python),
		probe.WithLogger(r.log),
		probe.WithMetrics(metrics),
		probe.WithTrackerOptions(
			releasetracker.Commander(r.exec),
			releasetracker.GitHubToken(conf.GitHubToken),
			releasetracker.DockerCredentials(conf.DockerUsername, conf.DockerPassword),
		),
	)

	builder := matrix.New(resolver, reg,
		matrix.WithFS(r.fs),
		matrix.WithLogger(r.log),
		matrix.WithTestablePlatforms(conf.TestablePlatforms),
		matrix.ForRelease(forRelease),
		matrix.Force(force),
		matrix.WithMetrics(metrics),
	)

	driver := matrix.NewDriver(builder,
		matrix.WithDriverFS(r.fs),
		matrix.WithAppsDir(conf.AppsDir),
		matrix.WithDriverLogger(r.log),
	)

	res, err := driver.Run(apps, channels)
	if err != nil {
		return err
	}

	bs, err := json.Marshal(res)
	if err != nil {
		return err
	}

	if _, err := r.stdout.Write(append(bs, '\n')); err != nil {
		return err
	}

	r.exportMetrics(conf, metrics)

	return nil
}

// exportMetrics never fails the run, since the matrix is already written.
func (r *runner) exportMetrics(conf Config, metrics *telemetry.Metrics) {
	if conf.MetricsFile != "" {
		if err := metrics.WriteTextfile(conf.MetricsFile); err != nil {
			r.log.Error(err, "metrics.write", "path", conf.MetricsFile)
		}
	}

	if conf.Pushgateway != "" {
		if err := metrics.Push(conf.Pushgateway, metricsJob); err != nil {
			r.log.Error(err, "metrics.push", "url", conf.Pushgateway)
		}
	}
}
