package loginfra

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"k8s.io/klog"
)

// VerbosityEnv sets the klog verbosity when -v is not given.
const VerbosityEnv = "BUILDMATRIX_VERBOSITY"

func NewFlagSet() *flag.FlagSet {
	// See https://flowerinthenight.com/blog/2019/02/05/golang-cobra-klog
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	// Suppress usage flag.ErrHelp
	fs.SetOutput(ioutil.Discard)

	return fs
}

// Init registers the klog flags and parses the ones found in args.
func Init(args []string) (*flag.FlagSet, error) {
	fs := AddKlogFlags(NewFlagSet(), os.Getenv(VerbosityEnv))

	return Parse(fs, args)
}

// Parse parses the klog flags leading args. Flags it does not know are left to cobra.
func Parse(fs *flag.FlagSet, args []string) (*flag.FlagSet, error) {
	if err := fs.Parse(args); err != nil && err != flag.ErrHelp && !strings.Contains(err.Error(), "flag provided but not defined") {
		return nil, err
	}

	return fs, nil
}

func AddKlogFlags(fs *flag.FlagSet, verbosity string) *flag.FlagSet {
	klog.InitFlags(fs)

	// stdout is reserved for the build matrix
	fs.Set("logtostderr", "true")
	fs.Set("skip_headers", "true")

	if verbosity != "" {
		// -v LEVEL must preceed the remaining args to be parsed by fs
		fmt.Fprintf(os.Stderr, "Setting log verbosity to %s\n", verbosity)
		fs.Set("v", verbosity)
	}

	return fs
}
