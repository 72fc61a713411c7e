package matrix

import (
	"strings"

	"github.com/pkg/errors"
)

// ParsePlatform splits an "os/arch" platform like "linux/arm64" into its os and arch.
// A trailing variant as in "linux/arm/v7" is accepted and left out of arch.
func ParsePlatform(platform string) (string, string, error) {
	parts := strings.Split(platform, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Errorf("invalid platform %q: must be os/arch", platform)
	}
	return parts[0], parts[1], nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
