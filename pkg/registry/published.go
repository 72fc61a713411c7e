package registry

import (
	"github.com/variantdev/buildmatrix/pkg/semver"
)

// RollingTag is the floating tag that always points at the latest build of a channel.
const RollingTag = "rolling"

// SelectPublished picks the currently published version out of an image's tags.
//
// Only tags made of dot-separated all-digit components are considered, and the greatest
// one under component-wise numeric comparison wins. So ["5.0", "5.0.4", "5.10"] yields "5.10".
// It returns false when no such tag exists.
func SelectPublished(tags []string) (string, bool) {
	seen := map[string]struct{}{}

	var best string
	var found bool

	for _, tag := range tags {
		if tag == RollingTag {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}

		if !semver.IsNumeric(tag) {
			continue
		}

		if !found || semver.CompareNumeric(tag, best) > 0 {
			best = tag
			found = true
		}
	}

	return best, found
}
