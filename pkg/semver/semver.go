package semver

import (
	"regexp"
	"strconv"
	"strings"

	sv "github.com/Masterminds/semver"
)

type Version = sv.Version

var NewConstraint = sv.NewConstraint

// Parse reads s as a semantic version. Versions with a fourth numeric component like "1.2.3.4"
// are read as "1.2.3-4" so that upstreams not strictly following semver can still be ordered.
func Parse(s string) (*Version, error) {
	fixedS := nonSemverWorkaround(strings.TrimSpace(s))

	return sv.NewVersion(fixedS)
}

var versionRegex *regexp.Regexp

func init() {
	versionRegex = regexp.MustCompile(`v?([0-9]+)(\.[0-9]+)?(\.[0-9]+)?` + `(.*)`)
}

func nonSemverWorkaround(s string) string {
	matches := versionRegex.FindStringSubmatch(s)

	var preLike string

	if len(matches) > 3 {
		preLike = matches[4]
	}

	if preLike != "" && preLike[0] == '.' {
		s = ""
		ss := matches[1:4]
		for i := range ss {
			if ss[i] != "" {
				s += ss[i]
			}
		}

		s += "-" + preLike[1:]
	}

	return s
}

// IsNumeric reports whether every dot-separated component of s consists of digits only.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range strings.Split(s, ".") {
		if c == "" {
			return false
		}
		for _, r := range c {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// CompareNumeric compares two numeric dotted versions component by component.
// When one is a prefix of the other, the longer one is greater.
// Both arguments must satisfy IsNumeric.
func CompareNumeric(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareDigits(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareDigits(a, b string) int {
	// Digit strings may exceed uint64, so fall back to comparing without leading zeros.
	x, errX := strconv.ParseUint(a, 10, 64)
	y, errY := strconv.ParseUint(b, 10, 64)
	if errX == nil && errY == nil {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Truncations returns the left-truncated dot prefixes of version, most specific first.
// "1.2.3" yields ["1.2", "1"] and "5" yields nothing.
func Truncations(version string) []string {
	parts := strings.Split(version, ".")
	var prefixes []string
	for n := len(parts) - 1; n > 0; n-- {
		prefixes = append(prefixes, strings.Join(parts[:n], "."))
	}
	return prefixes
}
