// Package verscompare implements C5's version precedence rules using
// Debian's epoch:upstream-revision ordering rather than semver, since
// upstream version strings in the wild ("1.2.3", "2024.01.15-1",
// "5.0~beta2") don't reliably follow semver and the spec requires a "~"
// to sort before everything else (a pre-release marker convention
// semver has no equivalent for). Masterminds/semver/v3, a teacher
// dependency, is deliberately not used here — it implements the wrong
// ordering algorithm for this domain.
package verscompare

import (
	"strings"

	debversion "pault.ag/go/debian/version"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
)

// Normalize strips a leading "v" (as in GitHub tag conventions like
// "v1.2.3") so tag-derived and file-derived version strings compare
// consistently.
func Normalize(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "v")
}

// Parse parses a version string using Debian precedence rules, after
// applying Normalize.
func Parse(raw string) (debversion.Version, error) {
	v, err := debversion.Parse(Normalize(raw))
	if err != nil {
		return debversion.Version{}, apperrors.Wrap(apperrors.Validation, err,
			"parse version "+raw)
	}
	return v, nil
}

// Compare returns -1, 0, or 1 as a is older, equal, or newer than b,
// under Debian precedence (epoch, then upstream with "~" sorting before
// everything, then revision).
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return debversion.Compare(va, vb), nil
}

// IsNewer reports whether candidate is strictly newer than installed.
func IsNewer(candidate, installed string) (bool, error) {
	cmp, err := Compare(candidate, installed)
	if err != nil {
		return false, err
	}
	return cmp > 0, nil
}
