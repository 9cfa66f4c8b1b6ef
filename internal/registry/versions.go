package registry

import (
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// chooseLatest orders version strings newest-first and returns the first.
// Semver-shaped versions sort by semver precedence; anything else falls back
// to reverse lexical order, which keeps date-style versions sane.
func chooseLatest(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	sorted := SortVersions(versions)
	return sorted[0]
}

// SortVersions returns versions sorted newest-first without mutating the
// input.
func SortVersions(versions []string) []string {
	out := make([]string, len(versions))
	copy(out, versions)
	sort.SliceStable(out, func(i, j int) bool {
		vi := canonicalSemver(out[i])
		vj := canonicalSemver(out[j])
		if vi == "" || vj == "" {
			return out[i] > out[j]
		}
		return semver.Compare(vi, vj) > 0
	})
	return out
}

func canonicalSemver(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
