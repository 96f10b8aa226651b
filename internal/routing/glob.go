package routing

import (
	"path"
	"strings"
)

// GlobMatch checks if a slash-separated path matches the glob pattern.
//
//	"**" matches zero or more segments
//	"*"  inside a segment matches any run of characters in that segment
//
// Other characters, including path.Match's "?" and "[...]", follow
// path.Match within a segment.
func GlobMatch(pattern, name string) bool {
	return globMatch(
		strings.Split(pattern, "/"),
		strings.Split(name, "/"),
	)
}

// HostMatch is GlobMatch over dot-separated host labels, so
// "**.example.com" matches the apex and every subdomain.
func HostMatch(pattern, host string) bool {
	return globMatch(
		strings.Split(strings.ToLower(pattern), "."),
		strings.Split(strings.ToLower(host), "."),
	)
}

func globMatch(pat, seg []string) bool {
	for len(pat) > 0 {
		p := pat[0]
		pat = pat[1:]

		if p == "**" {
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(seg); i++ {
				if globMatch(pat, seg[i:]) {
					return true
				}
			}
			return false
		}

		if len(seg) == 0 {
			return false
		}
		if !segmentMatch(p, seg[0]) {
			return false
		}
		seg = seg[1:]
	}

	return len(seg) == 0
}

func segmentMatch(pattern, segment string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[\\") {
		return pattern == segment
	}
	ok, err := path.Match(pattern, segment)
	return err == nil && ok
}
