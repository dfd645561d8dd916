package openleg

import "strings"

// Path is an ordered list of non-empty URL path segments.
type Path []string

// P normalizes any mix of slash-separated strings into a Path. Every part is
// split on "/", empty segments are dropped and order is preserved, so
// P(P(x)...) always equals P(x).
func P(parts ...string) Path {
	out := make(Path, 0, len(parts))
	for _, part := range parts {
		for _, seg := range strings.Split(part, "/") {
			if seg = strings.TrimSpace(seg); seg != "" {
				out = append(out, seg)
			}
		}
	}
	return out
}

// Join concatenates paths, normalizing each.
func Join(paths ...Path) Path {
	var out Path
	for _, p := range paths {
		out = append(out, P(p...)...)
	}
	if out == nil {
		return Path{}
	}
	return out
}

// String renders the path without leading or trailing separators.
func (p Path) String() string {
	return strings.Join(P(p...), "/")
}
