package partition

import (
	"path"
	"strings"

	"github.com/infobloxopen/cq-source-geoparquet/internal/naming"
)

// BuildName derives a table name from a location pattern or partition key.
//
// The query string is ignored. An exact file is named after its base name
// without extension. For globs the trailing "*" and "**" segments are dropped;
// if the remaining path ends in key=value segments the name is built from that
// run ("theme=a/type=b" becomes "theme_a_type_b"), otherwise from the last
// static segment with any wildcard suffix and extension removed.
func BuildName(pattern string) string {
	loc, _ := SplitQuery(pattern)
	loc = strings.TrimRight(loc, "/")

	if !HasWildcard(loc) {
		base := path.Base(loc)
		return naming.ToSafeName(strings.TrimSuffix(base, path.Ext(base)))
	}

	segs := strings.Split(loc, "/")
	for len(segs) > 0 {
		last := segs[len(segs)-1]
		if last == "*" || last == "**" {
			segs = segs[:len(segs)-1]
			continue
		}
		if IsSegment(last) {
			return naming.ToSafeName(segmentRunName(segs))
		}
		if base := staticBase(last); base != "" {
			return naming.ToSafeName(base)
		}
		segs = segs[:len(segs)-1]
	}
	return naming.Fallback
}

// segmentRunName joins the trailing key=value run of segs as key_value pairs.
func segmentRunName(segs []string) string {
	i := len(segs)
	for i > 0 && IsSegment(segs[i-1]) {
		i--
	}
	parts := make([]string, 0, 2*(len(segs)-i))
	for _, seg := range segs[i:] {
		k, v, _ := strings.Cut(seg, "=")
		parts = append(parts, k, v)
	}
	return strings.Join(parts, "_")
}

// staticBase returns the part of a path component before its first wildcard,
// or the component without extension when it has no wildcard.
func staticBase(component string) string {
	if i := strings.IndexAny(component, "*?[{"); i >= 0 {
		return component[:i]
	}
	return strings.TrimSuffix(component, path.Ext(component))
}
