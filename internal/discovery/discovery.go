// Package discovery lists the concrete files behind a location pattern on the
// local filesystem, in S3 or over HTTP.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
)

// ErrDiscovery wraps every failure of an underlying listing call.
var ErrDiscovery = errors.New("file discovery failed")

// ErrUnsupportedScheme is returned for locations no lister handles.
var ErrUnsupportedScheme = errors.New("unsupported location scheme")

// Object is a single discovered file.
type Object struct {
	URI          string
	Size         int64
	LastModified time.Time
}

// Lister lists the files matching a location pattern.
type Lister interface {
	List(ctx context.Context, pattern string) ([]Object, error)
}

// Router dispatches a pattern to the lister for its scheme. A nil lister
// disables that scheme.
type Router struct {
	Local Lister
	S3    Lister
	HTTP  Lister
}

// List expands directory patterns, lists them with the matching lister and
// returns the objects sorted by URI.
func (r *Router) List(ctx context.Context, pattern string) ([]Object, error) {
	var l Lister
	switch Scheme(pattern) {
	case "s3":
		l = r.S3
	case "http", "https":
		l = r.HTTP
	case "", "file":
		l = r.Local
	}
	if l == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, pattern)
	}

	objects, err := l.List(ctx, Expand(pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDiscovery, pattern, err)
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].URI < objects[j].URI
	})
	return objects, nil
}

// URIs projects objects onto their URIs.
func URIs(objects []Object) []string {
	uris := make([]string, len(objects))
	for i, o := range objects {
		uris[i] = o.URI
	}
	return uris
}

// Scheme returns the lower-cased URI scheme of a location, or "" for plain
// paths.
func Scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

// Expand turns a wildcard-free location without a file extension into a
// recursive directory pattern. Other locations are returned unchanged.
func Expand(pattern string) string {
	loc, query := partition.SplitQuery(pattern)
	if partition.HasWildcard(loc) {
		return pattern
	}
	if strings.HasSuffix(loc, "/") || path.Ext(loc) == "" {
		return strings.TrimRight(loc, "/") + "/**/*" + query
	}
	return pattern
}

// StaticPrefix returns the part of loc before the path component holding the
// first wildcard, including the trailing "/".
func StaticPrefix(loc string) string {
	i := strings.IndexAny(loc, "*?[{")
	if i < 0 {
		return loc
	}
	return loc[:strings.LastIndexByte(loc[:i], '/')+1]
}

// Matcher matches slash-separated locations against a glob in which "*" stays
// inside one path component and "**/" spans zero or more directories.
type Matcher struct {
	globs []glob.Glob
}

// NewMatcher compiles pattern. Every "**/" may independently match zero
// directories, so one glob is compiled per subset of dropped "**/" markers.
func NewMatcher(pattern string) (*Matcher, error) {
	parts := strings.Split(pattern, "**/")
	if len(parts)-1 > maxRecursiveMarkers {
		return nil, fmt.Errorf("invalid pattern %q: more than %d \"**/\" markers", pattern, maxRecursiveMarkers)
	}
	m := &Matcher{}
	for _, v := range recursiveVariants(parts) {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

const maxRecursiveMarkers = 8

func recursiveVariants(parts []string) []string {
	n := len(parts) - 1
	variants := make([]string, 0, 1<<n)
	for mask := 0; mask < 1<<n; mask++ {
		var b strings.Builder
		b.WriteString(parts[0])
		for i, p := range parts[1:] {
			if mask&(1<<i) == 0 {
				b.WriteString("**/")
			}
			b.WriteString(p)
		}
		variants = append(variants, b.String())
	}
	return variants
}

// Match reports whether location matches.
func (m *Matcher) Match(location string) bool {
	for _, g := range m.globs {
		if g.Match(location) {
			return true
		}
	}
	return false
}

func hasExtension(name, ext string) bool {
	return ext == "" || strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext))
}
