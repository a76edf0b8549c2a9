// Package partition resolves Hive-style key=value directory layouts into
// logical tables.
//
// All functions in this package are pure: they never touch the filesystem or
// the network and are safe for concurrent use.
package partition

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidArgument is returned for configuration values the resolver cannot
// work with, such as a negative maximum Hive depth.
var ErrInvalidArgument = errors.New("invalid argument")

var segmentPattern = regexp.MustCompile(`^([A-Za-z0-9_\-]+)=([A-Za-z0-9_\-]+)$`)

// KeyValue is a single decoded Hive partition segment.
type KeyValue struct {
	Key   string
	Value string
}

// IsSegment reports whether a single path component has key=value form.
func IsSegment(component string) bool {
	return segmentPattern.MatchString(component)
}

// CheckDepth validates a maximum Hive depth. A nil depth is valid.
func CheckDepth(maxDepth *int) error {
	if maxDepth != nil && *maxDepth < 0 {
		return fmt.Errorf("%w: max_hive_depth must be null or >= 0, got %d", ErrInvalidArgument, *maxDepth)
	}
	return nil
}

// SplitQuery separates a trailing query string such as "?s3_region=us-west-2"
// from a location. The returned query keeps its leading "?". A "?" that is
// followed by a "/" or carries no "=" is a glob wildcard, not a query.
func SplitQuery(location string) (string, string) {
	i := strings.IndexByte(location, '?')
	if i < 0 {
		return location, ""
	}
	q := location[i+1:]
	if strings.Contains(q, "=") && !strings.Contains(q, "/") {
		return location[:i], location[i:]
	}
	return location, ""
}

// HasWildcard reports whether a location (without query) contains glob syntax.
func HasWildcard(location string) bool {
	return strings.ContainsAny(location, "*?[{")
}

// ExtractPath returns the Hive partition segments in the parent path of file,
// joined by "/". Only the trailing run of key=value directories directly above
// the file counts. With maxDepth N > 0 the first N segments (closest to the
// root) are kept; nil or 0 keeps the full run, since depth-0 collapsing is
// applied when grouping.
func ExtractPath(file string, maxDepth *int) (string, error) {
	if err := CheckDepth(maxDepth); err != nil {
		return "", err
	}
	_, segs := splitFile(file)
	if maxDepth != nil && *maxDepth > 0 && *maxDepth < len(segs) {
		segs = segs[:*maxDepth]
	}
	return strings.Join(segs, "/"), nil
}

// Values decodes the full Hive partition run of file into key/value pairs.
func Values(file string) []KeyValue {
	_, segs := splitFile(file)
	if len(segs) == 0 {
		return nil
	}
	kvs := make([]KeyValue, 0, len(segs))
	for _, seg := range segs {
		m := segmentPattern.FindStringSubmatch(seg)
		kvs = append(kvs, KeyValue{Key: m[1], Value: m[2]})
	}
	return kvs
}

// splitFile splits a file path into its static root (including the trailing
// "/", or "" for a bare relative name) and the trailing run of partition
// segments of its parent directory.
func splitFile(file string) (string, []string) {
	loc, _ := SplitQuery(file)
	slash := strings.LastIndexByte(loc, '/')
	if slash < 0 {
		return "", nil
	}
	parts := strings.Split(loc[:slash], "/")
	i := len(parts)
	for i > 0 && IsSegment(parts[i-1]) {
		i--
	}
	if i == 0 {
		return "", parts
	}
	return strings.Join(parts[:i], "/") + "/", parts[i:]
}
