// Package connstr builds canonical connection strings and pool keys from
// parameter maps.
package connstr

import (
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
	"github.com/spaolacci/murmur3"
)

// Build renders base followed by "?k=v&..." with keys in sorted order, so the
// result depends only on the set of parameters and never on map iteration
// order. Empty params yield base unchanged.
func Build(base string, params map[string]string) string {
	if len(params) == 0 {
		return base
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params[k]))
	}
	return sb.String()
}

// PoolKey returns a fixed-width key for caching clients or pools built from
// the same base and parameters.
func PoolKey(base string, params map[string]string) string {
	h := murmur3.New128()
	_, _ = h.Write([]byte(Build(base, params)))
	return hex.EncodeToString(h.Sum(nil))
}

// FromPattern splits a location pattern into its location and query
// parameters. Repeated keys keep their last value.
func FromPattern(pattern string) (string, map[string]string, error) {
	loc, query := partition.SplitQuery(pattern)
	params, err := ParseQuery(query)
	if err != nil {
		return "", nil, err
	}
	return loc, params, nil
}

// ParseQuery parses "?a=1&b=2" (the leading "?" is optional).
func ParseQuery(query string) (map[string]string, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return nil, err
	}
	params := make(map[string]string, len(values))
	for k, v := range values {
		params[k] = v[len(v)-1]
	}
	return params, nil
}
