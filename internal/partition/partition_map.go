package partition

import "strings"

const (
	levelMarker     = "*"
	recursiveMarker = "**/*"
)

// Group is one logical table: a synthesized partition key and its member
// files in input order.
type Group struct {
	Key   string
	Files []string
}

// BuildMap partitions files into groups that share a static root and the same
// Hive partition path up to maxDepth.
//
// Keys have the form "<root>/<partition path>/*". When maxDepth cut at least
// one member's path short (always the case for 0 with partitioned files) the
// key ends in "/**/*" instead. The query string of pattern is appended to every
// key. Groups are ordered by their first member in files, and files keep their
// input order inside a group.
//
// Grouping depends only on files and maxDepth; pattern contributes its query
// string. A single discovered file is returned as its own group without any
// partition analysis.
func BuildMap(pattern string, files []string, maxDepth *int) ([]Group, error) {
	if err := CheckDepth(maxDepth); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []Group{}, nil
	}

	_, query := SplitQuery(pattern)
	if len(files) == 1 {
		// For an exact-file pattern this is the pattern itself.
		return []Group{{Key: files[0] + query, Files: []string{files[0]}}}, nil
	}

	type groupState struct {
		root      string
		path      string
		truncated bool
		files     []string
	}

	var order []*groupState
	byID := make(map[string]*groupState)
	for _, f := range files {
		root, segs := splitFile(f)
		depth := len(segs)
		truncated := false
		if maxDepth != nil && *maxDepth < depth {
			depth = *maxDepth
			truncated = true
		}
		p := strings.Join(segs[:depth], "/")

		id := root + "\x00" + p
		g, ok := byID[id]
		if !ok {
			g = &groupState{root: root, path: p}
			byID[id] = g
			order = append(order, g)
		}
		g.truncated = g.truncated || truncated
		g.files = append(g.files, f)
	}

	groups := make([]Group, 0, len(order))
	for _, g := range order {
		marker := levelMarker
		if g.truncated {
			marker = recursiveMarker
		}
		key := g.root
		if g.path != "" {
			key += g.path + "/"
		}
		groups = append(groups, Group{Key: key + marker + query, Files: g.files})
	}
	return groups, nil
}

// Files flattens groups back into a single file list in group order.
func Files(groups []Group) []string {
	n := 0
	for _, g := range groups {
		n += len(g.Files)
	}
	out := make([]string, 0, n)
	for _, g := range groups {
		out = append(out, g.Files...)
	}
	return out
}
