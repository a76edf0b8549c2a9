package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
)

// LocalLister lists files on the local filesystem.
type LocalLister struct {
	ext string
}

// NewLocalLister returns a lister that keeps wildcard matches ending in ext.
// An empty ext keeps every match.
func NewLocalLister(ext string) *LocalLister {
	return &LocalLister{ext: ext}
}

// List walks the static prefix of pattern and returns the matching files.
func (l *LocalLister) List(ctx context.Context, pattern string) ([]Object, error) {
	loc, _ := partition.SplitQuery(pattern)
	loc = strings.TrimPrefix(loc, "file://")

	if !partition.HasWildcard(loc) {
		info, err := os.Stat(loc)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", loc)
		}
		return []Object{{URI: loc, Size: info.Size(), LastModified: info.ModTime().UTC()}}, nil
	}

	loc = cleanStatic(loc)
	m, err := NewMatcher(loc)
	if err != nil {
		return nil, err
	}
	root := StaticPrefix(loc)
	if root == "" {
		root = "."
	}

	var objects []Object
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		slashed := filepath.ToSlash(p)
		if !m.Match(slashed) || !hasExtension(slashed, l.ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			URI:          slashed,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return objects, nil
}

// cleanStatic cleans the part of loc before the first wildcard component so
// that it matches the cleaned paths WalkDir reports. "./data/**/*" becomes
// "data/**/*".
func cleanStatic(loc string) string {
	static := StaticPrefix(loc)
	if static == "" {
		return loc
	}
	tail := loc[len(static):]
	cleaned := path.Clean(static)
	if cleaned == "." {
		return tail
	}
	if !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned + tail
}
