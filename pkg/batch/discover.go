package batch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Discover lists the regular files directly inside dir whose extension is in exts.
// Extensions are matched case-insensitively. Subdirectories are not searched.
// The result is sorted lexicographically, so that processing order does not depend on the filesystem.
func Discover(dir string, exts []string) ([]string, error) {
	allow := map[string]bool{}
	for _, e := range exts {
		allow[strings.ToLower(e)] = true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if allow[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
