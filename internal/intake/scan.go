// Package intake discovers processable invoice documents on the filesystem.
package intake

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/invoicehub/invoice-rpa/constants"
)

// Stats summarizes one directory scan.
type Stats struct {
	Scanned int // every entry visited
	Matched int // files with an accepted extension
	Skipped int // hidden entries passed over
}

// ScanDirectory walks root recursively and returns the paths of every file
// with an accepted invoice extension, sorted for deterministic batch order.
// Hidden files and directories (dot-prefixed) are skipped.
func ScanDirectory(root string) ([]string, Stats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, Stats{}, errors.New("root path is required")
	}

	var paths []string
	var stats Stats
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		stats.Scanned++
		if isHidden(path) && path != root {
			stats.Skipped++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	sort.Strings(paths)
	return paths, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
