package loader

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gillix/symfony-container-loader/container"
)

// ConfigEntry names one configuration file with a load priority. Lower
// priorities load first, so higher-priority files override them. The zero
// priority is the default.
type ConfigEntry struct {
	Path     string
	Priority int
}

// File returns an entry with the default priority.
func File(path string) ConfigEntry {
	return ConfigEntry{Path: path}
}

// FileWithPriority returns an entry with an explicit priority.
func FileWithPriority(path string, priority int) ConfigEntry {
	return ConfigEntry{Path: path, Priority: priority}
}

// normalizeEntries validates entries and orders them by ascending priority.
// The sort is stable: equal priorities keep their relative order, which
// matters because load order decides which file's definitions win.
func normalizeEntries(entries []ConfigEntry) ([]ConfigEntry, error) {
	for _, entry := range entries {
		if strings.TrimSpace(entry.Path) == "" {
			return nil, &container.InvalidParameterError{
				Param:  "configFiles",
				Reason: "entry with empty path",
			}
		}
	}
	ordered := append([]ConfigEntry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return ordered, nil
}

// resolvePaths turns ordered entries into absolute, existence-checked file
// paths. Relative paths resolve against the project root. A duplicate path is
// a caller mistake; the same file cannot meaningfully load twice.
func resolvePaths(entries []ConfigEntry, projectRoot string) ([]string, error) {
	paths := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		path := entry.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectRoot, path)
		}
		path = filepath.Clean(path)

		if _, dup := seen[path]; dup {
			return nil, &container.InvalidParameterError{
				Param:  path,
				Reason: "config file listed twice",
			}
		}
		seen[path] = struct{}{}

		info, err := os.Stat(path)
		if err != nil {
			return nil, &container.InvalidParameterError{
				Param:  path,
				Reason: "config file not found",
				Cause:  err,
			}
		}
		if info.IsDir() {
			return nil, &container.InvalidParameterError{
				Param:  path,
				Reason: "config path is a directory, not a file",
			}
		}
		paths = append(paths, path)
	}
	return paths, nil
}
