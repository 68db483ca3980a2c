// Package packspec reads and writes the optional savebox.yaml sidecar that a
// directory save can carry at its root. The sidecar lists glob patterns for
// paths the container should leave out, e.g. caches or screenshot dumps that
// would otherwise blow the size cap.
package packspec

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// SpecFileName is the sidecar's fixed name at the save root.
	SpecFileName = "savebox.yaml"

	// AllFiles matches every path below the save root.
	AllFiles = "**"
)

// IsSpecFile checks if the path is a savebox.yaml file
func IsSpecFile(path string) bool {
	return strings.HasSuffix(path, SpecFileName)
}

// AsSpecPath converts any path to the exact sidecar file path
func AsSpecPath(path string) string {
	if IsSpecFile(path) {
		return path
	}
	return filepath.Join(path, SpecFileName)
}

// WithoutSpecPath truncates savebox.yaml from the path
func WithoutSpecPath(path string) string {
	return strings.TrimSuffix(path, SpecFileName)
}

// Exists checks if the sidecar exists at the given path.
// Symlinked sidecars are ignored.
func Exists(path string) bool {
	specPath := AsSpecPath(path)
	stat, err := os.Lstat(specPath)
	if err != nil {
		return false
	}

	if stat.Mode()&os.ModeSymlink != 0 {
		return false
	}

	return stat.Size() > 0
}
