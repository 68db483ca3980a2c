package archive

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempFile is a scoped temporary file. Its only release path is Remove,
// which the owner must call on every exit, normal or not. Containers built
// for hashing and upload live in one of these.
type TempFile struct {
	path string
}

// NewTempFile reserves a temporary file using the given name pattern, e.g.
// "savebox-*.zip".
func NewTempFile(pattern string) (*TempFile, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, err
	}
	// only the name needs reserving, callers reopen by path
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	return &TempFile{path: f.Name()}, nil
}

func (t *TempFile) Path() string {
	return t.path
}

func (t *TempFile) Remove() error {
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TempDir is a scoped staging directory with the same explicit-release
// contract as TempFile.
type TempDir struct {
	path string
}

// NewStagingDir creates an exclusive extraction staging directory beneath
// baseDir, or the system temp dir when baseDir is empty. The uuid suffix
// keeps concurrent extracts from colliding.
func NewStagingDir(baseDir string) (*TempDir, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	path := filepath.Join(baseDir, "stage-"+uuid.NewString())
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &TempDir{path: path}, nil
}

func (t *TempDir) Path() string {
	return t.path
}

func (t *TempDir) Remove() error {
	return os.RemoveAll(t.path)
}
