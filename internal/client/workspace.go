package client

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/savebox/savebox/internal/enginestate"
	"github.com/savebox/savebox/internal/utils"
)

const (
	metadataDirName = ".savebox"
	lockFileName    = "savebox.lock"
	journalFileName = "journal.db"
	stagingDirName  = "staging"
)

var ErrWorkspaceLocked = errors.New("data dir locked by another savebox process")

// Workspace is the on-disk layout of the savebox data dir. The state blob
// sits at the root; everything savebox manages for itself lives under the
// hidden metadata dir.
type Workspace struct {
	Root        string
	StatePath   string
	MetadataDir string
	JournalPath string
	StagingDir  string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir %s: %w", rootDir, err)
	}

	metadataDir := filepath.Join(root, metadataDirName)

	return &Workspace{
		Root:        root,
		StatePath:   filepath.Join(root, enginestate.StateFileName),
		MetadataDir: metadataDir,
		JournalPath: filepath.Join(metadataDir, journalFileName),
		StagingDir:  filepath.Join(metadataDir, stagingDirName),
		flock:       flock.New(filepath.Join(metadataDir, lockFileName)),
	}, nil
}

// Lock takes the single-instance lock so two savebox processes cannot
// mutate the same data dir.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("create metadata dir %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

// Unlock releases the instance lock and removes the lock file.
func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock data dir: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup locks the workspace and creates the directory layout.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	dirs := []string{w.MetadataDir, w.StagingDir}
	for _, dir := range dirs {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
