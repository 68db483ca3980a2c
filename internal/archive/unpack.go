package archive

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/savebox/savebox/internal/utils"
)

var errSymlinkEntry = errors.New("symlink entries are not supported")

// Unpack extracts the container at containerPath. A container holding exactly
// one top-level file entry unpacks straight to destPath as that file. Any
// other container is extracted beneath destPath preserving entry structure,
// creating directories on demand and overwriting existing files in place.
// Directory entries with no content create empty directories. Entries that
// escape destPath or carry symlink modes are rejected.
func Unpack(ctx context.Context, containerPath string, destPath string) error {
	zr, err := zip.OpenReader(containerPath)
	if err != nil {
		return &IOError{Op: "unpack", Path: containerPath, Err: err}
	}
	defer zr.Close()

	buf := make([]byte, copyBufferSize)

	if len(zr.File) == 1 && isTopLevelFile(zr.File[0]) {
		return extractFileTo(ctx, zr.File[0], destPath, buf)
	}

	absDest, err := utils.ResolvePath(destPath)
	if err != nil {
		return err
	}

	for _, f := range zr.File {
		if err := extractEntry(ctx, f, absDest, buf); err != nil {
			return err
		}
	}
	return nil
}

// isTopLevelFile reports whether f is a file entry sitting at the container
// root, with no directory component in its name.
func isTopLevelFile(f *zip.File) bool {
	return !f.FileInfo().IsDir() && !strings.Contains(f.Name, "/")
}

func extractEntry(ctx context.Context, f *zip.File, destDir string, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if f.Mode()&os.ModeSymlink != 0 {
		return &IOError{Op: "unpack", Path: f.Name, Err: errSymlinkEntry}
	}

	target := filepath.Join(destDir, filepath.FromSlash(f.Name))
	// filepath.Join cleans any ../ components, so a prefix check is enough
	// to reject entries escaping the destination
	if target != destDir && !strings.HasPrefix(target, destDir+string(filepath.Separator)) {
		return &IOError{Op: "unpack", Path: f.Name, Err: errors.New("entry escapes destination")}
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return &IOError{Op: "unpack", Path: target, Err: err}
		}
		return nil
	}

	return extractFileTo(ctx, f, target, buf)
}

func extractFileTo(ctx context.Context, f *zip.File, target string, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if f.Mode()&os.ModeSymlink != 0 {
		return &IOError{Op: "unpack", Path: f.Name, Err: errSymlinkEntry}
	}

	if err := utils.EnsureParent(target); err != nil {
		return &IOError{Op: "unpack", Path: target, Err: err}
	}

	rc, err := f.Open()
	if err != nil {
		return &IOError{Op: "unpack", Path: f.Name, Err: err}
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm())
	if err != nil {
		return &IOError{Op: "unpack", Path: target, Err: err}
	}

	_, err = io.CopyBuffer(out, rc, buf)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &IOError{Op: "unpack", Path: f.Name, Err: err}
	}

	// restore the original timestamp carried by the entry
	if !f.Modified.IsZero() {
		_ = os.Chtimes(target, f.Modified, f.Modified)
	}
	return nil
}

// TopLevelItems returns the names of the immediate children of dir, sorted.
// The registry uses it to find the single item a container produced.
func TopLevelItems(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}
