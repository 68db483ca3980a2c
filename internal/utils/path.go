package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	// Expand `~` to the user's home directory
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// Resolve relative paths (.., .) and return an absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

// Normalize returns the canonical absolute form of path. Directory paths end
// with the OS separator; regular file paths never do. A path that does not
// exist is treated as a potential directory. Normalize is idempotent.
func Normalize(path string) (string, error) {
	absPath, err := ResolvePath(path)
	if err != nil {
		return "", err
	}

	sep := string(filepath.Separator)
	if FileExists(absPath) || strings.HasSuffix(absPath, sep) {
		return absPath, nil
	}
	return absPath + sep, nil
}

// PathContains reports whether path lives at or beneath dir. Both arguments
// must already be normalized, so a directory always carries the trailing
// separator that makes the prefix check unambiguous.
func PathContains(dir, path string) bool {
	return strings.HasSuffix(dir, string(filepath.Separator)) && strings.HasPrefix(path, dir)
}

func EnsureParent(path string) error {
	dir := filepath.Dir(path)
	return EnsureDir(dir)
}

func EnsureDir(path string) error {
	// already exists
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.MkdirAll(path, 0o755)
}

func DirExists(path string) bool {
	// check if the path is a directory
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(path string) bool {
	// check if the path is a file
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDirOrMissing is false only when path exists and is a regular file.
func IsDirOrMissing(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.IsDir()
}

func IsWritable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0o200 != 0
}

// ListFilesRecursive walks dir depth-first and returns the absolute path of
// every regular file below it. Files at a level come before anything inside
// that level's subdirectories, both in lexical order. The listing is a fresh
// scan on every call.
func ListFilesRecursive(dir string) ([]string, error) {
	absDir, err := ResolvePath(dir)
	if err != nil {
		return nil, err
	}

	files := []string{}
	if err := walkFilesFirst(absDir, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func walkFilesFirst(dir string, files *[]string) error {
	// os.ReadDir returns entries sorted by name
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var subdirs []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			subdirs = append(subdirs, path)
			continue
		}
		*files = append(*files, path)
	}

	for _, sub := range subdirs {
		if err := walkFilesFirst(sub, files); err != nil {
			return err
		}
	}
	return nil
}

// SizeOf returns the length of a file, or the total length of all files under
// a directory. A missing path counts as zero.
func SizeOf(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
