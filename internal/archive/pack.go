package archive

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/savebox/savebox/internal/utils"
)

// PackOptions tunes a single Pack call.
type PackOptions struct {
	// Exclude holds doublestar patterns matched against the slash-separated
	// path of each file or directory relative to the source root. Matching
	// paths are left out of the container.
	Exclude []string
}

// Pack writes sourcePath into w as a zip container. A single file becomes one
// entry named after the file. A directory becomes one entry per contained
// file, named nameHint/<path relative to the source root>; empty directories
// get explicit directory entries so the tree round-trips. Entry timestamps
// carry the source file's modification time, which keeps the container bytes
// stable for unchanged input.
func Pack(ctx context.Context, sourcePath string, nameHint string, w io.Writer, opts *PackOptions) error {
	if opts == nil {
		opts = &PackOptions{}
	}

	srcPath, err := utils.ResolvePath(sourcePath)
	if err != nil {
		return err
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return &IOError{Op: "pack", Path: srcPath, Err: err}
	}

	zw := zip.NewWriter(w)
	buf := make([]byte, copyBufferSize)

	if info.IsDir() {
		err = packTree(ctx, zw, srcPath, nameHint, "", opts.Exclude, buf)
	} else {
		err = packFile(ctx, zw, srcPath, info.Name(), buf)
	}
	if err != nil {
		zw.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		return &IOError{Op: "pack", Path: srcPath, Err: err}
	}
	return nil
}

// packTree walks dir depth-first, files before subdirectories at each level,
// both in lexical order. The fixed order is what makes container hashes
// comparable across runs.
func packTree(ctx context.Context, zw *zip.Writer, dir string, hint string, rel string, exclude []string, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return &IOError{Op: "pack", Path: dir, Err: err}
	}

	if len(entries) == 0 {
		return packDirHeader(zw, dir, path.Join(hint, rel))
	}

	var subdirs []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			subdirs = append(subdirs, entry)
			continue
		}
		fileRel := path.Join(rel, entry.Name())
		if matchesAny(fileRel, exclude) {
			continue
		}
		if err := packFile(ctx, zw, filepath.Join(dir, entry.Name()), path.Join(hint, fileRel), buf); err != nil {
			return err
		}
	}

	for _, sub := range subdirs {
		subRel := path.Join(rel, sub.Name())
		if matchesAny(subRel, exclude) {
			continue
		}
		if err := packTree(ctx, zw, filepath.Join(dir, sub.Name()), hint, subRel, exclude, buf); err != nil {
			return err
		}
	}
	return nil
}

func packFile(ctx context.Context, zw *zip.Writer, srcPath string, entryName string, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return &IOError{Op: "pack", Path: srcPath, Err: err}
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return &IOError{Op: "pack", Path: srcPath, Err: err}
	}
	hdr.Name = entryName
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return &IOError{Op: "pack", Path: srcPath, Err: err}
	}

	file, err := os.Open(srcPath)
	if err != nil {
		return &IOError{Op: "pack", Path: srcPath, Err: err}
	}
	defer file.Close()

	if _, err := io.CopyBuffer(w, file, buf); err != nil {
		return &IOError{Op: "pack", Path: srcPath, Err: err}
	}
	return nil
}

// packDirHeader records an empty directory. Non-empty directories are implied
// by the entries below them.
func packDirHeader(zw *zip.Writer, dir string, name string) error {
	if name == "" || name == "/" {
		// an unnamed root has no representation in the container
		return nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return &IOError{Op: "pack", Path: dir, Err: err}
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return &IOError{Op: "pack", Path: dir, Err: err}
	}
	hdr.Name = name + "/"
	hdr.Method = zip.Store

	if _, err := zw.CreateHeader(hdr); err != nil {
		return &IOError{Op: "pack", Path: dir, Err: err}
	}
	return nil
}

func matchesAny(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}
