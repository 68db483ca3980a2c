package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func packToFile(t *testing.T, src, hint string, opts *PackOptions) string {
	t.Helper()
	container := filepath.Join(t.TempDir(), "container.zip")
	out, err := os.Create(container)
	require.NoError(t, err)
	require.NoError(t, Pack(context.Background(), src, hint, out, opts))
	require.NoError(t, out.Close())
	return container
}

func entryNames(t *testing.T, container string) []string {
	t.Helper()
	zr, err := zip.OpenReader(container)
	require.NoError(t, err)
	defer zr.Close()
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestPackSingleFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "profile1.dat")
	payload := bytes.Repeat([]byte("save data "), 1000)
	require.NoError(t, os.WriteFile(src, payload, 0o644))

	container := packToFile(t, src, "profile1", nil)
	assert.Equal(t, []string{"profile1.dat"}, entryNames(t, container))

	dest := filepath.Join(dir, "restored.dat")
	require.NoError(t, Unpack(context.Background(), container, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPackDirectoryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sav")
	files := map[string]string{
		"slot1.bin":        "slot one",
		"slot2.bin":        "slot two",
		"meta/info.json":   `{"level":3}`,
		"meta/shots/1.png": "png bytes",
	}
	writeTree(t, src, files)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o755))

	container := packToFile(t, src, "mysave", nil)

	dest := filepath.Join(dir, "out")
	require.NoError(t, Unpack(context.Background(), container, dest))

	for rel, want := range files {
		got, err := os.ReadFile(filepath.Join(dest, "mysave", filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got), rel)
	}

	// the empty directory must come back too
	info, err := os.Stat(filepath.Join(dest, "mysave", "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPackEntryOrderFilesBeforeSubdirs(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"z.txt":     "z",
		"b.txt":     "b",
		"a/one.txt": "1",
	})

	container := packToFile(t, src, "s", nil)
	assert.Equal(t, []string{"s/b.txt", "s/z.txt", "s/a/one.txt"}, entryNames(t, container))
}

func TestPackDeterministic(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.bin":     "aaaa",
		"sub/b.bin": "bbbb",
	})

	var first, second bytes.Buffer
	require.NoError(t, Pack(context.Background(), src, "s", &first, nil))
	require.NoError(t, Pack(context.Background(), src, "s", &second, nil))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestPackExcludeGlobs(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.sav":       "k",
		"skip.tmp":       "s",
		"cache/blob.bin": "c",
	})

	container := packToFile(t, src, "s", &PackOptions{Exclude: []string{"*.tmp", "cache"}})
	assert.Equal(t, []string{"s/keep.sav"}, entryNames(t, container))
}

func TestPackCancelled(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.bin": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := Pack(ctx, src, "s", &buf, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPackMissingSource(t *testing.T) {
	var buf bytes.Buffer
	err := Pack(context.Background(), filepath.Join(t.TempDir(), "nope"), "s", &buf, nil)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "pack", ioErr.Op)
}

func writeRawZip(t *testing.T, build func(zw *zip.Writer)) string {
	t.Helper()
	container := filepath.Join(t.TempDir(), "evil.zip")
	out, err := os.Create(container)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	build(zw)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
	return container
}

func TestUnpackRejectsEscapingEntry(t *testing.T) {
	container := writeRawZip(t, func(zw *zip.Writer) {
		w, err := zw.Create("../escape.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte("evil"))
		require.NoError(t, err)
	})

	err := Unpack(context.Background(), container, t.TempDir())
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Contains(t, ioErr.Error(), "escapes destination")
}

func TestUnpackRejectsSymlinkEntry(t *testing.T) {
	container := writeRawZip(t, func(zw *zip.Writer) {
		fh := &zip.FileHeader{
			Name:     "save/link",
			Method:   zip.Store,
			Modified: time.Now(),
		}
		fh.SetMode(os.ModeSymlink | 0o777)
		w, err := zw.CreateHeader(fh)
		require.NoError(t, err)
		_, err = w.Write([]byte("/etc/passwd"))
		require.NoError(t, err)
	})

	err := Unpack(context.Background(), container, t.TempDir())
	assert.ErrorIs(t, err, errSymlinkEntry)
}

func TestUnpackOverwritesInPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "save")
	writeTree(t, src, map[string]string{"a.txt": "fresh", "b.txt": "new"})

	container := packToFile(t, src, "save", nil)

	dest := filepath.Join(dir, "dest")
	writeTree(t, dest, map[string]string{"save/a.txt": "stale", "save/extra.txt": "keep"})

	require.NoError(t, Unpack(context.Background(), container, dest))

	got, err := os.ReadFile(filepath.Join(dest, "save", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))

	// files the container does not mention stay put
	extra, err := os.ReadFile(filepath.Join(dest, "save", "extra.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(extra))
}

func TestUnpackMissingContainer(t *testing.T) {
	err := Unpack(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), t.TempDir())
	var ioErr *IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestTempFileRemove(t *testing.T) {
	tmp, err := NewTempFile("savebox-test-*.zip")
	require.NoError(t, err)
	assert.FileExists(t, tmp.Path())

	require.NoError(t, tmp.Remove())
	assert.NoFileExists(t, tmp.Path())

	// removing twice is fine
	assert.NoError(t, tmp.Remove())
}

func TestStagingDirRemove(t *testing.T) {
	base := t.TempDir()
	stage, err := NewStagingDir(base)
	require.NoError(t, err)
	assert.DirExists(t, stage.Path())

	writeTree(t, stage.Path(), map[string]string{"partial.bin": "x"})
	require.NoError(t, stage.Remove())
	assert.NoDirExists(t, stage.Path())
}

func TestTopLevelItems(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"one/a.txt": "a"})

	items, err := TopLevelItems(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, items)

	_, err = TopLevelItems(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
