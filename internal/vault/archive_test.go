package vault

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savebox/savebox/internal/packspec"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestArchiveAndExtractFileSave(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "profile1.dat")
	require.NoError(t, os.WriteFile(file, []byte("original"), 0o644))

	r := NewRegistry(WithStagingDir(t.TempDir()))
	_, err := r.AddSave("profile1", file)
	require.NoError(t, err)

	container := filepath.Join(t.TempDir(), "profile1.zip")
	require.NoError(t, r.ArchiveSaveData(context.Background(), "profile1", container))
	assert.FileExists(t, container)

	// clobber the live save, then restore from the container
	require.NoError(t, os.WriteFile(file, []byte("corrupted"), 0o644))
	require.NoError(t, r.ExtractSaveData(context.Background(), "profile1", container))

	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestArchiveAndExtractDirSave(t *testing.T) {
	dir := t.TempDir()
	saveDir := filepath.Join(dir, "world")
	files := map[string]string{
		"slot1.bin":      "one",
		"meta/info.json": `{"level":9}`,
	}
	writeFiles(t, saveDir, files)

	r := NewRegistry(WithStagingDir(t.TempDir()))
	_, err := r.AddSave("world", saveDir)
	require.NoError(t, err)

	container := filepath.Join(t.TempDir(), "world.zip")
	require.NoError(t, r.ArchiveSaveData(context.Background(), "world", container))

	require.NoError(t, os.WriteFile(filepath.Join(saveDir, "slot1.bin"), []byte("stale"), 0o644))
	require.NoError(t, r.ExtractSaveData(context.Background(), "world", container))

	for rel, want := range files {
		got, err := os.ReadFile(filepath.Join(saveDir, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got), rel)
	}
}

func TestArchiveSaveDataUnknownSave(t *testing.T) {
	r := NewRegistry()
	err := r.ArchiveSaveData(context.Background(), "ghost", filepath.Join(t.TempDir(), "c.zip"))

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Name)
}

func TestExtractSaveDataMissingContainer(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.dat")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	r := NewRegistry()
	_, err := r.AddSave("a", file)
	require.NoError(t, err)

	missing := filepath.Join(dir, "nope.zip")
	err = r.ExtractSaveData(context.Background(), "a", missing)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, missing, notFound.Path)
}

func craftZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crafted.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
	return path
}

func TestExtractRejectsEmptyContainer(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.dat")
	require.NoError(t, os.WriteFile(file, []byte("keep"), 0o644))

	r := NewRegistry(WithStagingDir(t.TempDir()))
	_, err := r.AddSave("a", file)
	require.NoError(t, err)

	err = r.ExtractSaveData(context.Background(), "a", craftZip(t, nil))
	var invalidContainer *InvalidContainerError
	require.ErrorAs(t, err, &invalidContainer)

	// live save untouched
	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got))
}

func TestExtractRejectsMultipleTopLevelItems(t *testing.T) {
	dir := t.TempDir()
	saveDir := filepath.Join(dir, "world")
	writeFiles(t, saveDir, map[string]string{"slot.bin": "keep"})

	r := NewRegistry(WithStagingDir(t.TempDir()))
	_, err := r.AddSave("world", saveDir)
	require.NoError(t, err)

	container := craftZip(t, map[string]string{
		"one/a.txt": "a",
		"two/b.txt": "b",
	})

	err = r.ExtractSaveData(context.Background(), "world", container)
	var invalidContainer *InvalidContainerError
	require.ErrorAs(t, err, &invalidContainer)

	got, err := os.ReadFile(filepath.Join(saveDir, "slot.bin"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got), "live save untouched by rejected container")
}

func TestExtractRejectsTypeMismatch(t *testing.T) {
	dir := t.TempDir()
	saveDir := filepath.Join(dir, "world")
	writeFiles(t, saveDir, map[string]string{"slot.bin": "keep"})

	r := NewRegistry(WithStagingDir(t.TempDir()))
	_, err := r.AddSave("world", saveDir)
	require.NoError(t, err)

	// single top-level file entry, but the save is a directory
	container := craftZip(t, map[string]string{"loose.dat": "x"})

	err = r.ExtractSaveData(context.Background(), "world", container)
	var invalidContainer *InvalidContainerError
	require.ErrorAs(t, err, &invalidContainer)
	assert.Contains(t, invalidContainer.Reason, "directory")
}

func TestArchiveRespectsPackSpec(t *testing.T) {
	dir := t.TempDir()
	saveDir := filepath.Join(dir, "world")
	writeFiles(t, saveDir, map[string]string{
		"keep.sav":  "k",
		"cache.tmp": "c",
	})
	spec := packspec.New(saveDir, "*.tmp")
	require.NoError(t, spec.Save())

	r := NewRegistry(WithStagingDir(t.TempDir()))
	_, err := r.AddSave("world", saveDir)
	require.NoError(t, err)

	container := filepath.Join(t.TempDir(), "world.zip")
	require.NoError(t, r.ArchiveSaveData(context.Background(), "world", container))

	zr, err := zip.OpenReader(container)
	require.NoError(t, err)
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"world/keep.sav"}, names, "tmp file and sidecar both excluded")
}

func TestArchiveCancelledRemovesPartialContainer(t *testing.T) {
	dir := t.TempDir()
	saveDir := filepath.Join(dir, "world")
	writeFiles(t, saveDir, map[string]string{"slot.bin": "x"})

	r := NewRegistry()
	_, err := r.AddSave("world", saveDir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	container := filepath.Join(t.TempDir(), "world.zip")
	err = r.ArchiveSaveData(ctx, "world", container)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, container, "partial container must be discarded")
}

func TestExtractCancelledLeavesSaveUntouched(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.dat")
	require.NoError(t, os.WriteFile(file, []byte("keep"), 0o644))

	r := NewRegistry(WithStagingDir(t.TempDir()))
	_, err := r.AddSave("a", file)
	require.NoError(t, err)

	container := filepath.Join(t.TempDir(), "a.zip")
	require.NoError(t, r.ArchiveSaveData(context.Background(), "a", container))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = r.ExtractSaveData(ctx, "a", container)
	require.ErrorIs(t, err, context.Canceled)

	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got))
}
