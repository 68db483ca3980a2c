package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_NormalizesAndDefaults(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		DataDir:   tmp,
		ServerURL: "http://127.0.0.1:8080/",
		Path:      filepath.Join(tmp, "config.json"),
	}

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.True(t, filepath.IsAbs(cfg.Path))
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL, "trailing slash trimmed")
	assert.Equal(t, DefaultClientURL, cfg.ClientURL)
}

func TestConfig_Validate_ErrorsOnInvalidInputs(t *testing.T) {
	tmp := t.TempDir()

	t.Run("missing data dir", func(t *testing.T) {
		cfg := &Config{ServerURL: "http://127.0.0.1:8080"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("data dir is a file", func(t *testing.T) {
		file := filepath.Join(tmp, "not-a-dir")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		cfg := &Config{DataDir: file}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("data dir not writable", func(t *testing.T) {
		dir := filepath.Join(tmp, "readonly")
		require.NoError(t, os.Mkdir(dir, 0o555))
		t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

		cfg := &Config{DataDir: dir}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not writable")
	})

	t.Run("bad server url", func(t *testing.T) {
		cfg := &Config{
			DataDir:   tmp,
			ServerURL: "ftp://bad.example.com",
		}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "server url")
	})

	t.Run("bad client url", func(t *testing.T) {
		cfg := &Config{
			DataDir:   tmp,
			ClientURL: "://bad",
		}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "client url")
	})
}

func TestConfig_NoServerIsValid(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.ServerURL)
}

func TestConfig_SaveAndLoad_Roundtrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")

	cfg := &Config{
		DataDir:             tmp,
		ServerURL:           "http://127.0.0.1:8080",
		ServerToken:         "stok",
		ClientURL:           "http://localhost:8483",
		ClientToken:         "ctok",
		RefreshIntervalSecs: 120,
		PackExcludes:        []string{"*.shadercache"},
		WatchEnabled:        false, // should not persist
		Path:                path,
	}

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Save())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.DataDir, loaded.DataDir)
	assert.Equal(t, cfg.ServerURL, loaded.ServerURL)
	assert.Equal(t, cfg.ServerToken, loaded.ServerToken)
	assert.Equal(t, cfg.ClientURL, loaded.ClientURL)
	assert.Equal(t, cfg.ClientToken, loaded.ClientToken)
	assert.Equal(t, cfg.RefreshIntervalSecs, loaded.RefreshIntervalSecs)
	assert.Equal(t, cfg.PackExcludes, loaded.PackExcludes)

	// Non-persisted fields default on load.
	assert.True(t, loaded.WatchEnabled)
	assert.Equal(t, path, loaded.Path)

	// The file carries tokens, so it must be user-only.
	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfig_LoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
