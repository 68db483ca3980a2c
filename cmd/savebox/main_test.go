package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("SAVEBOX_SERVER_URL", "https://test.savebox.net")
	t.Setenv("SAVEBOX_SERVER_TOKEN", "test-server-token")
	t.Setenv("SAVEBOX_CLIENT_URL", "http://localhost:7938")
	t.Setenv("SAVEBOX_CLIENT_TOKEN", "test-client-token")
	if runtime.GOOS == "windows" {
		t.Setenv("SAVEBOX_DATA_DIR", "C:\\tmp\\savebox-test")
		t.Setenv("SAVEBOX_CONFIG_PATH", "C:\\tmp\\config.test.json")
	} else {
		t.Setenv("SAVEBOX_DATA_DIR", "/tmp/savebox-test")
		t.Setenv("SAVEBOX_CONFIG_PATH", "/tmp/config.test.json")
	}

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	err = cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, "https://test.savebox.net", cfg.ServerURL)
	assert.Equal(t, "test-server-token", cfg.ServerToken)
	assert.Equal(t, "http://localhost:7938", cfg.ClientURL)
	assert.Equal(t, "test-client-token", cfg.ClientToken)
	assert.True(t, cfg.WatchEnabled)

	if runtime.GOOS == "windows" {
		assert.Equal(t, "C:\\tmp\\savebox-test", cfg.DataDir)
		assert.Equal(t, "C:\\tmp\\config.test.json", cfg.Path)
	} else {
		assert.Equal(t, "/tmp/savebox-test", cfg.DataDir)
		assert.Equal(t, "/tmp/config.test.json", cfg.Path)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	// Create a temporary JSON file with expected structure
	dummyConfig := `
{
	"data_dir": "/tmp/savebox-test-json",
	"server_url": "https://test-json.savebox.net",
	"server_token": "test-server-token-json",
	"client_url": "http://localhost:8080",
	"client_token": "test-client-token-json"
}
`
	dummyConfigFile := filepath.Join(os.TempDir(), "dummy.json")
	err := os.WriteFile(dummyConfigFile, []byte(dummyConfig), 0644)
	if err != nil {
		t.Fatalf("Failed to write dummy config file: %v", err)
	}
	defer os.Remove(dummyConfigFile) // Clean up after test

	rootCmd.PersistentFlags().Set("config", dummyConfigFile)

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Equal(t, dummyConfigFile, cfg.Path)
	assert.Equal(t, "/tmp/savebox-test-json", cfg.DataDir)
	assert.Equal(t, "https://test-json.savebox.net", cfg.ServerURL)
	assert.Equal(t, "test-server-token-json", cfg.ServerToken)
	assert.Equal(t, "http://localhost:8080", cfg.ClientURL)
	assert.Equal(t, "test-client-token-json", cfg.ClientToken)
}
