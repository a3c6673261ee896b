package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempConfigDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	origDir := getConfigDirFunc
	origPath := getConfigPathFunc
	getConfigDirFunc = func() (string, error) { return dir, nil }
	getConfigPathFunc = func() (string, error) { return filepath.Join(dir, "config.json"), nil }
	t.Cleanup(func() {
		getConfigDirFunc = origDir
		getConfigPathFunc = origPath
	})
	return dir
}

func TestSaveAndLoadGlobalConfig(t *testing.T) {
	withTempConfigDir(t)

	err := SaveGlobalConfig(&GlobalConfig{APIKey: "rcl_key", APIURL: "http://localhost:9090"})
	require.NoError(t, err)

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "rcl_key", loaded.APIKey)
	assert.Equal(t, "http://localhost:9090", loaded.APIURL)
}

func TestLoadGlobalConfig_MissingFileReturnsNil(t *testing.T) {
	withTempConfigDir(t)

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	withTempConfigDir(t)

	err := SaveGlobalConfig(nil)
	assert.Error(t, err)
}

func TestSaveGlobalConfig_FilePermissions(t *testing.T) {
	dir := withTempConfigDir(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: "rcl_key"}))

	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDeleteGlobalConfig(t *testing.T) {
	dir := withTempConfigDir(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: "rcl_key"}))
	require.NoError(t, DeleteGlobalConfig())

	_, err := os.Stat(filepath.Join(dir, "config.json"))
	assert.True(t, os.IsNotExist(err))

	// Deleting an absent config is not an error.
	assert.NoError(t, DeleteGlobalConfig())
}

func TestLoadGlobalConfig_CorruptFile(t *testing.T) {
	dir := withTempConfigDir(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0600))

	_, err := LoadGlobalConfig()
	assert.Error(t, err)
}
